package status

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/KyleBrandon/irrigation-server/internal/bus"
	"github.com/KyleBrandon/irrigation-server/utils"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func NewHandler(zones ZoneSource, tanks TankSource, leaks LeakSource, power PowerSource, events *bus.Bus, originPatterns []string) *Handler {
	h := &Handler{
		zones:          zones,
		tanks:          tanks,
		leaks:          leaks,
		power:          power,
		originPatterns: originPatterns,
	}

	events.Subscribe(bus.EventFlowSample, func(event any) {
		if sample, ok := event.(bus.FlowSample); ok {
			h.mu.Lock()
			h.lastFlowRate = sample.RateLPM
			h.mu.Unlock()
		}
	})

	return h
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/status", h.handlerStatusGet)
	mux.HandleFunc("/v1/status/ws", h.handleStatusWS)
}

func (h *Handler) handlerStatusGet(writer http.ResponseWriter, _ *http.Request) {
	slog.Debug(">>handlerStatusGet")
	defer slog.Debug("<<handlerStatusGet")

	utils.RespondWithJSON(writer, http.StatusOK, h.buildStatus())
}

func (h *Handler) handleStatusWS(writer http.ResponseWriter, req *http.Request) {
	slog.Info(">>handleStatusWS: new incoming connection")

	opts := &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	}
	c, err := websocket.Accept(writer, req, opts)
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}

	defer c.Close(websocket.StatusInternalError, "Unexpected connection close")

	ctx := c.CloseRead(req.Context())

	h.monitorStatus(ctx, c)

	slog.Info("<<handleStatusWS")
}

func (h *Handler) monitorStatus(ctx context.Context, c *websocket.Conn) {
	slog.Info(">>monitorStatus")
	defer slog.Info("<<monitorStatus")

	ticker := time.NewTicker(1 * time.Second)
	heartbeatTicker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitorStatus: client disconnected")
			c.Close(websocket.StatusNormalClosure, "Connection closed")
			return

		case <-ticker.C:
			if err := wsjson.Write(ctx, c, h.buildStatus()); err != nil {
				slog.Error("monitorStatus: error writing to client", "error", err)
				c.Close(websocket.StatusInternalError, "error writing status")
				return
			}

		case <-heartbeatTicker.C:
			if err := c.Ping(ctx); err != nil {
				slog.Error("monitorStatus: error sending ping", "error", err)
				c.Close(websocket.StatusInternalError, "error sending ping")
				return
			}
		}
	}
}

func (h *Handler) buildStatus() SystemStatus {
	powerOn, pauseUntil := h.power.State()

	h.mu.Lock()
	flowRate := h.lastFlowRate
	h.mu.Unlock()

	return SystemStatus{
		PowerOn:       powerOn,
		PauseUntil:    pauseUntil,
		LeakSuspected: h.leaks.Suspected(),
		FlowRateLPM:   flowRate,
		TankAggregate: h.tanks.AggregatePercent(),
		Zones:         h.zones.Snapshot(),
		Tanks:         h.tanks.Snapshot(),
	}
}
