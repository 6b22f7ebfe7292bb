package health

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/KyleBrandon/irrigation-server/utils"
)

type Handler struct {
	startTime time.Time
}

func NewHandler() *Handler {
	return &Handler{
		startTime: time.Now(),
	}
}

func (handler *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/health", handler.handlerHealthGet)
}

func (handler *Handler) handlerHealthGet(writer http.ResponseWriter, _ *http.Request) {
	slog.Debug("enter handlerHealthGet")

	response := struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}{
		Status:        "ok",
		UptimeSeconds: time.Since(handler.startTime).Seconds(),
	}

	utils.RespondWithJSON(writer, http.StatusOK, response)
}
