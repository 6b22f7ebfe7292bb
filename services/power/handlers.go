package power

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/KyleBrandon/irrigation-server/utils"
)

type PowerController interface {
	State() (bool, int64)
	SetPower(on bool)
	SetPause(untilEpochSeconds int64) error
}

// SystemSink routes power-on requests through the request debouncer.
type SystemSink interface {
	SubmitSystem()
}

type Handler struct {
	power PowerController
	sink  SystemSink
}

type PowerResponse struct {
	PowerOn    bool  `json:"power_on"`
	PauseUntil int64 `json:"pause_until"`
}

func NewHandler(power PowerController, sink SystemSink) *Handler {
	return &Handler{
		power: power,
		sink:  sink,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/power", h.handlerPowerGet)
	mux.HandleFunc("PUT /v1/power", h.handlerPowerPut)
	mux.HandleFunc("PUT /v1/pause", h.handlerPausePut)
}

func (h *Handler) handlerPowerGet(writer http.ResponseWriter, _ *http.Request) {
	slog.Debug(">>handlerPowerGet")
	defer slog.Debug("<<handlerPowerGet")

	on, pauseUntil := h.power.State()
	utils.RespondWithJSON(writer, http.StatusOK, PowerResponse{PowerOn: on, PauseUntil: pauseUntil})
}

func (h *Handler) handlerPowerPut(writer http.ResponseWriter, req *http.Request) {
	slog.Debug(">>handlerPowerPut")
	defer slog.Debug("<<handlerPowerPut")

	var params struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		utils.RespondWithError(writer, http.StatusBadRequest, "could not parse the power request", err)
		return
	}

	// Turning on is an activation request and goes through the
	// debouncer; turning off always executes immediately.
	if params.On {
		h.sink.SubmitSystem()
		utils.RespondWithNoContent(writer, http.StatusAccepted)
		return
	}

	h.power.SetPower(false)

	on, pauseUntil := h.power.State()
	utils.RespondWithJSON(writer, http.StatusOK, PowerResponse{PowerOn: on, PauseUntil: pauseUntil})
}

func (h *Handler) handlerPausePut(writer http.ResponseWriter, req *http.Request) {
	slog.Debug(">>handlerPausePut")
	defer slog.Debug("<<handlerPausePut")

	var params struct {
		Until int64 `json:"until"`
	}
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		utils.RespondWithError(writer, http.StatusBadRequest, "could not parse the pause request", err)
		return
	}

	if err := h.power.SetPause(params.Until); err != nil {
		if errors.Is(err, ErrInvalidPause) {
			utils.RespondWithError(writer, http.StatusBadRequest, "the pause timestamp is in the past", err)
			return
		}

		utils.RespondWithError(writer, http.StatusInternalServerError, "could not set the pause", err)
		return
	}

	on, pauseUntil := h.power.State()
	utils.RespondWithJSON(writer, http.StatusOK, PowerResponse{PowerOn: on, PauseUntil: pauseUntil})
}
