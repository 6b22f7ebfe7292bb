package zone

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/KyleBrandon/irrigation-server/utils"
)

type Commander interface {
	ValidateActivation(id string) error
	DeactivateZone(id string) error
	RenameZone(id string, name string) error
	SetZoneEnabled(id string, enabled bool) error
	SetZoneRuntime(id string, seconds int) error
	Snapshot() []Status
}

// ActivationSink is where activation requests go to be debounced before
// they reach the controller.
type ActivationSink interface {
	SubmitZone(zoneID string)
}

type Handler struct {
	commander Commander
	sink      ActivationSink
}

func NewHandler(commander Commander, sink ActivationSink) *Handler {
	return &Handler{
		commander: commander,
		sink:      sink,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/zones", h.handlerZonesGet)
	mux.HandleFunc("GET /v1/zones/{id}", h.handlerZoneGet)
	mux.HandleFunc("POST /v1/zones/{id}/start", h.handlerZoneStart)
	mux.HandleFunc("POST /v1/zones/{id}/stop", h.handlerZoneStop)
	mux.HandleFunc("PUT /v1/zones/{id}", h.handlerZoneUpdate)
}

func (h *Handler) handlerZonesGet(writer http.ResponseWriter, _ *http.Request) {
	slog.Debug(">>handlerZonesGet")
	defer slog.Debug("<<handlerZonesGet")

	utils.RespondWithJSON(writer, http.StatusOK, h.commander.Snapshot())
}

func (h *Handler) handlerZoneGet(writer http.ResponseWriter, req *http.Request) {
	slog.Debug(">>handlerZoneGet")
	defer slog.Debug("<<handlerZoneGet")

	id := req.PathValue("id")
	for _, status := range h.commander.Snapshot() {
		if status.ID == id {
			utils.RespondWithJSON(writer, http.StatusOK, status)
			return
		}
	}

	utils.RespondWithError(writer, http.StatusNotFound, "could not find the zone", ErrZoneNotFound)
}

func (h *Handler) handlerZoneStart(writer http.ResponseWriter, req *http.Request) {
	slog.Debug(">>handlerZoneStart")
	defer slog.Debug("<<handlerZoneStart")

	id := req.PathValue("id")
	if err := h.commander.ValidateActivation(id); err != nil {
		respondWithZoneError(writer, err)
		return
	}

	h.sink.SubmitZone(id)

	utils.RespondWithNoContent(writer, http.StatusAccepted)
}

func (h *Handler) handlerZoneStop(writer http.ResponseWriter, req *http.Request) {
	slog.Debug(">>handlerZoneStop")
	defer slog.Debug("<<handlerZoneStop")

	id := req.PathValue("id")
	if err := h.commander.DeactivateZone(id); err != nil {
		respondWithZoneError(writer, err)
		return
	}

	utils.RespondWithNoContent(writer, http.StatusNoContent)
}

func (h *Handler) handlerZoneUpdate(writer http.ResponseWriter, req *http.Request) {
	slog.Debug(">>handlerZoneUpdate")
	defer slog.Debug("<<handlerZoneUpdate")

	id := req.PathValue("id")

	var params UpdateZoneParams
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		utils.RespondWithError(writer, http.StatusBadRequest, "could not parse the zone update", err)
		return
	}

	if params.Name != nil {
		if err := h.commander.RenameZone(id, *params.Name); err != nil {
			respondWithZoneError(writer, err)
			return
		}
	}

	if params.Enabled != nil {
		if err := h.commander.SetZoneEnabled(id, *params.Enabled); err != nil {
			respondWithZoneError(writer, err)
			return
		}
	}

	if params.RuntimeSeconds != nil {
		if err := h.commander.SetZoneRuntime(id, *params.RuntimeSeconds); err != nil {
			respondWithZoneError(writer, err)
			return
		}
	}

	for _, status := range h.commander.Snapshot() {
		if status.ID == id {
			utils.RespondWithJSON(writer, http.StatusOK, status)
			return
		}
	}

	utils.RespondWithError(writer, http.StatusNotFound, "could not find the zone", ErrZoneNotFound)
}

func respondWithZoneError(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrZoneNotFound):
		utils.RespondWithError(writer, http.StatusNotFound, "could not find the zone", err)

	case errors.Is(err, ErrZoneDisabled):
		utils.RespondWithError(writer, http.StatusConflict, "the zone is disabled", err)

	case errors.Is(err, ErrInvalidRuntime):
		utils.RespondWithError(writer, http.StatusBadRequest, "the runtime is out of range", err)

	default:
		utils.RespondWithError(writer, http.StatusInternalServerError, "zone command failed", err)
	}
}
