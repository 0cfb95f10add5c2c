package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StateProvider is the read and trigger surface of the forecast controller.
type StateProvider interface {
	State() model.UIState
	Latest() *model.ForecastResult
	Refresh()
}

// StateView is the body of GET /api/v1/state.
type StateView struct {
	State    model.StateKind `json:"state"`
	Reason   string          `json:"reason,omitempty"`
	FetchID  string          `json:"fetch_id,omitempty"`
	Forecast *model.Summary  `json:"forecast"`
}

type ForecastHandler struct {
	provider StateProvider
	logger   *zap.SugaredLogger
}

func NewForecastHandler(provider StateProvider) *ForecastHandler {
	return &ForecastHandler{
		provider: provider,
		logger:   config.GetLogger(),
	}
}

// NewRouter registers the API routes. refresh wraps the refresh route, typically
// with a rate limiter; nil leaves it unwrapped.
func NewRouter(h *ForecastHandler, refresh func(http.Handler) http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	api.HandleFunc("/forecast", h.GetForecast).Methods(http.MethodGet)

	var refreshHandler http.Handler = http.HandlerFunc(h.Refresh)
	if refresh != nil {
		refreshHandler = refresh(refreshHandler)
	}
	api.Handle("/refresh", refreshHandler).Methods(http.MethodPost)
	return r
}

func (h *ForecastHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Errorw("could not encode json", "error", err)
	}
}

func (h *ForecastHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, model.SuccessResponse(map[string]string{
		"status": "healthy",
	}))
}

// GetState returns the current UI state with the rendered summary when loaded.
func (h *ForecastHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state := h.provider.State()
	view := StateView{
		State:   state.Kind,
		Reason:  state.Reason,
		FetchID: state.FetchID,
	}
	if state.Kind == model.StateLoaded {
		view.Forecast = model.Summarize(state.Forecast)
	}
	h.writeJSONResponse(w, http.StatusOK, model.SuccessResponse(view))
}

// GetForecast returns the raw payload of the last successful fetch.
func (h *ForecastHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	latest := h.provider.Latest()
	if latest == nil {
		h.writeJSONResponse(w, http.StatusNotFound, model.ErrorResponse("No forecast loaded yet"))
		return
	}
	h.writeJSONResponse(w, http.StatusOK, model.SuccessResponse(latest))
}

func (h *ForecastHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.provider.Refresh()
	h.logger.Infow("refresh requested", "remote_addr", r.RemoteAddr)
	h.writeJSONResponse(w, http.StatusAccepted, model.Response{Message: "Refresh scheduled"})
}
