package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/timely-app/timelyd/internal/autoclock"
	"github.com/timely-app/timelyd/internal/history"
	"github.com/timely-app/timelyd/internal/models"
	"github.com/timely-app/timelyd/internal/reminders"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log interface {
	Info(string, ...zapcore.Field)
}

type Storage interface {
	GetBaseConnection() bool
}

// Geofencing is the automatic-detection policy surface.
type Geofencing interface {
	RefreshStatus(ctx context.Context) models.GeofencingStatus
	SetLocation(ctx context.Context, latitude, longitude float64, radiusMeters int) error
	ToggleMonitoring(ctx context.Context, on bool) (bool, error)
}

// Reminders accepts reschedule requests (queued, latest-wins).
type Reminders interface {
	Reschedule(models.WorkSchedule, reminders.Messages)
}

// Notifications exposes the local notification permission state.
type Notifications interface {
	Permissions() models.PermissionStatus
	RequestPermissions(ctx context.Context) (bool, error)
}

// Remote is the slice of the remote API the control surface needs.
type Remote interface {
	GetClockHistory(ctx context.Context, startDate, endDate string) (models.ClockHistory, error)
	UpdateWorkSchedule(ctx context.Context, schedule models.WorkSchedule) error
}

type BaseController struct {
	storage       Storage
	geofencing    Geofencing
	reminders     Reminders
	notifications Notifications
	remote        Remote
	log           Log
}

func NewBaseController(storage Storage, geofencing Geofencing, reminders Reminders,
	notifications Notifications, remote Remote, log Log,
) *BaseController {
	instance := &BaseController{
		storage:       storage,
		geofencing:    geofencing,
		reminders:     reminders,
		notifications: notifications,
		remote:        remote,
		log:           log,
	}

	return instance
}

func (h *BaseController) Route() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/ping", h.GetPing)
	r.Get("/api/geofencing/status", h.GetGeofencingStatus)
	r.Post("/api/geofencing/toggle", h.ToggleGeofencing)
	r.Put("/api/workplace", h.UpdateWorkplace)
	r.Put("/api/schedule", h.UpdateSchedule)
	r.Get("/api/history", h.GetHistory)

	return r
}

type errorResponse struct {
	Error        string `json:"error"`
	OpenSettings bool   `json:"openSettings,omitempty"`
}

func (h *BaseController) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Info("error encoding response: ", zap.Error(err))
	}
}

// @Summary Get geofencing status
// @Description Re-derive availability, monitoring and permission state
// @Tags Geofencing
// @Produce json
// @Success 200 {object} models.GeofencingStatus
// @Router /api/geofencing/status [get]
func (h *BaseController) GetGeofencingStatus(w http.ResponseWriter, r *http.Request) {
	status := h.geofencing.RefreshStatus(r.Context())
	h.writeJSON(w, http.StatusOK, status)
}

// @Summary Toggle automatic detection
// @Description Turn geofence-driven automatic clock detection on or off
// @Tags Geofencing
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {string} string "Bad Request"
// @Failure 402 {string} string "Payment Required"
// @Failure 403 {string} string "Forbidden"
// @Failure 503 {string} string "Service Unavailable"
// @Router /api/geofencing/toggle [post]
func (h *BaseController) ToggleGeofencing(w http.ResponseWriter, r *http.Request) {
	type RequestData struct {
		Enabled bool `json:"enabled"`
	}

	var reqData RequestData
	if err := json.NewDecoder(r.Body).Decode(&reqData); err != nil {
		h.log.Info("cannot decode request JSON body: ", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ok, err := h.geofencing.ToggleMonitoring(r.Context(), reqData.Enabled)
	if err != nil {
		h.log.Info("toggle monitoring rejected: ", zap.Error(err))

		switch {
		case errors.Is(err, autoclock.ErrNotEntitled):
			h.writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: err.Error()})
		case errors.Is(err, autoclock.ErrPermissionDenied):
			h.writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), OpenSettings: true})
		case errors.Is(err, autoclock.ErrNoLocation):
			h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		case errors.Is(err, autoclock.ErrBridgeUnavailable):
			h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		default:
			h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}

		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": reqData.Enabled && ok})
}

// @Summary Update workplace
// @Description Persist the workplace location (remote) and radius (local)
// @Tags Geofencing
// @Accept json
// @Success 200 {string} string "Workplace updated successfully"
// @Failure 400 {string} string "Bad Request"
// @Failure 500 {string} string "Internal Server Error"
// @Router /api/workplace [put]
func (h *BaseController) UpdateWorkplace(w http.ResponseWriter, r *http.Request) {
	type RequestData struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Radius    int     `json:"radius"`
	}

	var reqData RequestData
	if err := json.NewDecoder(r.Body).Decode(&reqData); err != nil {
		h.log.Info("cannot decode request JSON body: ", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.geofencing.SetLocation(r.Context(), reqData.Latitude, reqData.Longitude, reqData.Radius); err != nil {
		if errors.Is(err, autoclock.ErrRadiusOutOfRange) {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		h.log.Info("error updating workplace: ", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	h.log.Info("Workplace updated successfully")
}

// @Summary Update work schedule
// @Description Persist the weekly schedule remotely and reschedule reminders
// @Tags Schedule
// @Accept json
// @Success 202 {string} string "Reschedule accepted"
// @Failure 400 {string} string "Bad Request"
// @Failure 403 {string} string "Forbidden"
// @Failure 500 {string} string "Internal Server Error"
// @Router /api/schedule [put]
func (h *BaseController) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	type RequestData struct {
		WorkSchedule models.WorkSchedule `json:"workSchedule"`
		Messages     reminders.Messages  `json:"messages"`
	}

	var reqData RequestData
	if err := json.NewDecoder(r.Body).Decode(&reqData); err != nil {
		h.log.Info("cannot decode request JSON body: ", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for name, day := range reqData.WorkSchedule {
		if _, known := models.WeekdayIndex[name]; !known {
			h.log.Info("unknown weekday in schedule", zap.String("day", name))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if day.Start >= day.End {
			h.log.Info("schedule day has start after end", zap.String("day", name))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	// permission is checked here, before the scheduler family is invoked
	if h.notifications.Permissions() != models.PermissionGranted {
		granted, err := h.notifications.RequestPermissions(r.Context())
		if err != nil {
			h.log.Info("error requesting notification permission: ", zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if !granted {
			h.writeJSON(w, http.StatusForbidden, errorResponse{Error: "notification permission denied", OpenSettings: true})
			return
		}
	}

	if err := h.remote.UpdateWorkSchedule(r.Context(), reqData.WorkSchedule); err != nil {
		h.log.Info("error updating remote schedule: ", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.reminders.Reschedule(reqData.WorkSchedule, reqData.Messages)

	w.WriteHeader(http.StatusAccepted)
	h.log.Info("Schedule updated, reminder reschedule queued")
}

// @Summary Get clock history
// @Description Fetch clock history for a date range, annotated with periods and anomaly flags
// @Tags History
// @Produce json
// @Param startDate query string true "Start date (YYYY-MM-DD)"
// @Param endDate query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {string} string "Bad Request"
// @Failure 502 {string} string "Bad Gateway"
// @Router /api/history [get]
func (h *BaseController) GetHistory(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("startDate")
	endDate := r.URL.Query().Get("endDate")

	if startDate == "" || endDate == "" {
		h.log.Info("startDate or endDate missing")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	clockHistory, err := h.remote.GetClockHistory(r.Context(), startDate, endDate)
	if err != nil {
		h.log.Info("error fetching clock history: ", zap.Error(err))
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	response := struct {
		Data    []history.DayView          `json:"data"`
		Summary models.ClockHistorySummary `json:"summary"`
	}{
		Data:    history.Reconcile(clockHistory.Data),
		Summary: clockHistory.Summary,
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *BaseController) GetPing(w http.ResponseWriter, r *http.Request) {
	if !h.storage.GetBaseConnection() {
		h.log.Info("got status internal server error")
		w.WriteHeader(http.StatusInternalServerError) // 500
		return
	}

	w.WriteHeader(http.StatusOK) // 200
	h.log.Info("sending HTTP 200 response")
}
