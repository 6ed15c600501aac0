package autoclock

import (
	"context"
	"errors"
	"time"

	"github.com/timely-app/timelyd/internal/geofence"
	"github.com/timely-app/timelyd/internal/models"
	"github.com/timely-app/timelyd/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// EntitlementGeofencing gates the automatic-detection feature.
const EntitlementGeofencing = "geofencing"

const (
	MinRadius = 50
	MaxRadius = 500
)

var (
	ErrNotEntitled       = errors.New("automatic detection requires an active subscription")
	ErrNoLocation        = errors.New("no workplace location configured")
	ErrRadiusOutOfRange  = errors.New("workplace radius must be between 50 and 500 meters")
	ErrPermissionDenied  = errors.New("always location permission not granted")
	ErrBridgeUnavailable = errors.New("geofencing is not available on this device")
	ErrMonitoringFailed  = errors.New("could not update geofence monitoring")
)

type Log interface {
	Debug(string, ...zapcore.Field)
	Info(string, ...zapcore.Field)
	Warn(string, ...zapcore.Field)
}

// Bridge is the capability surface consumed by the controller.
type Bridge interface {
	Available() bool
	StartMonitoring(identifier string, latitude, longitude float64, radiusMeters int) bool
	StopMonitoring(identifier string) bool
	MonitoredRegions() []string
	RequestAlwaysAuthorization(ctx context.Context) models.PermissionStatus
	HasAlwaysAuthorization() bool
	OnEnter(geofence.Listener) func()
	OnExit(geofence.Listener) func()
	OnError(geofence.ErrorListener) func()
}

// API is the remote collaborator used for draft clock events and the
// server-side half of the workplace setting.
type API interface {
	ClockInDraft(ctx context.Context, hour time.Time, location *models.GeoPoint) error
	ClockOutDraft(ctx context.Context, hour time.Time, location *models.GeoPoint) error
	UpdateWorkLocation(ctx context.Context, location models.GeoPoint) error
	GetUserSettings(ctx context.Context) (models.UserSettings, error)
}

// Settings is the device-local half of the workplace setting.
type Settings interface {
	WorkplaceRadius() (int, error)
	SetWorkplaceRadius(int) error
	Set(string, string) error
	Get(string) (string, error)
}

// Entitlements answers whether a premium feature is unlocked.
type Entitlements interface {
	HasEntitlement(id string) bool
}

// Announcer shows an immediate notification about an automatic clock event.
type Announcer interface {
	PresentNow(ctx context.Context, title, body string) error
}

// Announcement texts for automatic clock events.
const (
	enterTitle = "Arrived at work"
	enterBody  = "A draft clock-in entry was created. Open the app to confirm it."
	exitTitle  = "Left work"
	exitBody   = "A draft clock-out entry was created. Open the app to confirm it."
)

const reactionTimeout = 15 * time.Second

// Controller binds permission state, the persisted workplace location and
// the geofence bridge into the automatic-detection toggle. It owns the
// lifecycle of native monitoring state and is the sole writer of the local
// radius setting.
type Controller struct {
	bridge       Bridge
	api          API
	settings     Settings
	entitlements Entitlements
	announcer    Announcer
	log          Log

	geofenceID string
	limiter    *rate.Limiter

	unsubscribe []func()
}

// NewController wires the controller and subscribes to bridge events.
// minDwell is the minimum interval between acted-on enter/exit events; rapid
// flapping at the region boundary inside that window is dropped.
func NewController(bridge Bridge, api API, settings Settings, entitlements Entitlements,
	announcer Announcer, geofenceID string, minDwell time.Duration, log Log,
) *Controller {
	c := &Controller{
		bridge:       bridge,
		api:          api,
		settings:     settings,
		entitlements: entitlements,
		announcer:    announcer,
		log:          log,
		geofenceID:   geofenceID,
		limiter:      rate.NewLimiter(rate.Every(minDwell), 1),
	}

	c.unsubscribe = append(c.unsubscribe,
		bridge.OnEnter(c.handleEnter),
		bridge.OnExit(c.handleExit),
		bridge.OnError(c.handleError),
	)

	return c
}

// Close detaches the controller from the bridge event stream.
func (c *Controller) Close() {
	for _, unsub := range c.unsubscribe {
		unsub()
	}
	c.unsubscribe = nil
}

// RefreshStatus re-derives the controller state from the bridge and stored
// settings. Called on demand; there is no push-based invalidation.
func (c *Controller) RefreshStatus(ctx context.Context) models.GeofencingStatus {
	status := models.GeofencingStatus{
		Available: c.bridge.Available(),
	}

	if !status.Available {
		return status
	}

	status.HasPermission = c.bridge.HasAlwaysAuthorization()

	for _, id := range c.bridge.MonitoredRegions() {
		if id == c.geofenceID {
			status.Monitoring = true
			break
		}
	}

	if _, _, err := c.workplace(ctx); err == nil {
		status.LocationSet = true
	}

	return status
}

// SetLocation persists the workplace location remotely and the radius
// locally. The two halves live in different stores but are set together:
// radius is meaningless without a location. Monitoring is restarted with the
// new parameters when active, but is never started here.
func (c *Controller) SetLocation(ctx context.Context, latitude, longitude float64, radiusMeters int) error {
	if radiusMeters < MinRadius || radiusMeters > MaxRadius {
		return ErrRadiusOutOfRange
	}

	location := models.NewGeoPoint(latitude, longitude)

	if err := c.api.UpdateWorkLocation(ctx, location); err != nil {
		return err
	}

	if err := c.settings.SetWorkplaceRadius(radiusMeters); err != nil {
		return err
	}

	if c.isMonitoring() {
		c.bridge.StopMonitoring(c.geofenceID)

		if !c.bridge.StartMonitoring(c.geofenceID, latitude, longitude, radiusMeters) {
			c.log.Warn("could not restart monitoring after location update")
			return ErrMonitoringFailed
		}

		c.log.Info("monitoring restarted with updated workplace",
			zap.Float64("latitude", latitude), zap.Float64("longitude", longitude), zap.Int("radius", radiusMeters))
	}

	return nil
}

// ToggleMonitoring turns automatic detection on or off. The feature is
// premium-gated; permission denial is not retried automatically.
func (c *Controller) ToggleMonitoring(ctx context.Context, on bool) (bool, error) {
	if !c.entitlements.HasEntitlement(EntitlementGeofencing) {
		return false, ErrNotEntitled
	}

	if !c.bridge.Available() {
		return false, ErrBridgeUnavailable
	}

	if !on {
		c.bridge.StopMonitoring(c.geofenceID)

		if err := c.settings.Set(storage.KeyMonitoringEnabled, "false"); err != nil {
			c.log.Info("cannot persist monitoring flag: ", zap.Error(err))
		}

		c.log.Info("stopped monitoring workplace geofence")

		return true, nil
	}

	location, radius, err := c.workplace(ctx)
	if err != nil {
		return false, err
	}

	if !c.bridge.HasAlwaysAuthorization() {
		status := c.bridge.RequestAlwaysAuthorization(ctx)
		if status != models.PermissionGranted {
			c.log.Info("always location permission not granted", zap.String("status", string(status)))
			return false, ErrPermissionDenied
		}
	}

	if !c.bridge.StartMonitoring(c.geofenceID, location.Latitude(), location.Longitude(), radius) {
		return false, ErrMonitoringFailed
	}

	if err := c.settings.Set(storage.KeyMonitoringEnabled, "true"); err != nil {
		c.log.Info("cannot persist monitoring flag: ", zap.Error(err))
	}

	c.log.Info("started monitoring workplace geofence",
		zap.Float64("latitude", location.Latitude()),
		zap.Float64("longitude", location.Longitude()),
		zap.Int("radius", radius))

	return true, nil
}

// Resume restores monitoring after a daemon restart if it was enabled and
// everything needed is still in place. Failures are logged, never fatal.
func (c *Controller) Resume(ctx context.Context) {
	enabled, err := c.settings.Get(storage.KeyMonitoringEnabled)
	if err != nil || enabled != "true" {
		return
	}

	if _, err := c.ToggleMonitoring(ctx, true); err != nil {
		c.log.Info("cannot resume monitoring: ", zap.Error(err))
	}
}

// workplace loads the two halves of the workplace setting: location from the
// remote user settings, radius from the device-local store.
func (c *Controller) workplace(ctx context.Context) (models.GeoPoint, int, error) {
	radius, err := c.settings.WorkplaceRadius()
	if err != nil {
		return models.GeoPoint{}, 0, ErrNoLocation
	}

	remote, err := c.api.GetUserSettings(ctx)
	if err != nil {
		return models.GeoPoint{}, 0, err
	}

	if remote.WorkLocation == nil {
		return models.GeoPoint{}, 0, ErrNoLocation
	}

	return *remote.WorkLocation, radius, nil
}

func (c *Controller) isMonitoring() bool {
	for _, id := range c.bridge.MonitoredRegions() {
		if id == c.geofenceID {
			return true
		}
	}

	return false
}

func (c *Controller) handleEnter(event models.GeofenceEvent) {
	if !c.limiter.Allow() {
		c.log.Debug("geofence enter suppressed by dwell limit", zap.String("identifier", event.Identifier))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()

	location := models.NewGeoPoint(event.Latitude, event.Longitude)

	if err := c.api.ClockInDraft(ctx, time.Now(), &location); err != nil {
		c.log.Warn("cannot create draft clock-in: ", zap.Error(err))
		return
	}

	c.log.Info("entered workplace geofence, draft clock-in created",
		zap.String("identifier", event.Identifier))

	if err := c.announcer.PresentNow(ctx, enterTitle, enterBody); err != nil {
		c.log.Info("cannot announce clock-in: ", zap.Error(err))
	}
}

func (c *Controller) handleExit(event models.GeofenceEvent) {
	if !c.limiter.Allow() {
		c.log.Debug("geofence exit suppressed by dwell limit", zap.String("identifier", event.Identifier))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()

	location := models.NewGeoPoint(event.Latitude, event.Longitude)

	if err := c.api.ClockOutDraft(ctx, time.Now(), &location); err != nil {
		c.log.Warn("cannot create draft clock-out: ", zap.Error(err))
		return
	}

	c.log.Info("exited workplace geofence, draft clock-out created",
		zap.String("identifier", event.Identifier))

	if err := c.announcer.PresentNow(ctx, exitTitle, exitBody); err != nil {
		c.log.Info("cannot announce clock-out: ", zap.Error(err))
	}
}

func (c *Controller) handleError(event models.GeofenceError) {
	c.log.Warn("geofence error",
		zap.String("identifier", event.Identifier), zap.String("error", event.Error))
}
