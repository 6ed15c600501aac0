package autoclock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/timely-app/timelyd/internal/geofence"
	"github.com/timely-app/timelyd/internal/models"
	"github.com/timely-app/timelyd/internal/storage"
	"go.uber.org/zap/zapcore"
)

type testLog struct{}

func (testLog) Debug(string, ...zapcore.Field) {}
func (testLog) Info(string, ...zapcore.Field)  {}
func (testLog) Warn(string, ...zapcore.Field)  {}

// fakeBridge is an in-process Bridge with scriptable native behavior.
type fakeBridge struct {
	available bool
	hasAuth   bool
	authReply models.PermissionStatus
	startOK   bool

	monitored []string
	started   []models.GeofenceRegion
	stopped   []string

	enter geofence.Listener
	exit  geofence.Listener
	errs  geofence.ErrorListener
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{available: true, hasAuth: true, startOK: true}
}

func (b *fakeBridge) Available() bool { return b.available }

func (b *fakeBridge) StartMonitoring(identifier string, latitude, longitude float64, radiusMeters int) bool {
	if !b.startOK {
		return false
	}

	b.started = append(b.started, models.GeofenceRegion{
		Identifier: identifier,
		Latitude:   latitude,
		Longitude:  longitude,
		Radius:     radiusMeters,
	})
	b.monitored = append(b.monitored, identifier)

	return true
}

func (b *fakeBridge) StopMonitoring(identifier string) bool {
	b.stopped = append(b.stopped, identifier)

	kept := b.monitored[:0]
	for _, id := range b.monitored {
		if id != identifier {
			kept = append(kept, id)
		}
	}
	b.monitored = kept

	return true
}

func (b *fakeBridge) MonitoredRegions() []string { return b.monitored }

func (b *fakeBridge) RequestAlwaysAuthorization(ctx context.Context) models.PermissionStatus {
	return b.authReply
}

func (b *fakeBridge) HasAlwaysAuthorization() bool { return b.hasAuth }

func (b *fakeBridge) OnEnter(listener geofence.Listener) func() {
	b.enter = listener
	return func() { b.enter = nil }
}

func (b *fakeBridge) OnExit(listener geofence.Listener) func() {
	b.exit = listener
	return func() { b.exit = nil }
}

func (b *fakeBridge) OnError(listener geofence.ErrorListener) func() {
	b.errs = listener
	return func() { b.errs = nil }
}

// MockAPI is a mock implementation of the API interface
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) ClockInDraft(ctx context.Context, hour time.Time, location *models.GeoPoint) error {
	args := m.Called(ctx, hour, location)
	return args.Error(0)
}

func (m *MockAPI) ClockOutDraft(ctx context.Context, hour time.Time, location *models.GeoPoint) error {
	args := m.Called(ctx, hour, location)
	return args.Error(0)
}

func (m *MockAPI) UpdateWorkLocation(ctx context.Context, location models.GeoPoint) error {
	args := m.Called(ctx, location)
	return args.Error(0)
}

func (m *MockAPI) GetUserSettings(ctx context.Context) (models.UserSettings, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.UserSettings), args.Error(1)
}

// MockAnnouncer is a mock implementation of the Announcer interface
type MockAnnouncer struct {
	mock.Mock
}

func (m *MockAnnouncer) PresentNow(ctx context.Context, title, body string) error {
	args := m.Called(ctx, title, body)
	return args.Error(0)
}

type fixture struct {
	bridge     *fakeBridge
	api        *MockAPI
	settings   *storage.SettingsStorage
	announcer  *MockAnnouncer
	controller *Controller
}

func newFixture(t *testing.T, entitled bool, minDwell time.Duration) *fixture {
	t.Helper()

	list := ""
	if entitled {
		list = EntitlementGeofencing
	}

	f := &fixture{
		bridge:    newFakeBridge(),
		api:       new(MockAPI),
		settings:  storage.NewSettingsStorage(nil, testLog{}),
		announcer: new(MockAnnouncer),
	}

	f.controller = NewController(f.bridge, f.api, f.settings, NewStaticEntitlements(list),
		f.announcer, "workplace", minDwell, testLog{})
	t.Cleanup(f.controller.Close)

	return f
}

func (f *fixture) withWorkplace() *fixture {
	_ = f.settings.SetWorkplaceRadius(120)

	location := models.NewGeoPoint(48.8566, 2.3522)
	f.api.On("GetUserSettings", mock.Anything).Return(models.UserSettings{WorkLocation: &location}, nil)

	return f
}

func TestToggleMonitoring(t *testing.T) {
	t.Run("Requires Entitlement", func(t *testing.T) {
		f := newFixture(t, false, time.Hour)

		_, err := f.controller.ToggleMonitoring(context.Background(), true)

		assert.ErrorIs(t, err, ErrNotEntitled)
		assert.Empty(t, f.bridge.started)
	})

	t.Run("Requires Capability", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)
		f.bridge.available = false

		_, err := f.controller.ToggleMonitoring(context.Background(), true)

		assert.ErrorIs(t, err, ErrBridgeUnavailable)
	})

	t.Run("On Starts Monitoring And Persists", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()

		ok, err := f.controller.ToggleMonitoring(context.Background(), true)

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, f.bridge.started, 1)
		assert.Equal(t, "workplace", f.bridge.started[0].Identifier)
		assert.Equal(t, 120, f.bridge.started[0].Radius)

		enabled, err := f.settings.Get(storage.KeyMonitoringEnabled)
		assert.NoError(t, err)
		assert.Equal(t, "true", enabled)
	})

	t.Run("Off Stops Monitoring And Persists", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()

		_, err := f.controller.ToggleMonitoring(context.Background(), true)
		assert.NoError(t, err)

		ok, err := f.controller.ToggleMonitoring(context.Background(), false)

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Contains(t, f.bridge.stopped, "workplace")
		assert.Empty(t, f.bridge.monitored)

		enabled, err := f.settings.Get(storage.KeyMonitoringEnabled)
		assert.NoError(t, err)
		assert.Equal(t, "false", enabled)
	})

	t.Run("On Without Radius", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)

		_, err := f.controller.ToggleMonitoring(context.Background(), true)

		assert.ErrorIs(t, err, ErrNoLocation)
	})

	t.Run("On Without Remote Location", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)
		_ = f.settings.SetWorkplaceRadius(120)
		f.api.On("GetUserSettings", mock.Anything).Return(models.UserSettings{}, nil)

		_, err := f.controller.ToggleMonitoring(context.Background(), true)

		assert.ErrorIs(t, err, ErrNoLocation)
	})

	t.Run("Permission Denied Is Not Retried", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()
		f.bridge.hasAuth = false
		f.bridge.authReply = models.PermissionDenied

		_, err := f.controller.ToggleMonitoring(context.Background(), true)

		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.Empty(t, f.bridge.started)

		_, gerr := f.settings.Get(storage.KeyMonitoringEnabled)
		assert.ErrorIs(t, gerr, storage.ErrNotFound)
	})

	t.Run("Permission Granted On Request", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()
		f.bridge.hasAuth = false
		f.bridge.authReply = models.PermissionGranted

		ok, err := f.controller.ToggleMonitoring(context.Background(), true)

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Len(t, f.bridge.started, 1)
	})

	t.Run("Native Start Failure", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()
		f.bridge.startOK = false

		_, err := f.controller.ToggleMonitoring(context.Background(), true)

		assert.ErrorIs(t, err, ErrMonitoringFailed)
	})
}

func TestSetLocation(t *testing.T) {
	t.Run("Radius Bounds", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)

		assert.ErrorIs(t, f.controller.SetLocation(context.Background(), 48.85, 2.35, MinRadius-1), ErrRadiusOutOfRange)
		assert.ErrorIs(t, f.controller.SetLocation(context.Background(), 48.85, 2.35, MaxRadius+1), ErrRadiusOutOfRange)

		f.api.AssertNotCalled(t, "UpdateWorkLocation", mock.Anything, mock.Anything)
	})

	t.Run("Persists Remote Location And Local Radius", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)
		f.api.On("UpdateWorkLocation", mock.Anything, mock.Anything).Return(nil)

		err := f.controller.SetLocation(context.Background(), 48.8566, 2.3522, 250)

		assert.NoError(t, err)

		radius, rerr := f.settings.WorkplaceRadius()
		assert.NoError(t, rerr)
		assert.Equal(t, 250, radius)

		f.api.AssertCalled(t, "UpdateWorkLocation", mock.Anything, models.NewGeoPoint(48.8566, 2.3522))
		// monitoring was off, nothing to restart
		assert.Empty(t, f.bridge.started)
	})

	t.Run("Restarts Active Monitoring", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()
		f.api.On("UpdateWorkLocation", mock.Anything, mock.Anything).Return(nil)

		_, err := f.controller.ToggleMonitoring(context.Background(), true)
		assert.NoError(t, err)

		err = f.controller.SetLocation(context.Background(), 51.5074, -0.1278, 80)

		assert.NoError(t, err)
		assert.Contains(t, f.bridge.stopped, "workplace")
		assert.Len(t, f.bridge.started, 2)
		assert.Equal(t, 80, f.bridge.started[1].Radius)
		assert.Equal(t, 51.5074, f.bridge.started[1].Latitude)
	})

	t.Run("Radius Round Trip", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)
		f.api.On("UpdateWorkLocation", mock.Anything, mock.Anything).Return(nil)

		for _, radius := range []int{MinRadius, 137, MaxRadius} {
			assert.NoError(t, f.controller.SetLocation(context.Background(), 48.85, 2.35, radius))

			stored, err := f.settings.WorkplaceRadius()
			assert.NoError(t, err)
			assert.Equal(t, radius, stored)
		}
	})
}

func TestResume(t *testing.T) {
	t.Run("Restores Enabled Monitoring", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()
		_ = f.settings.Set(storage.KeyMonitoringEnabled, "true")

		f.controller.Resume(context.Background())

		assert.Len(t, f.bridge.started, 1)
	})

	t.Run("Stays Off When Disabled", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()
		_ = f.settings.Set(storage.KeyMonitoringEnabled, "false")

		f.controller.Resume(context.Background())

		assert.Empty(t, f.bridge.started)
	})

	t.Run("Failure Is Not Fatal", func(t *testing.T) {
		f := newFixture(t, false, time.Hour)
		_ = f.settings.Set(storage.KeyMonitoringEnabled, "true")

		f.controller.Resume(context.Background())

		assert.Empty(t, f.bridge.started)
	})
}

func TestRefreshStatus(t *testing.T) {
	t.Run("Unavailable Bridge", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)
		f.bridge.available = false

		status := f.controller.RefreshStatus(context.Background())

		assert.Equal(t, models.GeofencingStatus{}, status)
	})

	t.Run("Monitoring And Location Set", func(t *testing.T) {
		f := newFixture(t, true, time.Hour).withWorkplace()

		_, err := f.controller.ToggleMonitoring(context.Background(), true)
		assert.NoError(t, err)

		status := f.controller.RefreshStatus(context.Background())

		assert.True(t, status.Available)
		assert.True(t, status.Monitoring)
		assert.True(t, status.HasPermission)
		assert.True(t, status.LocationSet)
	})
}

func TestGeofenceReactions(t *testing.T) {
	t.Run("Enter Creates Draft Clock In", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)
		f.api.On("ClockInDraft", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.announcer.On("PresentNow", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		f.bridge.enter(models.GeofenceEvent{Identifier: "workplace", Latitude: 48.85, Longitude: 2.35})

		f.api.AssertNumberOfCalls(t, "ClockInDraft", 1)
		f.announcer.AssertNumberOfCalls(t, "PresentNow", 1)
	})

	t.Run("Flapping Within Dwell Window Is Dropped", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)
		f.api.On("ClockInDraft", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.announcer.On("PresentNow", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		event := models.GeofenceEvent{Identifier: "workplace"}
		f.bridge.enter(event)
		f.bridge.exit(event)
		f.bridge.enter(event)

		f.api.AssertNumberOfCalls(t, "ClockInDraft", 1)
		f.api.AssertNotCalled(t, "ClockOutDraft", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Exit After Dwell Creates Draft Clock Out", func(t *testing.T) {
		f := newFixture(t, true, 20*time.Millisecond)
		f.api.On("ClockInDraft", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.api.On("ClockOutDraft", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.announcer.On("PresentNow", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		event := models.GeofenceEvent{Identifier: "workplace"}
		f.bridge.enter(event)
		time.Sleep(50 * time.Millisecond)
		f.bridge.exit(event)

		f.api.AssertNumberOfCalls(t, "ClockInDraft", 1)
		f.api.AssertNumberOfCalls(t, "ClockOutDraft", 1)
		f.announcer.AssertNumberOfCalls(t, "PresentNow", 2)
	})

	t.Run("Draft Failure Skips Announcement", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)
		f.api.On("ClockInDraft", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

		f.bridge.enter(models.GeofenceEvent{Identifier: "workplace"})

		f.announcer.AssertNotCalled(t, "PresentNow", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error Events Are Logged Only", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)

		assert.NotPanics(t, func() {
			f.bridge.errs(models.GeofenceError{Identifier: "workplace", Error: "monitoring failed"})
		})
	})

	t.Run("Close Detaches Listeners", func(t *testing.T) {
		f := newFixture(t, true, time.Hour)

		f.controller.Close()

		assert.Nil(t, f.bridge.enter)
		assert.Nil(t, f.bridge.exit)
		assert.Nil(t, f.bridge.errs)
	})
}
