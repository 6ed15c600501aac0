package geofence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/timely-app/timelyd/internal/models"
	"go.uber.org/zap/zapcore"
)

type testLog struct{}

func (testLog) Debug(string, ...zapcore.Field) {}
func (testLog) Info(string, ...zapcore.Field)  {}
func (testLog) Warn(string, ...zapcore.Field)  {}

// stubLocator is an in-process Locator standing in for the helper binary.
type stubLocator struct {
	regions   []models.GeofenceRegion
	hasAuth   bool
	authReply models.PermissionStatus
	startOK   bool
	failWith  error
	events    chan BridgeEvent
}

func newStubLocator() *stubLocator {
	return &stubLocator{
		startOK:   true,
		authReply: models.PermissionGranted,
		events:    make(chan BridgeEvent, 8),
	}
}

func (s *stubLocator) Available() bool { return true }

func (s *stubLocator) StartMonitoring(region models.GeofenceRegion) (bool, error) {
	if s.failWith != nil {
		return false, s.failWith
	}
	s.regions = append(s.regions, region)
	return s.startOK, nil
}

func (s *stubLocator) StopMonitoring(identifier string) (bool, error) {
	if s.failWith != nil {
		return false, s.failWith
	}

	kept := s.regions[:0]
	for _, r := range s.regions {
		if r.Identifier != identifier {
			kept = append(kept, r)
		}
	}
	s.regions = kept

	return true, nil
}

func (s *stubLocator) StopAllMonitoring() (bool, error) {
	s.regions = nil
	return true, nil
}

func (s *stubLocator) MonitoredRegions() ([]string, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}

	var ids []string
	for _, r := range s.regions {
		ids = append(ids, r.Identifier)
	}

	return ids, nil
}

func (s *stubLocator) RequestAlwaysAuthorization() (models.PermissionStatus, error) {
	return s.authReply, nil
}

func (s *stubLocator) HasAlwaysAuthorization() (bool, error) {
	return s.hasAuth, nil
}

func (s *stubLocator) NextEvent(timeoutMillis int) (BridgeEvent, error) {
	select {
	case event := <-s.events:
		return event, nil
	case <-time.After(time.Duration(timeoutMillis) * time.Millisecond):
		return BridgeEvent{Kind: EventNone}, nil
	}
}

func (s *stubLocator) Close() error { return nil }

func TestBridgeFallbackMode(t *testing.T) {
	locator := Probe(func() string { return "" }, testLog{})
	bridge := NewBridge(locator, testLog{})

	assert.False(t, bridge.Available())
	assert.False(t, bridge.StartMonitoring("workplace", 48.85, 2.35, 100))
	assert.False(t, bridge.StopMonitoring("workplace"))
	assert.False(t, bridge.StopAllMonitoring())
	assert.False(t, bridge.HasAlwaysAuthorization())

	regions := bridge.MonitoredRegions()
	assert.NotNil(t, regions)
	assert.Empty(t, regions)

	status := bridge.RequestAlwaysAuthorization(context.Background())
	assert.Equal(t, models.PermissionNotDetermined, status)
}

func TestBridgeFallbackListenersAreInert(t *testing.T) {
	locator := Probe(func() string { return "" }, testLog{})
	bridge := NewBridge(locator, testLog{})

	fired := false
	unsubscribe := bridge.OnEnter(func(models.GeofenceEvent) { fired = true })
	assert.NotNil(t, unsubscribe)
	unsubscribe()

	// the pump returns immediately without native capability
	done := make(chan struct{})
	go func() {
		bridge.RunBackground(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fallback pump did not return")
	}

	assert.False(t, fired)
}

func TestBridgeProbeMissingHelper(t *testing.T) {
	locator := Probe(func() string { return "/nonexistent/locator-helper" }, testLog{})

	assert.False(t, locator.Available())
}

func TestBridgeStartMonitoring(t *testing.T) {
	locator := newStubLocator()
	bridge := NewBridge(locator, testLog{})

	assert.True(t, bridge.Available())
	assert.True(t, bridge.StartMonitoring("workplace", 48.85, 2.35, 150))

	assert.Len(t, locator.regions, 1)
	assert.Equal(t, "workplace", locator.regions[0].Identifier)
	assert.Equal(t, 150, locator.regions[0].Radius)
	assert.Equal(t, []string{"workplace"}, bridge.MonitoredRegions())

	assert.True(t, bridge.StopMonitoring("workplace"))
	assert.Empty(t, bridge.MonitoredRegions())
}

func TestBridgeNativeFailureDegradesToFalse(t *testing.T) {
	locator := newStubLocator()
	locator.failWith = errors.New("CLLocationManager unavailable")
	bridge := NewBridge(locator, testLog{})

	assert.False(t, bridge.StartMonitoring("workplace", 48.85, 2.35, 100))
	assert.False(t, bridge.StopMonitoring("workplace"))

	regions := bridge.MonitoredRegions()
	assert.NotNil(t, regions)
	assert.Empty(t, regions)
}

func TestBridgeDispatch(t *testing.T) {
	locator := newStubLocator()
	bridge := NewBridge(locator, testLog{})

	var entered, exited []models.GeofenceEvent
	var failures []models.GeofenceError

	bridge.OnEnter(func(e models.GeofenceEvent) { entered = append(entered, e) })
	bridge.OnExit(func(e models.GeofenceEvent) { exited = append(exited, e) })
	bridge.OnError(func(e models.GeofenceError) { failures = append(failures, e) })

	bridge.dispatch(BridgeEvent{Kind: EventEnter, Event: models.GeofenceEvent{Identifier: "workplace"}})
	bridge.dispatch(BridgeEvent{Kind: EventExit, Event: models.GeofenceEvent{Identifier: "workplace"}})
	bridge.dispatch(BridgeEvent{Kind: EventError, Err: models.GeofenceError{Identifier: "workplace", Error: "denied"}})
	bridge.dispatch(BridgeEvent{Kind: EventNone})

	assert.Len(t, entered, 1)
	assert.Len(t, exited, 1)
	assert.Len(t, failures, 1)
	assert.Equal(t, "workplace", entered[0].Identifier)
}

func TestBridgeUnsubscribe(t *testing.T) {
	locator := newStubLocator()
	bridge := NewBridge(locator, testLog{})

	var first, second int

	unsubscribe := bridge.OnEnter(func(models.GeofenceEvent) { first++ })
	bridge.OnEnter(func(models.GeofenceEvent) { second++ })

	bridge.dispatch(BridgeEvent{Kind: EventEnter})
	unsubscribe()
	bridge.dispatch(BridgeEvent{Kind: EventEnter})

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestBridgeRunBackgroundDeliversEvents(t *testing.T) {
	locator := newStubLocator()
	bridge := NewBridge(locator, testLog{})

	delivered := make(chan models.GeofenceEvent, 1)
	bridge.OnEnter(func(e models.GeofenceEvent) { delivered <- e })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.RunBackground(ctx)

	locator.events <- BridgeEvent{Kind: EventEnter, Event: models.GeofenceEvent{Identifier: "workplace"}}

	select {
	case event := <-delivered:
		assert.Equal(t, "workplace", event.Identifier)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}
