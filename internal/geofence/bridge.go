package geofence

import (
	"context"
	"sync"
	"time"

	"github.com/timely-app/timelyd/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log interface {
	Debug(string, ...zapcore.Field)
	Info(string, ...zapcore.Field)
	Warn(string, ...zapcore.Field)
}

// Listener receives geofence enter or exit events.
type Listener func(models.GeofenceEvent)

// ErrorListener receives native monitoring errors.
type ErrorListener func(models.GeofenceError)

const (
	// recommendedMaxRadius is soft guidance: native region monitoring loses
	// accuracy above roughly this radius. Not enforced.
	recommendedMaxRadius = 200

	eventPollTimeout = 30 * time.Second
	pollRetryDelay   = time.Second
)

type registration struct {
	id int
	fn Listener
}

type errRegistration struct {
	id int
	fn ErrorListener
}

// Bridge presents a uniform capability surface over the selected Locator.
// Native failures never escape as errors or panics: operations degrade to
// boolean failure, and unavailability is logged at most once per process.
type Bridge struct {
	locator   Locator
	available bool
	log       Log

	warnOnce sync.Once

	lmx    sync.Mutex
	nextID int
	enter  []registration
	exit   []registration
	errs   []errRegistration
}

func NewBridge(locator Locator, log Log) *Bridge {
	return &Bridge{
		locator:   locator,
		available: locator.Available(),
		log:       log,
	}
}

// Available reports whether a native locator backs this bridge. Consumers
// must check it before relying on monitoring.
func (b *Bridge) Available() bool {
	return b.available
}

func (b *Bridge) warnUnavailable() {
	b.warnOnce.Do(func() {
		b.log.Warn("native geofencing capability is unavailable, monitoring operations degrade to no-ops")
	})
}

// StartMonitoring begins monitoring a circular region. Returns false when
// the capability is absent or the native call fails.
func (b *Bridge) StartMonitoring(identifier string, latitude, longitude float64, radiusMeters int) bool {
	if !b.available {
		b.warnUnavailable()
		return false
	}

	if radiusMeters > recommendedMaxRadius {
		b.log.Debug("geofence radius above recommended maximum, native accuracy may degrade",
			zap.Int("radius", radiusMeters), zap.Int("recommended", recommendedMaxRadius))
	}

	ok, err := b.locator.StartMonitoring(models.GeofenceRegion{
		Identifier: identifier,
		Latitude:   latitude,
		Longitude:  longitude,
		Radius:     radiusMeters,
	})
	if err != nil {
		b.log.Warn("start monitoring failed: ", zap.String("identifier", identifier), zap.Error(err))
		return false
	}

	return ok
}

func (b *Bridge) StopMonitoring(identifier string) bool {
	if !b.available {
		b.warnUnavailable()
		return false
	}

	ok, err := b.locator.StopMonitoring(identifier)
	if err != nil {
		b.log.Warn("stop monitoring failed: ", zap.String("identifier", identifier), zap.Error(err))
		return false
	}

	return ok
}

func (b *Bridge) StopAllMonitoring() bool {
	if !b.available {
		b.warnUnavailable()
		return false
	}

	ok, err := b.locator.StopAllMonitoring()
	if err != nil {
		b.log.Warn("stop all monitoring failed: ", zap.Error(err))
		return false
	}

	return ok
}

// MonitoredRegions returns identifiers of currently monitored regions, empty
// when the capability is absent.
func (b *Bridge) MonitoredRegions() []string {
	if !b.available {
		b.warnUnavailable()
		return []string{}
	}

	ids, err := b.locator.MonitoredRegions()
	if err != nil {
		b.log.Warn("cannot list monitored regions: ", zap.Error(err))
		return []string{}
	}

	if ids == nil {
		ids = []string{}
	}

	return ids
}

// RequestAlwaysAuthorization asks for background location permission. The
// fallback answer is notDetermined.
func (b *Bridge) RequestAlwaysAuthorization(ctx context.Context) models.PermissionStatus {
	if !b.available {
		b.warnUnavailable()
		return models.PermissionNotDetermined
	}

	if ctx.Err() != nil {
		return models.PermissionUnknown
	}

	status, err := b.locator.RequestAlwaysAuthorization()
	if err != nil {
		b.log.Warn("request always authorization failed: ", zap.Error(err))
		return models.PermissionUnknown
	}

	return status
}

func (b *Bridge) HasAlwaysAuthorization() bool {
	if !b.available {
		b.warnUnavailable()
		return false
	}

	ok, err := b.locator.HasAlwaysAuthorization()
	if err != nil {
		b.log.Warn("authorization query failed: ", zap.Error(err))
		return false
	}

	return ok
}

// OnEnter subscribes to region entry events and returns an unsubscribe
// handle. Without native capability the subscription is inert.
func (b *Bridge) OnEnter(listener Listener) func() {
	if !b.available {
		b.warnUnavailable()
		return func() {}
	}

	b.lmx.Lock()
	defer b.lmx.Unlock()

	b.nextID++
	id := b.nextID
	b.enter = append(b.enter, registration{id: id, fn: listener})

	return func() {
		b.lmx.Lock()
		defer b.lmx.Unlock()
		b.enter = removeRegistration(b.enter, id)
	}
}

// OnExit subscribes to region exit events, same contract as OnEnter.
func (b *Bridge) OnExit(listener Listener) func() {
	if !b.available {
		b.warnUnavailable()
		return func() {}
	}

	b.lmx.Lock()
	defer b.lmx.Unlock()

	b.nextID++
	id := b.nextID
	b.exit = append(b.exit, registration{id: id, fn: listener})

	return func() {
		b.lmx.Lock()
		defer b.lmx.Unlock()
		b.exit = removeRegistration(b.exit, id)
	}
}

// OnError subscribes to native monitoring errors, same contract as OnEnter.
func (b *Bridge) OnError(listener ErrorListener) func() {
	if !b.available {
		b.warnUnavailable()
		return func() {}
	}

	b.lmx.Lock()
	defer b.lmx.Unlock()

	b.nextID++
	id := b.nextID
	b.errs = append(b.errs, errRegistration{id: id, fn: listener})

	return func() {
		b.lmx.Lock()
		defer b.lmx.Unlock()
		b.errs = removeErrRegistration(b.errs, id)
	}
}

// RunBackground long-polls the native event stream and dispatches to
// listeners until the context is cancelled. The pump is never constructed in
// fallback mode, so no listener can ever fire there.
func (b *Bridge) RunBackground(ctx context.Context) {
	if !b.available {
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		event, err := b.locator.NextEvent(int(eventPollTimeout / time.Millisecond))
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			b.log.Debug("event poll failed, retrying: ", zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(pollRetryDelay):
			}

			continue
		}

		b.dispatch(event)
	}
}

func (b *Bridge) dispatch(event BridgeEvent) {
	switch event.Kind {
	case EventEnter:
		for _, reg := range b.snapshotListeners(&b.enter) {
			reg.fn(event.Event)
		}
	case EventExit:
		for _, reg := range b.snapshotListeners(&b.exit) {
			reg.fn(event.Event)
		}
	case EventError:
		b.lmx.Lock()
		listeners := make([]errRegistration, len(b.errs))
		copy(listeners, b.errs)
		b.lmx.Unlock()

		for _, reg := range listeners {
			reg.fn(event.Err)
		}
	case EventNone:
		// poll timeout, nothing to deliver
	}
}

func (b *Bridge) snapshotListeners(src *[]registration) []registration {
	b.lmx.Lock()
	defer b.lmx.Unlock()

	listeners := make([]registration, len(*src))
	copy(listeners, *src)

	return listeners
}

// Close releases the native helper, if any.
func (b *Bridge) Close() error {
	return b.locator.Close()
}

func removeRegistration(regs []registration, id int) []registration {
	out := regs[:0]
	for _, reg := range regs {
		if reg.id != id {
			out = append(out, reg)
		}
	}

	return out
}

func removeErrRegistration(regs []errRegistration, id int) []errRegistration {
	out := regs[:0]
	for _, reg := range regs {
		if reg.id != id {
			out = append(out, reg)
		}
	}

	return out
}
