package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timely-app/timelyd/internal/models"
	"github.com/timely-app/timelyd/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Log interface {
	Debug(string, ...zapcore.Field)
	Info(string, ...zapcore.Field)
}

// Keeper persists the scheduled-notification queue.
type Keeper interface {
	SaveNotification(models.ScheduledNotification) error
	LoadNotifications() ([]models.ScheduledNotification, error)
	DeleteAllNotifications() error
}

// Settings holds the notification permission state.
type Settings interface {
	Get(string) (string, error)
	Set(string, string) error
}

// Presenter renders a due notification to the user (desktop notification,
// log line, test double).
type Presenter interface {
	Present(ctx context.Context, title, body string) error
}

// Suppressor is consulted before presenting: while a reschedule sequence is
// in flight no notification may pop.
type Suppressor interface {
	Suppressed() bool
}

// Service implements the local-notification collaborator contract for a
// headless daemon: a persistent trigger queue plus a ticker-driven firing
// loop for recurring weekly triggers.
type Service struct {
	keeper     Keeper
	settings   Settings
	presenter  Presenter
	suppressor Suppressor
	log        Log
	interval   time.Duration

	nmx     sync.RWMutex
	pending []models.ScheduledNotification

	fmx       sync.Mutex
	lastFired map[string]string
}

func NewService(keeper Keeper, settings Settings, presenter Presenter, suppressor Suppressor,
	interval time.Duration, log Log,
) *Service {
	var pending []models.ScheduledNotification

	if keeper != nil {
		var err error

		pending, err = keeper.LoadNotifications()
		if err != nil {
			log.Info("cannot load scheduled notifications: ", zap.Error(err))
		}
	}

	return &Service{
		keeper:     keeper,
		settings:   settings,
		presenter:  presenter,
		suppressor: suppressor,
		log:        log,
		interval:   interval,
		pending:    pending,
		lastFired:  make(map[string]string),
	}
}

// Permissions returns the stored notification permission status.
func (s *Service) Permissions() models.PermissionStatus {
	v, err := s.settings.Get(storage.KeyNotificationPermission)
	if err != nil {
		return models.PermissionNotDetermined
	}

	return models.PermissionStatus(v)
}

// RequestPermissions grants and persists notification permission. The daemon
// owns its notification channel, so a request is always granted unless the
// user has explicitly stored a denial.
func (s *Service) RequestPermissions(ctx context.Context) (bool, error) {
	if s.Permissions() == models.PermissionDenied {
		return false, nil
	}

	if err := s.settings.Set(storage.KeyNotificationPermission, string(models.PermissionGranted)); err != nil {
		return false, err
	}

	return true, nil
}

// ScheduleRepeating registers a weekly recurring trigger and returns its id.
func (s *Service) ScheduleRepeating(ctx context.Context, title, body string,
	weekday time.Weekday, hour, minute int,
) (string, error) {
	notification := models.ScheduledNotification{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      body,
		Weekday:   int(weekday),
		Hour:      hour,
		Minute:    minute,
		Repeats:   true,
		CreatedAt: time.Now(),
	}

	if s.keeper != nil {
		if err := s.keeper.SaveNotification(notification); err != nil {
			return "", err
		}
	}

	s.nmx.Lock()
	defer s.nmx.Unlock()

	s.pending = append(s.pending, notification)

	return notification.ID, nil
}

// CancelAll wipes the whole queue. This is the only cancellation primitive
// and it is global: the daemon assumes it owns the entire notification
// namespace.
func (s *Service) CancelAll(ctx context.Context) error {
	if s.keeper != nil {
		if err := s.keeper.DeleteAllNotifications(); err != nil {
			return err
		}
	}

	s.nmx.Lock()
	defer s.nmx.Unlock()

	s.pending = nil

	return nil
}

// Scheduled lists all registered triggers.
func (s *Service) Scheduled(ctx context.Context) ([]models.ScheduledNotification, error) {
	s.nmx.RLock()
	defer s.nmx.RUnlock()

	out := make([]models.ScheduledNotification, len(s.pending))
	copy(out, s.pending)

	return out, nil
}

// PresentNow shows an immediate notification, bypassing the trigger queue.
// Used for geofence enter/exit announcements.
func (s *Service) PresentNow(ctx context.Context, title, body string) error {
	if s.suppressor != nil && s.suppressor.Suppressed() {
		s.log.Debug("notification suppressed during reschedule", zap.String("title", title))
		return nil
	}

	return s.presenter.Present(ctx, title, body)
}

// RunBackground fires due recurring triggers until the context is cancelled.
func (s *Service) RunBackground(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.fireDue(ctx, now)
		}
	}
}

func (s *Service) fireDue(ctx context.Context, now time.Time) {
	s.nmx.RLock()
	due := make([]models.ScheduledNotification, 0)
	for _, n := range s.pending {
		if int(now.Weekday()) == n.Weekday && now.Hour() == n.Hour && now.Minute() == n.Minute {
			due = append(due, n)
		}
	}
	s.nmx.RUnlock()

	if len(due) == 0 {
		return
	}

	slot := now.Format("2006-01-02 15:04")

	for _, n := range due {
		s.fmx.Lock()
		fired := s.lastFired[n.ID] == slot
		if !fired {
			s.lastFired[n.ID] = slot
		}
		s.fmx.Unlock()

		if fired {
			continue
		}

		if s.suppressor != nil && s.suppressor.Suppressed() {
			s.log.Debug("due notification withheld during reschedule", zap.String("id", n.ID))
			continue
		}

		if err := s.presenter.Present(ctx, n.Title, n.Body); err != nil {
			s.log.Info("cannot present notification: ", zap.String("id", n.ID), zap.Error(err))
		}
	}
}

// LogPresenter renders notifications as log lines; the default presenter for
// environments without a desktop notification channel.
type LogPresenter struct {
	Log Log
}

func (p LogPresenter) Present(ctx context.Context, title, body string) error {
	p.Log.Info("notification", zap.String("title", title), zap.String("body", body))
	return nil
}
