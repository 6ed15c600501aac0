package storage

import (
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrNotFound = errors.New("value with such key doesn't exist")
)

// Keys of device-local settings. The workplace radius lives here only; the
// workplace location itself is server-side user settings.
const (
	KeyWorkplaceRadius        = "workplace.radius"
	KeyAuthToken              = "auth.token"
	KeyNotificationPermission = "notifications.permission"
	KeyMonitoringEnabled      = "geofencing.enabled"
)

type Log interface {
	Info(string, ...zapcore.Field)
}

type Keeper interface {
	LoadSettings() (map[string]string, error)
	SaveSetting(string, string) error
	Ping() bool
	Close() error
}

// SettingsStorage keeps device-local settings in memory with write-through
// persistence to a keeper. With a nil keeper it degrades to memory-only.
type SettingsStorage struct {
	smx    sync.RWMutex
	values map[string]string
	keeper Keeper
	log    Log
}

func NewSettingsStorage(keeper Keeper, log Log) *SettingsStorage {
	values := make(map[string]string)

	if keeper != nil {
		var err error

		values, err = keeper.LoadSettings()
		if err != nil {
			log.Info("cannot load settings data: ", zap.Error(err))
			values = make(map[string]string)
		}
	}

	return &SettingsStorage{
		values: values,
		keeper: keeper,
		log:    log,
	}
}

func (s *SettingsStorage) Get(key string) (string, error) {
	s.smx.RLock()
	defer s.smx.RUnlock()

	v, exists := s.values[key]
	if !exists {
		return "", ErrNotFound
	}

	return v, nil
}

func (s *SettingsStorage) Set(key, value string) error {
	if s.keeper != nil {
		if err := s.keeper.SaveSetting(key, value); err != nil {
			return err
		}
	}

	s.smx.Lock()
	defer s.smx.Unlock()

	s.values[key] = value

	return nil
}

// WorkplaceRadius reads the device-local workplace radius in meters.
func (s *SettingsStorage) WorkplaceRadius() (int, error) {
	v, err := s.Get(KeyWorkplaceRadius)
	if err != nil {
		return 0, err
	}

	radius, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}

	return radius, nil
}

// SetWorkplaceRadius writes the radius as a plain decimal string so that a
// read-back equals the written value exactly.
func (s *SettingsStorage) SetWorkplaceRadius(radius int) error {
	return s.Set(KeyWorkplaceRadius, strconv.Itoa(radius))
}

func (s *SettingsStorage) GetBaseConnection() bool {
	if s.keeper == nil {
		return false
	}

	return s.keeper.Ping()
}
