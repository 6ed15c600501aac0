package geofence

import (
	"github.com/timely-app/timelyd/internal/models"
)

// fallbackLocator is the inert variant selected when the native helper is
// absent. Every operation returns its zero result and never errors.
type fallbackLocator struct{}

func newFallbackLocator() Locator {
	return fallbackLocator{}
}

func (fallbackLocator) Available() bool {
	return false
}

func (fallbackLocator) StartMonitoring(models.GeofenceRegion) (bool, error) {
	return false, nil
}

func (fallbackLocator) StopMonitoring(string) (bool, error) {
	return false, nil
}

func (fallbackLocator) StopAllMonitoring() (bool, error) {
	return false, nil
}

func (fallbackLocator) MonitoredRegions() ([]string, error) {
	return nil, nil
}

func (fallbackLocator) RequestAlwaysAuthorization() (models.PermissionStatus, error) {
	return models.PermissionNotDetermined, nil
}

func (fallbackLocator) HasAlwaysAuthorization() (bool, error) {
	return false, nil
}

func (fallbackLocator) NextEvent(int) (BridgeEvent, error) {
	return BridgeEvent{Kind: EventNone}, nil
}

func (fallbackLocator) Close() error {
	return nil
}
