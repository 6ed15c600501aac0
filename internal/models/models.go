package models

import (
	"time"
)

// ClockAction is the type of a single clock event.
type ClockAction string

const (
	ClockIn  ClockAction = "CLOCK_IN"
	ClockOut ClockAction = "CLOCK_OUT"
)

// GeoPoint is a GeoJSON point. Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func NewGeoPoint(latitude, longitude float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{longitude, latitude}}
}

func (p GeoPoint) Latitude() float64 {
	return p.Coordinates[1]
}

func (p GeoPoint) Longitude() float64 {
	return p.Coordinates[0]
}

// ClockEvent represents a single timestamped clock-in or clock-out action as
// returned by the server. Ordering within a day is by Hour ascending but is
// not guaranteed internally consistent.
type ClockEvent struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	Hour       time.Time   `json:"hour"`
	Action     ClockAction `json:"action"`
	WorkedTime string      `json:"workedTime,omitempty"`
	Location   *GeoPoint   `json:"location,omitempty"`
	PhotoURL   string      `json:"photoUrl,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	IsDraft    bool        `json:"isDraft,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// DayStatus classifies worked time against the expected-hours baseline.
type DayStatus string

const (
	StatusOver  DayStatus = "over"
	StatusUnder DayStatus = "under"
	StatusExact DayStatus = "exact"
)

// ClockHistoryDay aggregates one calendar date's events plus server-derived
// totals. Derived fields are recomputed server-side on every fetch and are
// passed through unmodified.
type ClockHistoryDay struct {
	Date                     string       `json:"date"`
	TotalHours               float64      `json:"totalHours"`
	TotalWorkedTime          string       `json:"totalWorkedTime"`
	ExpectedHours            float64      `json:"expectedHours,omitempty"`
	ExpectedHoursFormatted   string       `json:"expectedHoursFormatted,omitempty"`
	HoursDifference          float64      `json:"hoursDifference,omitempty"`
	HoursDifferenceFormatted string       `json:"hoursDifferenceFormatted,omitempty"`
	Status                   DayStatus    `json:"status,omitempty"`
	Events                   []ClockEvent `json:"events"`
}

// ClockHistorySummary is the month-level aggregate of a history response.
type ClockHistorySummary struct {
	TotalWorkedHours            float64   `json:"totalWorkedHours"`
	TotalWorkedHoursFormatted   string    `json:"totalWorkedHoursFormatted"`
	TotalExpectedHours          float64   `json:"totalExpectedHours"`
	TotalExpectedHoursFormatted string    `json:"totalExpectedHoursFormatted"`
	HoursDifference             float64   `json:"hoursDifference"`
	HoursDifferenceFormatted    string    `json:"hoursDifferenceFormatted"`
	Status                      DayStatus `json:"status"`
	DaysWorked                  int       `json:"daysWorked"`
	DaysWithSchedule            int       `json:"daysWithSchedule"`
	AverageHoursPerDay          float64   `json:"averageHoursPerDay"`
	AverageHoursPerDayFormatted string    `json:"averageHoursPerDayFormatted"`
	TotalDays                   int       `json:"totalDays"`
}

// ClockHistory is the payload of GET /clockin/history.
type ClockHistory struct {
	Data    []ClockHistoryDay   `json:"data"`
	Summary ClockHistorySummary `json:"summary"`
}

// WorkScheduleDay is a single weekday's working interval, "HH:mm" both ends.
// Invariant: Start < End lexically as time of day.
type WorkScheduleDay struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkSchedule maps weekday names (monday..sunday, all optional) to working
// intervals. Days absent from the map have no reminders and contribute zero
// expected hours.
type WorkSchedule map[string]WorkScheduleDay

// Weekdays is the canonical iteration order for a WorkSchedule.
var Weekdays = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// WeekdayIndex maps schedule day names to calendar weekday numbers,
// 0=Sunday..6=Saturday.
var WeekdayIndex = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// UserSettings is the remote user-settings document. The workplace radius is
// deliberately absent here: it is persisted device-local only.
type UserSettings struct {
	ID           string       `json:"id"`
	WorkSchedule WorkSchedule `json:"workSchedule,omitempty"`
	WorkLocation *GeoPoint    `json:"workLocation,omitempty"`
}

// GeofenceRegion is a circular monitored region. Radius is meters; the app
// layer keeps it within 50..500.
type GeofenceRegion struct {
	Identifier string  `json:"identifier"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Radius     int     `json:"radius"`
}

// GeofenceEvent is delivered on the enter/exit channels of the native
// locator. Timestamp is unix milliseconds.
type GeofenceEvent struct {
	Identifier string  `json:"identifier"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Radius     float64 `json:"radius"`
	Timestamp  int64   `json:"timestamp"`
}

// GeofenceError is delivered on the error channel of the native locator.
type GeofenceError struct {
	Identifier string `json:"identifier"`
	Error      string `json:"error"`
}

// PermissionStatus is the result of a location-authorization request.
type PermissionStatus string

const (
	PermissionGranted       PermissionStatus = "granted"
	PermissionDenied        PermissionStatus = "denied"
	PermissionRestricted    PermissionStatus = "restricted"
	PermissionNotDetermined PermissionStatus = "notDetermined"
	PermissionWhenInUse     PermissionStatus = "whenInUse"
	PermissionUnknown       PermissionStatus = "unknown"
)

// GeofencingStatus is the controller state re-derived on demand.
type GeofencingStatus struct {
	Available     bool `json:"available"`
	Monitoring    bool `json:"monitoring"`
	HasPermission bool `json:"hasPermission"`
	LocationSet   bool `json:"locationSet"`
}

// ScheduledNotification is one recurring local reminder trigger,
// weekday 0=Sunday..6=Saturday.
type ScheduledNotification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Weekday   int       `json:"weekday"`
	Hour      int       `json:"hour"`
	Minute    int       `json:"minute"`
	Repeats   bool      `json:"repeats"`
	CreatedAt time.Time `json:"created_at"`
}
