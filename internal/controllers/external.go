package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/timely-app/timelyd/internal/models"
	"go.uber.org/zap"
)

// Tokens attaches authorization to outgoing requests.
type Tokens interface {
	Authorize(*http.Request) error
}

// ExtController issues requests against the remote time-tracking API. The
// transport is opaque to the core: responses are decoded straight into the
// data model.
type ExtController struct {
	client  *http.Client
	tokens  Tokens
	log     Log
	extAddr func() string
}

func NewExtController(extAddr func() string, tokens Tokens, log Log) *ExtController {
	const requestTimeout = 15 * time.Second

	return &ExtController{
		client:  &http.Client{Timeout: requestTimeout},
		tokens:  tokens,
		log:     log,
		extAddr: extAddr,
	}
}

func (c *ExtController) baseURL() string {
	addr := c.extAddr()

	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "https://" + addr
	}

	return strings.TrimSuffix(addr, "/")
}

func (c *ExtController) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if err := c.tokens.Authorize(req); err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Info("unable to access the time-tracking API: ", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.log.Info("status code error: ", zap.String("status", resp.Status), zap.String("path", path))
		return fmt.Errorf("status code error: %s", resp.Status)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// GetClockHistory fetches the reconciliation input for a date range
// (dates are "YYYY-MM-DD").
func (c *ExtController) GetClockHistory(ctx context.Context, startDate, endDate string) (models.ClockHistory, error) {
	query := url.Values{}
	query.Set("startDate", startDate)
	query.Set("endDate", endDate)

	var out models.ClockHistory
	if err := c.do(ctx, http.MethodGet, "/clockin/history", query, nil, &out); err != nil {
		return models.ClockHistory{}, err
	}

	return out, nil
}

// GetUserSettings fetches the remote user-settings document (work schedule,
// workplace location).
func (c *ExtController) GetUserSettings(ctx context.Context) (models.UserSettings, error) {
	var out models.UserSettings
	if err := c.do(ctx, http.MethodGet, "/users/settings", nil, nil, &out); err != nil {
		return models.UserSettings{}, err
	}

	return out, nil
}

// UpdateWorkLocation persists the workplace location server-side. The radius
// is not part of the remote document.
func (c *ExtController) UpdateWorkLocation(ctx context.Context, location models.GeoPoint) error {
	body := map[string]models.GeoPoint{"workLocation": location}

	return c.do(ctx, http.MethodPut, "/users/settings", nil, body, nil)
}

// UpdateWorkSchedule persists the weekly work schedule server-side.
func (c *ExtController) UpdateWorkSchedule(ctx context.Context, schedule models.WorkSchedule) error {
	body := map[string]models.WorkSchedule{"workSchedule": schedule}

	return c.do(ctx, http.MethodPut, "/users/settings", nil, body, nil)
}

type draftRequest struct {
	Hour     string           `json:"hour"`
	Location *models.GeoPoint `json:"location,omitempty"`
}

// ClockInDraft creates a draft clock-in entry, pending user confirmation.
func (c *ExtController) ClockInDraft(ctx context.Context, hour time.Time, location *models.GeoPoint) error {
	body := draftRequest{Hour: hour.UTC().Format(time.RFC3339), Location: location}

	return c.do(ctx, http.MethodPost, "/clockin/draft", nil, body, nil)
}

// ClockOutDraft creates a draft clock-out entry, pending user confirmation.
func (c *ExtController) ClockOutDraft(ctx context.Context, hour time.Time, location *models.GeoPoint) error {
	body := draftRequest{Hour: hour.UTC().Format(time.RFC3339), Location: location}

	return c.do(ctx, http.MethodPost, "/clockout/draft", nil, body, nil)
}
