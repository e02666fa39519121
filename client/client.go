// Package client is the device-side half of the trust subsystem: a typed
// registry client with an optimistic local cache, the authorization gate
// state machine, the approval handshake, and the emergency recovery path.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meridian-courier/device-trust/identity"
	"github.com/meridian-courier/device-trust/models"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
	Detail  string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
	ws      *http.Client // handshake client without a request timeout
	log     *logrus.Logger

	store *Store

	mu      sync.RWMutex
	token   string
	account identity.Account
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		ws:      &http.Client{},
		log:     logrus.StandardLogger(),
		store:   NewStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the local device cache for gate and UI consumers.
func (c *Client) Store() *Store { return c.store }

func (c *Client) Account() identity.Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Not every error body is an envelope: middleware aborts and
		// intermediaries send bare text. The status code is the contract.
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Message != "" {
			apiErr.Message = env.Message
			apiErr.Detail = strings.Trim(string(env.Error), `"`)
		}
		return apiErr
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// ── Identity (consumed as opaque calls) ─────────────────────────────────────

func (c *Client) SignUp(ctx context.Context, email, username, password, displayName string) (identity.Account, error) {
	var acct identity.Account
	err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":        email,
		"username":     username,
		"password":     password,
		"display_name": displayName,
	}, &acct)
	return acct, err
}

func (c *Client) SignIn(ctx context.Context, email, password, deviceID string) (identity.Account, error) {
	var out struct {
		Account identity.Account `json:"account"`
		Token   string           `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":     email,
		"password":  password,
		"device_id": deviceID,
	}, &out)
	if err != nil {
		return identity.Account{}, err
	}
	c.mu.Lock()
	c.token = out.Token
	c.account = out.Account
	c.mu.Unlock()
	return out.Account, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.mu.Lock()
	c.token = ""
	c.account = identity.Account{}
	c.mu.Unlock()
	c.store.ReplaceAll(nil)
	return err
}

// Session introspects the current token.
func (c *Client) Session(ctx context.Context) (identity.Account, error) {
	var acct identity.Account
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &acct); err != nil {
		return identity.Account{}, err
	}
	c.mu.Lock()
	c.account = acct
	c.mu.Unlock()
	return acct, nil
}

func (c *Client) UpdateUser(ctx context.Context, displayName, avatarURL string) error {
	return c.do(ctx, http.MethodPatch, "/auth/me", map[string]string{
		"display_name": displayName,
		"avatar_url":   avatarURL,
	}, nil)
}

// ── Trust registry ──────────────────────────────────────────────────────────

// ListDevices fetches the account's devices. A transport failure is returned
// as an error, never collapsed into an empty list: the caller must be able
// to tell "no devices yet" from "fetch failed" before bootstrapping a
// primary.
func (c *Client) ListDevices(ctx context.Context) ([]models.TrustedDevice, error) {
	var out struct {
		Devices []models.TrustedDevice `json:"devices"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/devices", nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// RefreshDevices replaces the local cache with server truth. On failure the
// cache is left as it was.
func (c *Client) RefreshDevices(ctx context.Context) error {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return err
	}
	c.store.ReplaceAll(devices)
	return nil
}

// UpsertDevice registers or refreshes a device row. The optimistic value is
// applied to the cache before the call; on failure the cache is reverted by
// a full refetch, never by a fine-grained rollback.
func (c *Client) UpsertDevice(ctx context.Context, optimistic models.TrustedDevice) (models.TrustedDevice, error) {
	c.store.Upsert(optimistic)

	var out struct {
		Device models.TrustedDevice `json:"device"`
	}
	err := c.do(ctx, http.MethodPut, "/api/v1/devices", map[string]string{
		"id":          optimistic.ID,
		"device_name": optimistic.DeviceName,
		"device_type": optimistic.DeviceType,
		"browser":     optimistic.Browser,
		"location":    optimistic.Location,
		"last_active": optimistic.LastActive,
	}, &out)
	if err != nil {
		c.revert(ctx)
		return models.TrustedDevice{}, err
	}
	c.store.Upsert(out.Device)
	return out.Device, nil
}

// SetDeviceStatus transitions a device, optimistically.
func (c *Client) SetDeviceStatus(ctx context.Context, id, status string) error {
	if d, ok := c.store.Get(id); ok {
		d.Status = status
		c.store.Upsert(d)
	}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/devices/"+id+"/status", map[string]string{
		"status": status,
	}, nil); err != nil {
		c.revert(ctx)
		return err
	}
	return nil
}

// DeleteDevice revokes a device, optimistically.
func (c *Client) DeleteDevice(ctx context.Context, id string) error {
	c.store.Remove(id)
	if err := c.do(ctx, http.MethodDelete, "/api/v1/devices/"+id, nil, nil); err != nil {
		c.revert(ctx)
		return err
	}
	return nil
}

// ListModerationQueue returns awaiting_verification devices across all
// accounts. The server rejects callers without an elevated role.
func (c *Client) ListModerationQueue(ctx context.Context) ([]models.TrustedDevice, error) {
	var out struct {
		Devices []models.TrustedDevice `json:"devices"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/devices/moderation", nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

// HoldForVerification parks a device in the moderation queue (staff
// onboarding; elevated role required).
func (c *Client) HoldForVerification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/devices/"+id+"/verification-hold", nil, nil)
}

// revert undoes whatever optimistic patch a failed mutation left behind by
// forcing a refetch. If the refetch fails too the cache stays stale until
// the next poll or realtime event.
func (c *Client) revert(ctx context.Context) {
	if err := c.RefreshDevices(ctx); err != nil {
		c.log.WithError(err).Debug("client: revert refetch failed, cache stale")
	}
}

// ── Activity trail ──────────────────────────────────────────────────────────

// AppendActivity fires a best-effort audit append. It returns immediately;
// the request runs detached with its own deadline, is never retried, and
// failures surface nowhere but the debug log.
func (c *Client) AppendActivity(action, details, deviceName string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.do(ctx, http.MethodPost, "/api/v1/activity", map[string]string{
			"action":      action,
			"details":     details,
			"device_name": deviceName,
		}, nil); err != nil {
			c.log.WithError(err).Debug("client: activity append dropped")
		}
	}()
}

func (c *Client) ListActivity(ctx context.Context, limit int, allAccounts bool) ([]models.ActivityLog, error) {
	path := fmt.Sprintf("/api/v1/activity?limit=%d", limit)
	if allAccounts {
		path += "&scope=all"
	}
	var out struct {
		Entries []models.ActivityLog `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}
