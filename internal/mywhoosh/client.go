// Package mywhoosh implements the MyWhoosh API client: credential login,
// activity listing, and FIT file download to scratch storage.
package mywhoosh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/domain"
)

const (
	defaultAuthBaseURL = "https://services.mywhoosh.com"
	defaultAPIBaseURL  = "https://service14.mywhoosh.com"

	loginPath      = "/http-service/api/login"
	activitiesPath = "/v2/rider/profile/activities"
	downloadPath   = "/v2/rider/profile/download-activity-file"

	defaultMetadataTimeout = 30 * time.Second
	defaultTransferTimeout = 60 * time.Second

	// loginAction is the mobile-app action code the login endpoint expects.
	loginAction = 1001

	userAgent = "mywhoosh-to-garmin/1.0"

	fitHeaderLen = 14

	// tokenExpiryLeeway triggers a refresh slightly before the recorded
	// expiry so a request does not race the deadline.
	tokenExpiryLeeway = 30 * time.Second
)

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBaseURLs overrides the authentication and API hosts.
func WithBaseURLs(authBase, apiBase string) Option {
	return func(c *Client) {
		c.authBase = authBase
		c.apiBase = apiBase
	}
}

// WithHTTPClient overrides the HTTP client used for metadata requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.meta = client
	}
}

// WithFilesystem overrides the scratch filesystem downloads are written to.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(c *Client) {
		c.fs = fs
	}
}

// WithTimeouts overrides the metadata and file-transfer deadlines.
func WithTimeouts(metadata, transfer time.Duration) Option {
	return func(c *Client) {
		c.meta.Timeout = metadata
		c.transfer.Timeout = transfer
	}
}

// WithDebug enables verbose session logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// Client talks to the MyWhoosh private API and owns the session state for
// one run: bearer token, refresh token, and rider identifier. It is not
// safe for concurrent use; the sync pass is strictly sequential.
type Client struct {
	email    string
	password string
	authBase string
	apiBase  string
	meta     *http.Client
	transfer *http.Client
	fs       billy.Filesystem
	logger   *log.Logger
	debug    bool

	deviceID     string
	accessToken  string
	refreshToken string
	whooshID     string
}

// New constructs a Client for the given credentials.
func New(email, password string, opts ...Option) *Client {
	c := &Client{
		email:    email,
		password: password,
		authBase: defaultAuthBaseURL,
		apiBase:  defaultAPIBaseURL,
		meta:     &http.Client{Timeout: defaultMetadataTimeout},
		transfer: &http.Client{Timeout: defaultTransferTimeout},
		fs:       osfs.New(os.TempDir()),
		logger:   log.New(log.Writer(), "[mywhoosh] ", log.LstdFlags|log.Lshortfile),
		deviceID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate exchanges the credentials for a bearer token. It is
// idempotent: calling it again replaces the session.
func (c *Client) Authenticate(ctx context.Context) error {
	c.logger.Printf("authenticating as %s", c.email)

	payload := map[string]any{
		"Username":      c.email,
		"Password":      c.password,
		"Platform":      "Android",
		"Action":        loginAction,
		"CorrelationId": uuid.NewString(),
		"DeviceId":      c.deviceID,
		"Authorization": "",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding login payload: %v", domain.ErrAuth, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authBase+loginPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building login request: %v", domain.ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.meta.Do(req)
	if err != nil {
		return fmt.Errorf("%w: login: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	recordRequest("login", resp.StatusCode)

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: login throttled", domain.ErrRateLimit)
	}
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: login status %d: %s", domain.ErrAuth, resp.StatusCode, data)
	}

	var result struct {
		Success      bool   `json:"Success"`
		Message      string `json:"Message"`
		AccessToken  string `json:"AccessToken"`
		RefreshToken string `json:"RefreshToken"`
		WhooshID     string `json:"WhooshId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%w: decoding login response: %v", domain.ErrAuth, err)
	}
	if !result.Success {
		message := result.Message
		if message == "" {
			message = "unknown error"
		}
		return fmt.Errorf("%w: %s", domain.ErrAuth, message)
	}

	c.accessToken = result.AccessToken
	c.refreshToken = result.RefreshToken
	c.whooshID = result.WhooshID
	c.logger.Printf("authenticated, rider %s", c.whooshID)
	if c.debug && c.accessToken != "" {
		c.logger.Printf("access token prefix %.12s...", c.accessToken)
	}
	return nil
}

// listPayload is one named request-body strategy for the activities
// endpoint. Strategies are tried in order until one yields HTTP 200.
type listPayload struct {
	name string
	body map[string]any
}

// Activities lists up to limit activities, newest first. Responses arrive
// in several envelope shapes; see decodeActivityList. A stale-token
// response triggers one transparent re-authentication, after which the
// same strategy is retried.
func (c *Client) Activities(ctx context.Context, limit int) ([]domain.Activity, error) {
	if c.accessToken == "" {
		return nil, fmt.Errorf("%w: authenticate before listing activities", domain.ErrState)
	}
	if err := c.refreshIfExpired(ctx); err != nil {
		return nil, err
	}

	c.logger.Printf("fetching up to %d activities", limit)

	strategies := []listPayload{
		{name: "sort-desc", body: map[string]any{"page": 1, "limit": limit, "sortDate": "DESC"}},
		{name: "sort-asc", body: map[string]any{"page": 1, "limit": limit, "sortDate": "ASC"}},
	}

	var lastErr error
	reauthenticated := false
	for _, strategy := range strategies {
		if c.debug {
			c.logger.Printf("trying payload strategy %s", strategy.name)
		}

		status, body, err := c.postJSON(ctx, "activities", c.apiBase+activitiesPath, strategy.body)
		if err == nil && status == http.StatusUnauthorized && !reauthenticated {
			c.logger.Printf("token rejected, re-authenticating")
			if err := c.Authenticate(ctx); err != nil {
				return nil, err
			}
			reauthenticated = true
			status, body, err = c.postJSON(ctx, "activities", c.apiBase+activitiesPath, strategy.body)
		}
		if err != nil {
			lastErr = fmt.Errorf("strategy %s: %w", strategy.name, err)
			continue
		}
		if status != http.StatusOK {
			lastErr = fmt.Errorf("strategy %s: status %d: %s", strategy.name, status, body)
			continue
		}

		activities, err := decodeActivityList(body)
		if err != nil {
			lastErr = fmt.Errorf("strategy %s: %w", strategy.name, err)
			continue
		}
		c.logger.Printf("found %d activities", len(activities))
		return activities, nil
	}

	return nil, fmt.Errorf("listing activities: all payload strategies failed: %w", lastErr)
}

// Download resolves the activity's file location, fetches the bytes, and
// writes them to scratch storage. The FIT header is probed; a mismatch is
// reported but does not fail the download, the patch step is the
// authoritative validator.
func (c *Client) Download(ctx context.Context, activity domain.Activity) (string, error) {
	if c.accessToken == "" || c.whooshID == "" {
		return "", fmt.Errorf("%w: authenticate before downloading activities", domain.ErrState)
	}
	if activity.FileID == "" {
		return "", fmt.Errorf("%w: activity %q has no file identifier", domain.ErrDownload, activity.ID)
	}
	if err := c.refreshIfExpired(ctx); err != nil {
		return "", err
	}

	c.logger.Printf("resolving download location for activity %s", activity.ID)

	status, body, err := c.postJSON(ctx, "download-url", c.apiBase+downloadPath, map[string]any{
		"key":    c.whooshID,
		"fileId": activity.FileID,
	})
	if err != nil {
		return "", fmt.Errorf("%w: resolving download location: %v", domain.ErrDownload, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: resolving download location: status %d: %s", domain.ErrDownload, status, body)
	}

	var resolved struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
		Data    string `json:"data"`
	}
	if err := json.Unmarshal(body, &resolved); err != nil {
		return "", fmt.Errorf("%w: decoding download location: %v", domain.ErrDownload, err)
	}
	if resolved.Error {
		return "", fmt.Errorf("%w: %s", domain.ErrDownload, resolved.Message)
	}
	if !strings.HasPrefix(resolved.Data, "http") {
		return "", fmt.Errorf("%w: no usable download location in response", domain.ErrDownload)
	}

	data, err := c.fetchFile(ctx, resolved.Data)
	if err != nil {
		return "", err
	}
	recordDownloadedBytes(len(data))
	c.logger.Printf("downloaded %d bytes", len(data))

	name := fmt.Sprintf("mywhoosh_%s_%d.fit", activity.ID, time.Now().Unix())
	if err := util.WriteFile(c.fs, name, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: writing %s: %v", domain.ErrDownload, name, err)
	}
	c.logger.Printf("saved to %s", c.fs.Join(c.fs.Root(), name))

	c.verifyHeader(data)
	return name, nil
}

func (c *Client) fetchFile(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building transfer request: %v", domain.ErrDownload, err)
	}

	resp, err := c.transfer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching file: %v", domain.ErrDownload, err)
	}
	defer resp.Body.Close()
	recordRequest("transfer", resp.StatusCode)

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: transfer status %d", domain.ErrDownload, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading file: %v", domain.ErrDownload, err)
	}
	return data, nil
}

// verifyHeader warns when the payload does not look like a FIT file.
func (c *Client) verifyHeader(data []byte) {
	if len(data) < fitHeaderLen {
		c.logger.Printf("warning: file too small to carry a FIT header: %d bytes", len(data))
		return
	}
	if bytes.Equal(data[8:12], []byte(".FIT")) {
		c.logger.Printf("FIT header verified")
		return
	}
	c.logger.Printf("warning: unexpected file header %x", data[:12])
}

// refreshIfExpired peeks at the unverified exp claim of the access token
// and re-authenticates when it is past due. Opaque tokens are assumed
// live; the 401 path still covers them.
func (c *Client) refreshIfExpired(ctx context.Context) error {
	if !c.tokenExpired() {
		return nil
	}
	c.logger.Printf("access token expired, refreshing session")
	return c.Authenticate(ctx)
}

func (c *Client) tokenExpired() bool {
	if c.accessToken == "" {
		return true
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.accessToken, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) < tokenExpiryLeeway
}

func (c *Client) postJSON(ctx context.Context, endpoint, url string, payload map[string]any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.meta.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	recordRequest(endpoint, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading response: %v", domain.ErrNetwork, err)
	}
	return resp.StatusCode, data, nil
}
