// Package garmin implements the Garmin Connect client: token
// authentication, duplicate detection against the activity list, and FIT
// file upload.
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/oauth2"

	"github.com/marcelorodrigo/mywhoosh-to-garmin/internal/domain"
)

const (
	defaultTokenURL   = "https://connectapi.garmin.com/oauth-service/oauth/token"
	defaultAPIBaseURL = "https://connectapi.garmin.com"

	searchPath = "/activitylist-service/activities/search/activities"
	uploadPath = "/upload-service/upload/.fit"

	defaultMetadataTimeout = 30 * time.Second
	defaultTransferTimeout = 60 * time.Second

	// defaultDuplicateWindow is how far a remote activity's start may sit
	// from ours while still counting as the same ride.
	defaultDuplicateWindow = 2 * time.Hour

	searchPageSize = 100

	userAgent = "mywhoosh-to-garmin/1.0"
)

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBaseURLs overrides the token endpoint and API host.
func WithBaseURLs(tokenURL, apiBase string) Option {
	return func(c *Client) {
		c.tokenURL = tokenURL
		c.apiBase = apiBase
	}
}

// WithHTTPClient overrides the HTTP client used for metadata requests,
// including the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.meta = client
	}
}

// WithFilesystem overrides the scratch filesystem uploads are read from.
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

// WithDuplicateWindow overrides the duplicate detection time window.
func WithDuplicateWindow(window time.Duration) Option {
	return func(c *Client) {
		c.window = window
	}
}

// Client talks to Garmin Connect and owns the session token for one run.
// It is not safe for concurrent use; the sync pass is strictly sequential.
type Client struct {
	username string
	password string
	tokenURL string
	apiBase  string
	meta     *http.Client
	transfer *http.Client
	fs       billy.Filesystem
	logger   *log.Logger
	window   time.Duration

	token *oauth2.Token
}

// New constructs a Client for the given credentials.
func New(username, password string, opts ...Option) *Client {
	c := &Client{
		username: username,
		password: password,
		tokenURL: defaultTokenURL,
		apiBase:  defaultAPIBaseURL,
		meta:     &http.Client{Timeout: defaultMetadataTimeout},
		transfer: &http.Client{Timeout: defaultTransferTimeout},
		fs:       osfs.New(os.TempDir()),
		logger:   log.New(log.Writer(), "[garmin] ", log.LstdFlags|log.Lshortfile),
		window:   defaultDuplicateWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate exchanges the credentials for an access token using the
// resource owner password grant.
func (c *Client) Authenticate(ctx context.Context) error {
	c.logger.Printf("authenticating as %s", c.username)

	conf := &oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: c.tokenURL}}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.meta)

	token, err := conf.PasswordCredentialsToken(ctx, c.username, c.password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := retrieveErr.Response.StatusCode
			recordRequest("token", status)
			switch status {
			case http.StatusTooManyRequests:
				return fmt.Errorf("%w: token endpoint throttled", domain.ErrRateLimit)
			case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
				return fmt.Errorf("%w: token status %d: %s", domain.ErrAuth, status, bytes.TrimSpace(retrieveErr.Body))
			default:
				return fmt.Errorf("%w: token status %d", domain.ErrNetwork, status)
			}
		}
		return fmt.Errorf("%w: requesting token: %v", domain.ErrNetwork, err)
	}
	recordRequest("token", http.StatusOK)

	c.token = token
	if token.Expiry.IsZero() {
		c.logger.Printf("authenticated")
	} else {
		c.logger.Printf("authenticated, token expires %s", token.Expiry.Format(time.RFC3339))
	}
	return nil
}

// IsAuthenticated reports whether the client holds a live token.
func (c *Client) IsAuthenticated() bool {
	return c.token != nil && c.token.Valid()
}

// remoteActivity is the slice of the activity search response the
// duplicate check needs.
type remoteActivity struct {
	ActivityID int64  `json:"activityId"`
	Name       string `json:"activityName"`
	StartLocal string `json:"startTimeLocal"`
	Start      string `json:"startTime"`
}

// CheckDuplicate reports whether an activity that started within the
// duplicate window of startedAt already exists on the same calendar date.
// A non-empty name must additionally match case-insensitively in either
// containment direction; a time match with a mismatched name keeps
// scanning. With no name, the first time match decides. Remote failures
// never block the sync: the check logs and reports no duplicate. The only
// possible error is calling before Authenticate.
func (c *Client) CheckDuplicate(ctx context.Context, startedAt time.Time, name string) (bool, error) {
	if !c.IsAuthenticated() {
		return false, fmt.Errorf("%w: authenticate before checking for duplicates", domain.ErrState)
	}

	day := startedAt.UTC().Format("2006-01-02")
	c.logger.Printf("checking %s for activities within %s of %s", day, c.window, startedAt.UTC().Format(time.RFC3339))

	remotes, err := c.listByDate(ctx, day)
	if err != nil {
		c.logger.Printf("warning: duplicate check skipped: %v", err)
		recordDuplicateCheck("error")
		return false, nil
	}
	c.logger.Printf("found %d remote activities on %s", len(remotes), day)

	for _, remote := range remotes {
		raw := remote.StartLocal
		if raw == "" {
			raw = remote.Start
		}
		candidate, err := domain.ParseStartTime(raw)
		if err != nil {
			c.logger.Printf("warning: skipping remote activity %d: %v", remote.ActivityID, err)
			continue
		}

		delta := candidate.Sub(startedAt.UTC())
		if delta < 0 {
			delta = -delta
		}
		if delta > c.window {
			continue
		}
		c.logger.Printf("time match: %q at %s (delta %s)", remote.Name, candidate.Format(time.RFC3339), delta)

		if name == "" || namesMatch(name, remote.Name) {
			recordDuplicateCheck("duplicate")
			return true, nil
		}
		c.logger.Printf("name mismatch, continuing scan")
	}

	recordDuplicateCheck("clean")
	return false, nil
}

// namesMatch compares case-insensitively, accepting containment in either
// direction so "Morning Ride" matches "Morning Ride Indoor".
func namesMatch(local, remote string) bool {
	a := strings.ToLower(local)
	b := strings.ToLower(remote)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func (c *Client) listByDate(ctx context.Context, day string) ([]remoteActivity, error) {
	query := url.Values{}
	query.Set("startDate", day)
	query.Set("endDate", day)
	query.Set("start", "0")
	query.Set("limit", strconv.Itoa(searchPageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+searchPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)

	resp, err := c.meta.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: searching activities: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	recordRequest("search", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search status %d: %s", resp.StatusCode, body)
	}

	var remotes []remoteActivity
	if err := json.NewDecoder(resp.Body).Decode(&remotes); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return remotes, nil
}

// Upload sends the FIT file at path to the upload service and returns the
// import identifier Garmin assigned.
func (c *Client) Upload(ctx context.Context, path string) (domain.UploadReceipt, error) {
	if !c.IsAuthenticated() {
		return domain.UploadReceipt{}, fmt.Errorf("%w: authenticate before uploading activities", domain.ErrState)
	}

	data, err := util.ReadFile(c.fs, path)
	if err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%w: reading %s: %v", domain.ErrUpload, path, err)
	}
	c.logger.Printf("uploading %s (%d bytes)", path, len(data))

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%w: building upload form: %v", domain.ErrUpload, err)
	}
	if _, err := part.Write(data); err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%w: building upload form: %v", domain.ErrUpload, err)
	}
	if err := form.Close(); err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%w: building upload form: %v", domain.ErrUpload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+uploadPath, body)
	if err != nil {
		return domain.UploadReceipt{}, fmt.Errorf("%w: building upload request: %v", domain.ErrUpload, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)

	resp, err := c.transfer.Do(req)
	if err != nil {
		recordUpload("error")
		return domain.UploadReceipt{}, fmt.Errorf("%w: uploading %s: %v", domain.ErrNetwork, path, err)
	}
	defer resp.Body.Close()
	recordRequest("upload", resp.StatusCode)

	if resp.StatusCode >= 300 {
		recordUpload("rejected")
		responseBody, _ := io.ReadAll(resp.Body)
		return domain.UploadReceipt{}, fmt.Errorf("%w: upload status %d: %s", domain.ErrUpload, resp.StatusCode, responseBody)
	}
	recordUpload("accepted")

	var result struct {
		DetailedImportResult struct {
			UploadID int64 `json:"uploadId"`
		} `json:"detailedImportResult"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.Printf("warning: upload accepted but response not decoded: %v", err)
		return domain.UploadReceipt{}, nil
	}

	c.logger.Printf("upload accepted, import id %d", result.DetailedImportResult.UploadID)
	return domain.UploadReceipt{UploadID: result.DetailedImportResult.UploadID}, nil
}
