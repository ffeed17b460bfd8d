// Package upload moves file attachments out of the messaging channel via a
// two-phase signed-URL exchange: an authorize request issues a signed PUT
// target plus the durable fetch URL, then the raw bytes are transferred
// directly to object storage.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"roomchat/internal/domain"
	"roomchat/internal/metrics"
)

// ErrUploadInFlight is returned when a selection is made while a previous
// upload has not finished.
var ErrUploadInFlight = errors.New("upload: previous upload still in flight")

// Config configures the uploader.
type Config struct {
	AuthorizeURL string // signed-URL issuing endpoint
	Credential   domain.Credential
	Timeout      time.Duration
	MaxSizeBytes int64
	Client       *http.Client // optional override, mainly for tests
	Logger       *slog.Logger
}

// Uploader owns the in-flight attachment until it resolves to a remote URL
// or is discarded.
type Uploader struct {
	client       *http.Client
	authorizeURL string
	cred         domain.Credential
	maxSize      int64
	logger       *slog.Logger

	mu        sync.Mutex
	uploading bool
	gen       uint64
	staged    *domain.Attachment
	preview   *domain.Preview
}

type authorizeRequest struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

type authorizeResponse struct {
	SignedURL string `json:"signedUrl"`
	FileURL   string `json:"fileUrl"`
}

func New(cfg Config) *Uploader {
	client := cfg.Client
	if client == nil {
		client = newHTTPClient(cfg.Timeout)
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 50 << 20
	}
	return &Uploader{
		client:       client,
		authorizeURL: cfg.AuthorizeURL,
		cred:         cfg.Credential,
		maxSize:      cfg.MaxSizeBytes,
		logger:       cfg.Logger,
	}
}

// Select stages the file at path and runs the two-phase upload to
// completion. An empty path is a no-op. The local preview handle is created
// before any network I/O; on any failure the staged attachment stays absent
// and the user may retry by reselecting.
func (u *Uploader) Select(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	name := filepath.Base(path)

	u.mu.Lock()
	if u.uploading {
		u.mu.Unlock()
		return ErrUploadInFlight
	}
	u.uploading = true
	u.gen++
	gen := u.gen
	u.staged = nil
	u.preview = &domain.Preview{Name: name, LocalURL: localURL(path)}
	u.mu.Unlock()

	start := time.Now()
	remoteURL, err := u.run(ctx, path, name)
	metrics.Collector.Histogram("roomchat_upload_duration_seconds",
		"Two-phase upload duration.", "",
		[]float64{0.1, 0.5, 1, 5, 15, 60}).Observe(time.Since(start).Seconds())

	u.mu.Lock()
	defer u.mu.Unlock()
	if gen != u.gen {
		// Selection was discarded while the request was in flight; the
		// stale completion must not mutate attachment state.
		u.logger.Warn("discarding stale upload completion", "file", name)
		return nil
	}
	u.uploading = false

	if err != nil {
		metrics.Collector.Counter("roomchat_uploads_total", "Attachment uploads.", `status="failed"`).Inc()
		u.logger.Error("upload failed", "file", name, "err", err)
		return err
	}

	u.staged = &domain.Attachment{Name: name, RemoteURL: remoteURL}
	metrics.Collector.Counter("roomchat_uploads_total", "Attachment uploads.", `status="ok"`).Inc()
	u.logger.Info("upload complete", "file", name, "url", remoteURL)
	return nil
}

// run executes both phases and returns the durable URL.
func (u *Uploader) run(ctx context.Context, path, name string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > u.maxSize {
		return "", fmt.Errorf("%s exceeds max upload size (%d > %d bytes)", name, info.Size(), u.maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	fileType := mime.TypeByExtension(filepath.Ext(name))
	if fileType == "" {
		fileType = "application/octet-stream"
	}

	auth, err := u.authorize(ctx, name, fileType)
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}

	if err := u.transfer(ctx, auth.SignedURL, fileType, data); err != nil {
		return "", fmt.Errorf("transfer: %w", err)
	}

	return auth.FileURL, nil
}

// authorize requests a signed PUT target for the file.
func (u *Uploader) authorize(ctx context.Context, name, fileType string) (*authorizeResponse, error) {
	body, err := json.Marshal(authorizeRequest{FileName: name, FileType: fileType})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.authorizeURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.cred.AccessToken)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var auth authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if auth.SignedURL == "" || auth.FileURL == "" {
		return nil, errors.New("malformed response: missing signedUrl or fileUrl")
	}
	return &auth, nil
}

// transfer PUTs the raw bytes to the signed URL.
func (u *Uploader) transfer(ctx context.Context, signedURL, fileType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", fileType)

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// Uploading reports whether either phase is in flight.
func (u *Uploader) Uploading() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploading
}

// Current returns the staged attachment, or nil when none has resolved.
func (u *Uploader) Current() *domain.Attachment {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.staged == nil {
		return nil
	}
	att := *u.staged
	return &att
}

// Preview returns the local preview handle, or nil.
func (u *Uploader) Preview() *domain.Preview {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.preview == nil {
		return nil
	}
	p := *u.preview
	return &p
}

// Take returns the staged attachment and clears all attachment state,
// releasing the preview. Used by the send path after a message is emitted.
func (u *Uploader) Take() *domain.Attachment {
	u.mu.Lock()
	defer u.mu.Unlock()
	att := u.staged
	u.staged = nil
	u.preview = nil
	return att
}

// Discard drops the selection. A completion arriving for a discarded
// selection is ignored via the generation tag.
func (u *Uploader) Discard() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.gen++
	u.uploading = false
	u.staged = nil
	u.preview = nil
}

// localURL builds the preview reference for a selected file.
func localURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs)
}
