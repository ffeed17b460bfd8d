package upload

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"roomchat/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestUploader(authorizeURL string) *Uploader {
	return New(Config{
		AuthorizeURL: authorizeURL,
		Credential:   domain.Credential{Company: "acme", AccessToken: "tok-123"},
		Client:       &http.Client{Timeout: 5 * time.Second},
		Logger:       testLogger(),
	})
}

func TestSelect_TwoPhaseSuccess(t *testing.T) {
	const content = "%PDF-1.4 test bytes"
	path := writeTempFile(t, "a.pdf", content)

	var putBody atomic.Pointer[string]
	var putContentType atomic.Pointer[string]
	transfer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("transfer method = %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		s := string(body)
		ct := r.Header.Get("Content-Type")
		putBody.Store(&s)
		putContentType.Store(&ct)
		w.WriteHeader(http.StatusOK)
	}))
	defer transfer.Close()

	authorize := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("authorize method = %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			FileName string `json:"fileName"`
			FileType string `json:"fileType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("authorize body: %v", err)
		}
		if req.FileName != "a.pdf" {
			t.Errorf("fileName = %q", req.FileName)
		}
		if !strings.HasPrefix(req.FileType, "application/pdf") {
			t.Errorf("fileType = %q", req.FileType)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"signedUrl": transfer.URL + "/bucket/a.pdf",
			"fileUrl":   "https://cdn/a.pdf",
		})
	}))
	defer authorize.Close()

	u := newTestUploader(authorize.URL)
	if err := u.Select(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	att := u.Current()
	if att == nil {
		t.Fatal("expected a staged attachment")
	}
	if att.RemoteURL != "https://cdn/a.pdf" {
		t.Errorf("remoteUrl = %q, want the authorize fileUrl verbatim", att.RemoteURL)
	}
	if att.Name != "a.pdf" {
		t.Errorf("name = %q", att.Name)
	}
	if got := putBody.Load(); got == nil || *got != content {
		t.Errorf("transferred bytes = %v", got)
	}
	if ct := putContentType.Load(); ct == nil || !strings.HasPrefix(*ct, "application/pdf") {
		t.Errorf("transfer Content-Type = %v", ct)
	}
	if u.Uploading() {
		t.Error("uploading must clear on completion")
	}
}

func TestSelect_EmptyPathIsNoOp(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	u := newTestUploader(srv.URL)
	if err := u.Select(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if requests.Load() != 0 {
		t.Error("empty selection must not issue requests")
	}
	if u.Current() != nil || u.Preview() != nil || u.Uploading() {
		t.Error("empty selection must not change state")
	}
}

func TestSelect_AuthorizeFailureSkipsTransfer(t *testing.T) {
	path := writeTempFile(t, "a.txt", "hello")

	var transfers atomic.Int32
	transfer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transfers.Add(1)
	}))
	defer transfer.Close()

	authorize := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer authorize.Close()

	u := newTestUploader(authorize.URL)
	if err := u.Select(context.Background(), path); err == nil {
		t.Fatal("expected an error")
	}
	if transfers.Load() != 0 {
		t.Error("no transfer may be issued after an authorize failure")
	}
	if u.Current() != nil {
		t.Error("attachment must remain absent")
	}
	if u.Uploading() {
		t.Error("uploading must clear on failure")
	}
}

func TestSelect_MalformedAuthorizeBody(t *testing.T) {
	path := writeTempFile(t, "a.txt", "hello")

	authorize := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer authorize.Close()

	u := newTestUploader(authorize.URL)
	if err := u.Select(context.Background(), path); err == nil {
		t.Fatal("expected an error for a body without signedUrl/fileUrl")
	}
	if u.Current() != nil {
		t.Error("attachment must remain absent")
	}
}

func TestSelect_TransferFailure(t *testing.T) {
	path := writeTempFile(t, "a.txt", "hello")

	transfer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer transfer.Close()

	authorize := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"signedUrl": transfer.URL,
			"fileUrl":   "https://cdn/a.txt",
		})
	}))
	defer authorize.Close()

	u := newTestUploader(authorize.URL)
	if err := u.Select(context.Background(), path); err == nil {
		t.Fatal("expected an error")
	}
	if u.Current() != nil {
		t.Error("fileUrl must not be recorded when the transfer fails")
	}
}

func TestSelect_PreviewCreatedBeforeNetwork(t *testing.T) {
	path := writeTempFile(t, "a.txt", "hello")

	authorize := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer authorize.Close()

	u := newTestUploader(authorize.URL)
	_ = u.Select(context.Background(), path)

	p := u.Preview()
	if p == nil {
		t.Fatal("preview must survive an upload failure")
	}
	if p.Name != "a.txt" || !strings.HasPrefix(p.LocalURL, "file://") {
		t.Errorf("preview = %+v", p)
	}
}

func TestSelect_RejectsWhileUploading(t *testing.T) {
	path := writeTempFile(t, "a.txt", "hello")

	release := make(chan struct{})
	started := make(chan struct{})
	authorize := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		http.Error(w, "late", http.StatusInternalServerError)
	}))
	defer authorize.Close()

	u := newTestUploader(authorize.URL)
	done := make(chan struct{})
	go func() {
		_ = u.Select(context.Background(), path)
		close(done)
	}()

	<-started
	if err := u.Select(context.Background(), path); err != ErrUploadInFlight {
		t.Errorf("expected ErrUploadInFlight, got %v", err)
	}
	close(release)
	<-done
}

func TestDiscard_StaleCompletionIgnored(t *testing.T) {
	const content = "bytes"
	path := writeTempFile(t, "a.txt", content)

	release := make(chan struct{})
	started := make(chan struct{})
	transfer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer transfer.Close()

	authorize := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		_ = json.NewEncoder(w).Encode(map[string]string{
			"signedUrl": transfer.URL,
			"fileUrl":   "https://cdn/a.txt",
		})
	}))
	defer authorize.Close()

	u := newTestUploader(authorize.URL)
	done := make(chan struct{})
	go func() {
		_ = u.Select(context.Background(), path)
		close(done)
	}()

	<-started
	u.Discard()
	close(release)
	<-done

	if u.Current() != nil {
		t.Error("a discarded selection's completion must not stage an attachment")
	}
	if u.Uploading() {
		t.Error("uploading must stay clear after discard")
	}
}

func TestSelect_FileTooLarge(t *testing.T) {
	path := writeTempFile(t, "big.bin", "0123456789")

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	u := New(Config{
		AuthorizeURL: srv.URL,
		Credential:   domain.Credential{AccessToken: "tok"},
		MaxSizeBytes: 4,
		Client:       &http.Client{Timeout: 5 * time.Second},
		Logger:       testLogger(),
	})

	if err := u.Select(context.Background(), path); err == nil {
		t.Fatal("expected an error for an oversized file")
	}
	if requests.Load() != 0 {
		t.Error("oversized files must be rejected before any request")
	}
}

func TestTake_ClearsAttachmentState(t *testing.T) {
	transfer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer transfer.Close()
	authorize := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"signedUrl": transfer.URL,
			"fileUrl":   "https://cdn/a.txt",
		})
	}))
	defer authorize.Close()

	path := writeTempFile(t, "a.txt", "hello")
	u := newTestUploader(authorize.URL)
	if err := u.Select(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	att := u.Take()
	if att == nil || att.RemoteURL != "https://cdn/a.txt" {
		t.Fatalf("Take returned %+v", att)
	}
	if u.Current() != nil || u.Preview() != nil {
		t.Error("Take must clear attachment and preview state")
	}
}
