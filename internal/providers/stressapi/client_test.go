package stressapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"stressclip/internal/domain"
)

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{}, nil)
	if c.Endpoint() != "http://localhost:5000/predict" {
		t.Fatalf("unexpected endpoint: %q", c.Endpoint())
	}
	if c.cfg.Timeout != defaultTimeout {
		t.Fatalf("unexpected timeout: %s", c.cfg.Timeout)
	}

	c = NewClient(Config{BaseURL: " http://10.0.0.2:5000/ "}, nil)
	if c.Endpoint() != "http://10.0.0.2:5000/predict" {
		t.Fatalf("unexpected trimmed endpoint: %q", c.Endpoint())
	}
}

func TestMIMEType(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"wav":  "audio/wav",
		".wav": "audio/wav",
		"WAV":  "audio/wav",
		"m4a":  "audio/m4a",
		"aac":  "audio/aac",
		"mp3":  "audio/mp3",
		"ogg":  "audio/mp3",
		"":     "audio/mp3",
	}
	for ext, want := range cases {
		if got := MIMEType(ext); got != want {
			t.Fatalf("MIMEType(%q) = %q, want %q", ext, got, want)
		}
	}
}

func TestAnalyzeSendsMultipartAndReturnsPrediction(t *testing.T) {
	t.Parallel()

	var (
		gotMethod   string
		gotPath     string
		gotAccept   string
		gotFilename string
		gotPartType string
		gotBytes    string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotFilename = header.Filename
		gotPartType = header.Header.Get("Content-Type")
		gotBytes = string(data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prediction":"Stressed"}`))
	}))
	defer server.Close()

	path := writeAudio(t, "clip.wav", "RIFFdata")
	c := NewClient(Config{BaseURL: server.URL}, nil)

	label, err := c.Analyze(context.Background(), &domain.AudioResource{URI: path, Name: "my clip.wav"})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if label != "Stressed" {
		t.Fatalf("unexpected label: %q", label)
	}
	if gotMethod != http.MethodPost || gotPath != "/predict" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if gotAccept != "application/json" {
		t.Fatalf("unexpected accept header: %q", gotAccept)
	}
	if gotFilename != "my clip.wav" || gotPartType != "audio/wav" || gotBytes != "RIFFdata" {
		t.Fatalf("unexpected part: name=%q type=%q bytes=%q", gotFilename, gotPartType, gotBytes)
	}
}

func TestAnalyzeDefaultsFilenameAndMIME(t *testing.T) {
	t.Parallel()

	var gotFilename, gotPartType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err == nil {
			gotFilename = header.Filename
			gotPartType = header.Header.Get("Content-Type")
		}
		_, _ = w.Write([]byte(`{"prediction":"neutral"}`))
	}))
	defer server.Close()

	path := writeAudio(t, "clip.flac", "fLaC")
	c := NewClient(Config{BaseURL: server.URL}, nil)

	if _, err := c.Analyze(context.Background(), &domain.AudioResource{URI: "file://" + path}); err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if gotFilename != "audio.flac" || gotPartType != "audio/mp3" {
		t.Fatalf("unexpected defaults: name=%q type=%q", gotFilename, gotPartType)
	}
}

func TestAnalyzeResponseMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		status   int
		body     string
		code     domain.ErrorCode
		contains string
	}{
		{name: "error field", status: http.StatusOK, body: `{"error":"bad format"}`, code: domain.ErrorCodeServer, contains: "bad format"},
		{name: "non json", status: http.StatusOK, body: "<html>oops</html>", code: domain.ErrorCodeInvalidResponse, contains: "<html>oops</html>"},
		{name: "no fields", status: http.StatusOK, body: `{"label":"x"}`, code: domain.ErrorCodeInvalidResponse, contains: "No prediction"},
		{name: "empty prediction", status: http.StatusOK, body: `{"prediction":""}`, code: domain.ErrorCodeInvalidResponse, contains: "No prediction"},
		{name: "numeric prediction", status: http.StatusOK, body: `{"prediction":1}`, code: domain.ErrorCodeInvalidResponse, contains: "No prediction"},
		{name: "null fields", status: http.StatusOK, body: `{"prediction":null,"error":null}`, code: domain.ErrorCodeInvalidResponse, contains: "No prediction"},
		{name: "structured error", status: http.StatusOK, body: `{"error":{"reason":"too short"}}`, code: domain.ErrorCodeServer, contains: `Server error: {"reason":"too short"}`},
		{name: "server status", status: http.StatusInternalServerError, body: `{"error":"model missing"}`, code: domain.ErrorCodeServer, contains: "500"},
		{name: "bad request", status: http.StatusBadRequest, body: `{}`, code: domain.ErrorCodeServer, contains: "400: {}"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			path := writeAudio(t, "clip.m4a", "data")
			c := NewClient(Config{BaseURL: server.URL}, nil)

			_, err := c.Analyze(context.Background(), &domain.AudioResource{URI: path, Name: "clip.m4a"})
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := domain.CodeOf(err); got != tc.code {
				t.Fatalf("expected code %s, got %s (%v)", tc.code, got, err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Fatalf("expected %q in %q", tc.contains, err.Error())
			}
		})
	}
}

func TestAnalyzeNilResourceMakesNoRequest(t *testing.T) {
	t.Parallel()

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL}, nil)
	_, err := c.Analyze(context.Background(), nil)
	if !errors.Is(err, domain.ErrNoAudioSelected) {
		t.Fatalf("expected ErrNoAudioSelected, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no request")
	}
}

func TestAnalyzeNetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := server.URL
	server.Close()

	path := writeAudio(t, "clip.wav", "data")
	c := NewClient(Config{BaseURL: baseURL}, nil)

	_, err := c.Analyze(context.Background(), &domain.AudioResource{URI: path, Name: "clip.wav"})
	if got := domain.CodeOf(err); got != domain.ErrorCodeNetwork {
		t.Fatalf("expected network error, got %s (%v)", got, err)
	}
	if !strings.Contains(err.Error(), "Cannot connect to the server") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestAnalyzeMissingFile(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := c.Analyze(context.Background(), &domain.AudioResource{URI: filepath.Join(t.TempDir(), "gone.wav")})
	if got := domain.CodeOf(err); got != domain.ErrorCodeUpload {
		t.Fatalf("expected upload error, got %s (%v)", got, err)
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func writeAudio(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write audio: %v", err)
	}
	return path
}
