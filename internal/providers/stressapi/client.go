package stressapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stressclip/internal/audio"
	"stressclip/internal/domain"
)

const (
	defaultBaseURL = "http://localhost:5000"
	defaultTimeout = 2 * time.Minute
	fallbackMIME   = "audio/mp3"

	connectionMessage = "Cannot connect to the server. Please check your internet connection and server status."
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Config controls the prediction endpoint client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements ports.Analyzer against the /predict endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(slog.String("component", "stressapi")),
	}
}

// Endpoint returns the URL uploads are posted to.
func (c *Client) Endpoint() string {
	return c.cfg.BaseURL + "/predict"
}

type predictResponse struct {
	Prediction json.RawMessage `json:"prediction"`
	Error      json.RawMessage `json:"error"`
}

// label returns the prediction when the server sent it as a JSON string.
func (r predictResponse) label() string {
	var s string
	if err := json.Unmarshal(r.Prediction, &s); err != nil {
		return ""
	}
	return s
}

// failure returns the server's error field. Non-string values are reported
// as their raw JSON text.
func (r predictResponse) failure() string {
	raw := strings.TrimSpace(string(r.Error))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s
	}
	return raw
}

// Analyze uploads the resource as multipart field "file" and returns the
// predicted label.
func (c *Client) Analyze(ctx context.Context, resource *domain.AudioResource) (string, error) {
	if resource == nil || strings.TrimSpace(resource.URI) == "" {
		return "", domain.ErrNoAudioSelected
	}

	path, err := audio.LocalPath(resource.URI)
	if err != nil {
		return "", uploadFailed(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", uploadFailed(errors.New("file does not exist at the specified location"))
		}
		return "", uploadFailed(fmt.Errorf("read audio file: %w", err))
	}

	ext := extension(path)
	filename := strings.TrimSpace(resource.Name)
	if filename == "" {
		filename = "audio." + ext
	}
	mimeType := MIMEType(ext)

	body, contentType, err := buildMultipart(filename, mimeType, data)
	if err != nil {
		return "", uploadFailed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), body)
	if err != nil {
		return "", uploadFailed(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("uploading audio",
		slog.String("endpoint", c.Endpoint()),
		slog.String("filename", filename),
		slog.String("mime", mimeType),
		slog.Int("bytes", len(data)),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", uploadFailed(ctxErr)
		}
		return "", domain.NewError(domain.ErrorCodeNetwork, connectionMessage, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewError(domain.ErrorCodeNetwork, connectionMessage, fmt.Errorf("read response body: %w", err))
	}
	text := string(raw)
	c.logger.Debug("prediction response", slog.Int("status", resp.StatusCode), slog.String("body", truncate(text, 200)))

	var parsed predictResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", domain.NewError(domain.ErrorCodeInvalidResponse, "Invalid JSON response: "+text, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", domain.NewError(domain.ErrorCodeServer, fmt.Sprintf("Server returned %d: %s", resp.StatusCode, text), nil)
	}

	if prediction := parsed.label(); prediction != "" {
		return prediction, nil
	}
	if failure := parsed.failure(); failure != "" {
		return "", domain.NewError(domain.ErrorCodeServer, "Server error: "+failure, nil)
	}
	return "", domain.NewError(domain.ErrorCodeInvalidResponse, "No prediction in response", nil)
}

// MIMEType maps a file extension to the content type sent with the upload.
// Unrecognized extensions are labelled audio/mp3.
func MIMEType(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "wav":
		return "audio/wav"
	case "m4a":
		return "audio/m4a"
	case "aac":
		return "audio/aac"
	default:
		return fallbackMIME
	}
}

func buildMultipart(filename string, mimeType string, data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	partHeader.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func uploadFailed(err error) error {
	return domain.NewError(domain.ErrorCodeUpload, "Failed to analyze audio", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
