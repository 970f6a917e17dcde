// Package client talks to the task API on behalf of a signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"
	"sync"
)

// ErrUnauthorized is returned for 401 responses. The stored token has
// already been cleared when a caller sees it.
var ErrUnauthorized = errors.New("client: unauthenticated")

// TokenStore holds the bearer token shared by every request.
type TokenStore interface {
	Token() string
	SetToken(token string)
	Clear()
}

// MemoryTokenStore keeps the token in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func (s *MemoryTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *MemoryTokenStore) Clear() { s.SetToken("") }

// Config is passed to every request instead of living in package state, so
// several configurations can coexist.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8000/api".
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Tokens supplies the bearer token. If nil, requests are sent anonymously.
	Tokens TokenStore
}

// APIError is a non-2xx response carrying the server's error envelope.
type APIError struct {
	StatusCode int               `json:"-"`
	Message    string            `json:"message"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// FilePart is a file attached to a multipart request.
type FilePart struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Multipart is a form body. Fields are written in key order so requests are
// reproducible.
type Multipart struct {
	Fields map[string]string
	Files  map[string]*FilePart
}

// Do sends one request and returns the raw 2xx body. body may be nil, a
// *Multipart, or any value encoded as JSON.
func Do(ctx context.Context, cfg Config, method, path string, body any) ([]byte, error) {
	requestURL := strings.TrimRight(cfg.BaseURL, "/") + path

	var bodyReader io.Reader
	var contentType string
	switch b := body.(type) {
	case nil:
	case *Multipart:
		encoded, ct, err := b.encode()
		if err != nil {
			return nil, fmt.Errorf("client: failed to encode form: %w", err)
		}
		bodyReader, contentType = encoded, ct
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: failed to encode request body: %w", err)
		}
		bodyReader, contentType = bytes.NewReader(encoded), "application/json"
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("client: failed to create request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if cfg.Tokens != nil {
		if token := cfg.Tokens.Token(); token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("client: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("client: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	apiErr := &APIError{StatusCode: response.StatusCode}
	if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(responseBody))
	}
	if response.StatusCode == http.StatusUnauthorized && cfg.Tokens != nil {
		cfg.Tokens.Clear()
	}
	return nil, apiErr
}

func (m *Multipart) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, key := range sortedKeys(m.Fields) {
		if err := w.WriteField(key, m.Fields[key]); err != nil {
			return nil, "", err
		}
	}
	for _, key := range sortedKeys(m.Files) {
		f := m.Files[key]
		if f == nil {
			continue
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, key, f.Filename))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
