// Package sfs implements storage.FileStore as a client of an external
// Shared File Store service. The service issues its own references, so
// they are passed through unchanged.
package sfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rhuss/wandel/pkg/debug"
	"github.com/rhuss/wandel/pkg/observability"
	"github.com/rhuss/wandel/pkg/storage"
)

const backend = "sfs"

// DefaultPath is the file endpoint of an Alfresco-style Shared File Store.
const DefaultPath = "/alfresco/api/-default-/private/sfs/versions/1/file"

// Store talks to a Shared File Store over HTTP.
type Store struct {
	baseURL string
	client  *http.Client
}

// Ensure Store implements storage.FileStore at compile time.
var _ storage.FileStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithHTTPClient sets the HTTP client used for all calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// New creates a client for the file endpoint at fileURL. When fileURL
// has no path, DefaultPath is appended.
func New(fileURL string, opts ...Option) (*Store, error) {
	u, err := url.Parse(fileURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("sfs: invalid url %q", fileURL)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}
	s := &Store{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// fileRefResponse is the body returned by a successful upload.
type fileRefResponse struct {
	Entry struct {
		FileRef string `json:"fileRef"`
	} `json:"entry"`
}

// Save uploads r as the multipart field "file".
func (s *Store) Save(ctx context.Context, r io.Reader, size int64, contentType string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(fileHeader(contentType))
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		observability.RecordStoreOp(backend, "save", err)
		return "", fmt.Errorf("uploading file: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		observability.RecordStoreOp(backend, "save", err)
		return "", err
	}

	var ref fileRefResponse
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		observability.RecordStoreOp(backend, "save", err)
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if ref.Entry.FileRef == "" {
		err := errors.New("upload response has no fileRef")
		observability.RecordStoreOp(backend, "save", err)
		return "", err
	}
	observability.RecordStoreOp(backend, "save", nil)
	debug.Log("storage", "saved file", "backend", backend, "ref", ref.Entry.FileRef)
	return ref.Entry.FileRef, nil
}

// Retrieve downloads the file for ref.
func (s *Store) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	u, err := s.fileURL(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		observability.RecordStoreOp(backend, "retrieve", err)
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	if err := statusError(resp); err != nil {
		resp.Body.Close()
		observability.RecordStoreOp(backend, "retrieve", err)
		return nil, err
	}
	observability.RecordStoreOp(backend, "retrieve", nil)
	return resp.Body, nil
}

// Delete removes the file for ref.
func (s *Store) Delete(ctx context.Context, ref string) error {
	u, err := s.fileURL(ref)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		observability.RecordStoreOp(backend, "delete", err)
		return fmt.Errorf("deleting file: %w", err)
	}
	defer resp.Body.Close()
	err = statusError(resp)
	observability.RecordStoreOp(backend, "delete", err)
	return err
}

// HealthCheck issues a HEAD against the file endpoint. Any answer below
// 500 means the service is up.
func (s *Store) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("shared file store unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("shared file store unhealthy: %s", resp.Status)
	}
	return nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Store) fileURL(ref string) (string, error) {
	if ref == "" || strings.ContainsAny(ref, "/?#") {
		return "", storage.ErrInvalidReference
	}
	return s.baseURL + "/" + url.PathEscape(ref), nil
}

func fileHeader(contentType string) map[string][]string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="file"`},
		"Content-Type":        {contentType},
	}
}

// statusError maps a non-2xx response onto the storage sentinels.
func statusError(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return storage.ErrNotFound
	case http.StatusBadRequest:
		return storage.ErrInvalidReference
	case http.StatusInsufficientStorage, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", storage.ErrInsufficientStorage, strings.TrimSpace(string(msg)))
	}
	return fmt.Errorf("shared file store returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}
