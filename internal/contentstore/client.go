package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentgate/internal/domain"
)

// ErrNotFound reports that a (thread_id, file_id) pair has no entry. The
// tool layer maps it to a recoverable "ask the user to re-upload" result,
// never to a failed dispatch.
var ErrNotFound = errors.New("file not found")

// Client is the collaborator boundary the file tools read through. The
// production implementations are LocalClient and HTTPClient; tests provide
// fakes.
type Client interface {
	ListFiles(ctx context.Context, threadID string) ([]domain.FileMetadata, error)
	GetFile(ctx context.Context, threadID, fileID string) (domain.FileRecord, error)
}

// LocalClient serves tool reads directly from an in-process Store.
type LocalClient struct {
	store *Store
}

func NewLocalClient(store *Store) *LocalClient {
	return &LocalClient{store: store}
}

func (c *LocalClient) ListFiles(_ context.Context, threadID string) ([]domain.FileMetadata, error) {
	return c.store.List(threadID), nil
}

func (c *LocalClient) GetFile(_ context.Context, threadID, fileID string) (domain.FileRecord, error) {
	record, ok := c.store.Get(threadID, fileID)
	if !ok {
		return domain.FileRecord{}, ErrNotFound
	}
	return record, nil
}

// HTTPClient speaks to an external content store service:
// GET {base}/files/{thread_id} and GET {base}/file/{thread_id}/{file_id}.
// A 404 maps to ErrNotFound; everything else non-2xx is a transport error.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return NewHTTPClientWith(baseURL, &http.Client{Timeout: 10 * time.Second})
}

func NewHTTPClientWith(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *HTTPClient) ListFiles(ctx context.Context, threadID string) ([]domain.FileMetadata, error) {
	var out []domain.FileMetadata
	if err := c.getJSON(ctx, fmt.Sprintf("%s/files/%s", c.baseURL, threadID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetFile(ctx context.Context, threadID, fileID string) (domain.FileRecord, error) {
	var out domain.FileRecord
	if err := c.getJSON(ctx, fmt.Sprintf("%s/file/%s/%s", c.baseURL, threadID, fileID), &out); err != nil {
		return domain.FileRecord{}, err
	}
	return out, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create content store request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("content store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return fmt.Errorf("read content store response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("content store returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("content store response is not valid json: %w", err)
	}
	return nil
}
