package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"complaint-pipeline/internal/fault"
)

// remoteClient posts payloads to the external analysis services and decodes
// their JSON responses. Failures wrap fault.ErrAnalyzer so the worker can
// tell analysis faults apart from commit faults.
type remoteClient struct {
	http *http.Client
}

func (c *remoteClient) postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.post(ctx, url, "application/json", body, out)
}

func (c *remoteClient) postBytes(ctx context.Context, url, contentType string, body []byte, out any) error {
	return c.post(ctx, url, contentType, body, out)
}

func (c *remoteClient) post(ctx context.Context, url, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", fault.ErrAnalyzer, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: status %d: %s", fault.ErrAnalyzer, url, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", fault.ErrAnalyzer, url, err)
	}
	return nil
}
