package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Fetcher reads sources from a direct access URL.
type Fetcher struct {
	Client *http.Client
}

// Fetch opens rawURL. Any failure is the caller's problem: a malformed
// URL or one that cannot be read are both bad requests.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &TransformError{Status: http.StatusBadRequest, Message: "Direct Access Url is invalid.", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &TransformError{Status: http.StatusBadRequest, Message: "Direct Access Url is invalid.", Err: err}
	}

	client := http.DefaultClient
	if f != nil && f.Client != nil {
		client = f.Client
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransformError{Status: http.StatusBadRequest, Message: "Direct Access Url not found.", Err: err}
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, &TransformError{
			Status:  http.StatusBadRequest,
			Message: "Direct Access Url not found.",
			Err:     fmt.Errorf("GET %s: %s", u.Redacted(), resp.Status),
		}
	}
	return resp.Body, nil
}
