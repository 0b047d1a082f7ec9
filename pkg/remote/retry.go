package remote

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// retryDo sends req up to maxAttempts times, doubling the wait from backoff
// after each failure. Network errors, 429 and 5xx are retried; other
// statuses return at once. The body is buffered and replayed, and the last
// retryable response is returned unread for the caller to map. Waiting
// stops as soon as the request's context is done.
func retryDo(client *http.Client, req *http.Request, maxAttempts int, backoff time.Duration) (*http.Response, error) {
	maxAttempts = max(maxAttempts, 1)

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	ctx := req.Context()
	var lastErr error
	for attempt := 1; ; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}
		resp, err := client.Do(req)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, err
		case err != nil:
			lastErr = err
		case !isRetryableStatus(resp.StatusCode) || attempt == maxAttempts:
			return resp, nil
		default:
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if attempt == maxAttempts {
			return nil, lastErr
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
}

// isRetryableStatus returns true for HTTP status codes that should be retried.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
