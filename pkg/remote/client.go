package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/folio/pkg/object"
	"github.com/odvcencio/folio/pkg/source"
	"github.com/odvcencio/folio/pkg/tree"
)

// Endpoint identifies a folio remote.
// BaseURL has no trailing slash, query or credentials.
type Endpoint struct {
	Raw     string
	BaseURL string
	user    string
	pass    string
}

// ParseEndpoint parses a remote URL such as https://host/content into a
// canonical endpoint. Userinfo in the URL becomes Basic credentials.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("remote URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse remote URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("remote URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("remote URL must include a host")
	}

	endpointURL := *u
	endpointURL.RawPath = ""
	endpointURL.RawQuery = ""
	endpointURL.Fragment = ""
	user := ""
	pass := ""
	if endpointURL.User != nil {
		user = endpointURL.User.Username()
		pass, _ = endpointURL.User.Password()
	}
	endpointURL.User = nil

	return Endpoint{
		Raw:     raw,
		BaseURL: strings.TrimRight(endpointURL.String(), "/"),
		user:    user,
		pass:    pass,
	}, nil
}

// eventsURL is the websocket address of the event stream.
func (e Endpoint) eventsURL() string {
	base := e.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/events"
}

// ClientOptions configures the remote protocol client.
type ClientOptions struct {
	Timeout     time.Duration // HTTP client timeout (default 60s)
	MaxAttempts int           // retry attempts (default 3)
	Backoff     time.Duration // first retry delay (default 1s)
	Token       string        // bearer token; defaults to FOLIO_TOKEN
}

// Response limits per endpoint type.
const (
	responseLimitDefault = 2 << 20  // 2MB
	responseLimitTree    = 32 << 20 // 32MB
	responseLimitBlobs   = 64 << 20 // 64MB
)

// Client talks to a folio server. It implements source.Source and
// source.Target, so a remote can stand wherever a local backing does.
type Client struct {
	endpoint    Endpoint
	httpClient  *http.Client
	token       string
	user        string
	pass        string
	maxAttempts int
	backoff     time.Duration
}

var (
	_ source.Source = (*Client)(nil)
	_ source.Target = (*Client)(nil)
)

// NewClient creates a remote protocol client with default options.
//
// Auth resolution order:
// 1) ClientOptions.Token or FOLIO_TOKEN (Bearer)
// 2) FOLIO_USERNAME + FOLIO_PASSWORD (Basic)
// 3) URL userinfo (Basic)
func NewClient(remoteURL string) (*Client, error) {
	return NewClientWithOptions(remoteURL, ClientOptions{})
}

// NewClientWithOptions creates a remote protocol client with configurable options.
// Zero-value or negative fields in opts receive defaults.
func NewClientWithOptions(remoteURL string, opts ClientOptions) (*Client, error) {
	endpoint, err := ParseEndpoint(remoteURL)
	if err != nil {
		return nil, err
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	token := strings.TrimSpace(opts.Token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("FOLIO_TOKEN"))
	}
	user := strings.TrimSpace(os.Getenv("FOLIO_USERNAME"))
	pass := os.Getenv("FOLIO_PASSWORD")
	if token == "" && user == "" && endpoint.user != "" {
		user = endpoint.user
		pass = endpoint.pass
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		token:       token,
		user:        user,
		pass:        pass,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
	}, nil
}

// Endpoint returns the parsed endpoint metadata.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	_, err = c.doWithLimit(req, http.StatusOK, responseLimitDefault)
	return err
}

// GetTree returns the remote's current tree.
func (c *Client) GetTree(ctx context.Context) (*tree.Tree, error) {
	return c.getTree(ctx, "")
}

// GetTreeIfDifferent returns nil, nil when the remote tree is sha; the
// listing is not transferred in that case.
func (c *Client) GetTreeIfDifferent(ctx context.Context, sha object.Hash) (*tree.Tree, error) {
	return c.getTree(ctx, sha)
}

func (c *Client) getTree(ctx context.Context, have object.Hash) (*tree.Tree, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.BaseURL+"/tree", nil)
	if err != nil {
		return nil, err
	}
	if have != "" {
		req.Header.Set("If-None-Match", etag(have))
	}
	body, status, err := c.send(req, responseLimitTree, http.StatusOK, http.StatusNotModified)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotModified {
		return nil, nil
	}
	var listing treeListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode tree response: %w", err)
	}
	return listing.tree()
}

// GetBlobs fetches blobs in request order and verifies their ids.
func (c *Client) GetBlobs(ctx context.Context, shas []object.Hash) ([]source.Blob, error) {
	if len(shas) == 0 {
		return nil, nil
	}
	for _, h := range shas {
		if err := object.ValidateHash(h); err != nil {
			return nil, fmt.Errorf("get blobs: %w", err)
		}
	}
	var resp blobsResponse
	if err := c.postJSON(ctx, "/blobs", blobsRequest{Shas: shas}, responseLimitBlobs, &resp); err != nil {
		return nil, err
	}
	if len(resp.Blobs) != len(shas) {
		return nil, fmt.Errorf("get blobs: asked for %d, received %d", len(shas), len(resp.Blobs))
	}
	for i, b := range resp.Blobs {
		if b.Data == nil {
			resp.Blobs[i].Data = []byte{}
		}
		if b.Sha != shas[i] || object.HashBlob(resp.Blobs[i].Data) != shas[i] {
			return nil, &object.CorruptDataError{What: "blob", Sha: shas[i], Err: fmt.Errorf("remote sent %s", b.Sha.Short())}
		}
	}
	return resp.Blobs, nil
}

// ApplyChanges applies changes on the remote without concurrency checks.
func (c *Client) ApplyChanges(ctx context.Context, changes []tree.Change) error {
	if len(changes) == 0 {
		return nil
	}
	return c.postJSON(ctx, "/changes", changesRequest{Changes: changes}, responseLimitDefault, &shaResponse{})
}

// Commit sends req to the remote. A conflicting commit fails with a
// *source.ShaMismatchError.
func (c *Client) Commit(ctx context.Context, req *source.CommitRequest) (object.Hash, error) {
	var resp shaResponse
	if err := c.postJSON(ctx, "/commit", req, responseLimitDefault, &resp); err != nil {
		return "", err
	}
	if err := object.ValidateHash(resp.Sha); err != nil {
		return "", fmt.Errorf("commit response: %w", err)
	}
	return resp.Sha, nil
}

// Subscribe calls fn with the remote tree sha on connect and after every
// change until ctx is done or the connection drops.
func (c *Client) Subscribe(ctx context.Context, fn func(sha object.Hash)) error {
	header := http.Header{}
	c.applyAuth(header)
	dialer := websocket.Dialer{HandshakeTimeout: c.httpClient.Timeout}
	conn, resp, err := dialer.DialContext(ctx, c.endpoint.eventsURL(), header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, responseLimitDefault))
			resp.Body.Close()
			if re := tryParseRemoteError(body); re != nil {
				return re.local()
			}
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("subscribe: %w", err)
		}
		if err := object.ValidateHash(ev.Sha); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		fn(ev.Sha)
	}
}

// postJSON sends a zstd-compressed JSON body and decodes the JSON answer
// into out.
func (c *Client) postJSON(ctx context.Context, path string, in any, limit int64, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	compressed, err := compressZstd(payload)
	if err != nil {
		return fmt.Errorf("compress request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.BaseURL+path, bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "zstd")
	body, err := c.doWithLimit(req, http.StatusOK, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) doWithLimit(req *http.Request, expectedStatus int, maxBytes int64) ([]byte, error) {
	body, _, err := c.send(req, maxBytes, expectedStatus)
	return body, err
}

// send performs req with retries and returns the decoded body of a
// response whose status is one of accept.
func (c *Client) send(req *http.Request, maxBytes int64, accept ...int) ([]byte, int, error) {
	c.applyAuth(req.Header)
	req.Header.Set("Accept-Encoding", "zstd")
	resp, err := retryDo(c.httpClient, req, c.maxAttempts, c.backoff)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if readErr != nil {
		return nil, 0, readErr
	}
	if isZstdEncoded(resp.Header.Get("Content-Encoding")) && len(body) > 0 {
		if body, err = decompressZstd(body); err != nil {
			return nil, 0, fmt.Errorf("decompress response: %w", err)
		}
	}

	for _, status := range accept {
		if resp.StatusCode == status {
			return body, status, nil
		}
	}
	if re := tryParseRemoteError(body); re != nil {
		return nil, resp.StatusCode, re.local()
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return nil, resp.StatusCode, fmt.Errorf("remote request failed (%s %s): %s", req.Method, req.URL.Path, msg)
}

func (c *Client) applyAuth(h http.Header) {
	h.Set(headerProtocol, ProtocolVersion)
	h.Set(headerCapabilities, ClientCapabilities)

	if strings.TrimSpace(c.token) != "" {
		h.Set("Authorization", "Bearer "+c.token)
		return
	}
	if strings.TrimSpace(c.user) != "" {
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.user+":"+c.pass)))
	}
}

func etag(sha object.Hash) string {
	return `"` + string(sha) + `"`
}
