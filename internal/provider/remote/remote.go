// Package remote implements the remote provider variant: an HTTP
// request/response transport with server-sent events for notifications,
// standing in for the stdio child process used by the local variants while
// exposing the identical ProviderCapabilities/StreamChunk surface.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arcway-dev/orchestra/internal/idutil"
	"github.com/arcway-dev/orchestra/internal/jsonrpc"
	"github.com/arcway-dev/orchestra/internal/logging"
	"github.com/arcway-dev/orchestra/internal/orcherrors"
)

// NotificationHandler receives inbound notifications delivered over the
// SSE channel.
type NotificationHandler func(req *jsonrpc.Request)

// Client is a minimal remote-agent client over HTTP POST + SSE.
type Client struct {
	baseURL        string
	clientID       string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         logging.Logger

	mu       sync.Mutex
	running  bool
	readDone chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan *jsonrpc.Response
	idGen     atomic.Int64
}

// Dial validates addr and returns a Client ready to Start.
func Dial(addr string, timeout time.Duration, logger logging.Logger) (*Client, error) {
	base, err := normalizeAddr(addr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:        base,
		clientID:       idutil.New("remote"),
		httpClient:     &http.Client{},
		requestTimeout: timeout,
		logger:         logging.OrNop(logger),
		readDone:       make(chan struct{}),
		pending:        make(map[string]chan *jsonrpc.Response),
	}, nil
}

// Close releases idle HTTP connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient.CloseIdleConnections()
	c.running = false
	return nil
}

// Start begins consuming the SSE notification stream until ctx is done.
func (c *Client) Start(ctx context.Context, handler NotificationHandler) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	go func() {
		defer close(c.readDone)
		c.readLoop(ctx, handler)
	}()
}

// Wait blocks until the SSE read loop exits.
func (c *Client) Wait() { <-c.readDone }

// Call issues a JSON-RPC request over HTTP POST and waits for its matching
// response to arrive on the SSE stream.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (*jsonrpc.Response, error) {
	id := c.idGen.Add(1)
	key := fmt.Sprintf("%d", id)
	respCh := make(chan *jsonrpc.Response, 1)

	c.pendingMu.Lock()
	c.pending[key] = respCh
	c.pendingMu.Unlock()

	payload, err := jsonrpc.Marshal(jsonrpc.NewRequest(id, method, params))
	if err != nil {
		c.clearPending(key)
		return nil, err
	}
	if err := c.post(ctx, payload); err != nil {
		c.clearPending(key)
		return nil, orcherrors.Wrap(orcherrors.KindTransport, "remote.Call", "post request", err)
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		c.clearPending(key)
		return nil, ctx.Err()
	}
}

// Notify posts method as a fire-and-forget notification.
func (c *Client) Notify(method string, params map[string]any) error {
	payload, err := jsonrpc.Marshal(jsonrpc.NewNotification(method, params))
	if err != nil {
		return err
	}
	return c.post(context.Background(), payload)
}

func (c *Client) clearPending(key string) {
	c.pendingMu.Lock()
	delete(c.pending, key)
	c.pendingMu.Unlock()
}

func (c *Client) readLoop(ctx context.Context, handler NotificationHandler) {
	backoff := 200 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.consumeSSE(ctx, handler); err != nil && ctx.Err() == nil {
			c.logger.Warn("remote: sse read failed: %v", err)
		}
		if ctx.Err() != nil {
			return
		}
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

func (c *Client) consumeSSE(ctx context.Context, handler NotificationHandler) error {
	endpoint := fmt.Sprintf("%s/agent/sse?client_id=%s", c.baseURL, url.QueryEscape(c.clientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote: sse status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	reader := bufio.NewReader(resp.Body)
	var dataLines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if len(dataLines) == 0 {
				continue
			}
			payload := strings.Join(dataLines, "\n")
			dataLines = nil
			c.handlePayload(handler, []byte(payload))
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
		}
	}
}

func (c *Client) handlePayload(handler NotificationHandler, payload []byte) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return
	}

	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		c.logger.Warn("remote: unparsable sse payload: %v", err)
		return
	}

	if probe.Method == "" {
		resp, err := jsonrpc.UnmarshalResponse(payload)
		if err != nil {
			c.logger.Warn("remote: bad response payload: %v", err)
			return
		}
		key := fmt.Sprintf("%v", resp.ID)
		c.pendingMu.Lock()
		ch, ok := c.pending[key]
		if ok {
			delete(c.pending, key)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
		return
	}

	req, err := jsonrpc.UnmarshalRequest(payload)
	if err != nil {
		c.logger.Warn("remote: bad request payload: %v", err)
		return
	}
	if handler != nil {
		handler(req)
	}
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	if _, ok := ctx.Deadline(); !ok && c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	endpoint := fmt.Sprintf("%s/agent/rpc?client_id=%s", c.baseURL, url.QueryEscape(c.clientID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote: rpc status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

func normalizeAddr(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", orcherrors.New(orcherrors.KindConfiguration, "remote.Dial", "addr is required")
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/"), nil
	}
	if strings.Contains(addr, "://") {
		return "", orcherrors.New(orcherrors.KindConfiguration, "remote.Dial", "unsupported addr scheme: "+addr)
	}
	return "http://" + strings.TrimRight(addr, "/"), nil
}
