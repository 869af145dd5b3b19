package bridge

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
)

const maxResponseBytes = 16 * 1024 * 1024 // 16 MB
const requestTimeout = 60 * time.Second

// networkingModule implements the Networking capability: outbound HTTP with
// asynchronous completion. sendRequest returns immediately after recording
// the in-flight request; the response (or failure) is emitted as an event
// once the round trip finishes, so slow requests never stall the native
// queue and abortRequest can cancel them mid-flight.
type networkingModule struct {
	sink   *eventSink
	client *http.Client

	mu       sync.Mutex
	inflight map[int]context.CancelFunc
}

func newNetworkingModule(sink *eventSink) *networkingModule {
	return &networkingModule{
		sink:     sink,
		client:   &http.Client{Timeout: requestTimeout},
		inflight: make(map[int]context.CancelFunc),
	}
}

func (m *networkingModule) Methods() map[string]Method {
	return map[string]Method{
		"sendRequest":  m.sendRequest,
		"abortRequest": m.abortRequest,
	}
}

// sendRequest(method, url, headers, body, requestID) issues an HTTP request.
// Completion arrives as a "networkingResponse" event {requestID, status,
// headers, body}; failures as "networkingFailed" {requestID, error}.
func (m *networkingModule) sendRequest(args []any) (any, error) {
	if len(args) < 5 {
		return nil, fmt.Errorf("sendRequest: want (method, url, headers, body, requestID), got %d arguments", len(args))
	}
	method, _ := args[0].(string)
	url, _ := args[1].(string)
	if method == "" || url == "" {
		return nil, fmt.Errorf("sendRequest: method and url must be non-empty strings")
	}
	headers := map[string]string{}
	if h, ok := args[2].(map[string]any); ok {
		for k, v := range h {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}
	body, _ := args[3].(string)
	requestID, err := intArg(args, 4, "sendRequest")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.inflight[requestID] = cancel
	m.mu.Unlock()

	go m.roundTrip(ctx, requestID, method, url, headers, body)
	return nil, nil
}

func (m *networkingModule) roundTrip(ctx context.Context, requestID int, method, url string, headers map[string]string, body string) {
	defer func() {
		m.mu.Lock()
		delete(m.inflight, requestID)
		m.mu.Unlock()
	}()

	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		m.fail(requestID, err)
		return
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.fail(requestID, err)
		return
	}
	defer resp.Body.Close()

	data, err := decodeResponseBody(resp)
	if err != nil {
		m.fail(requestID, err)
		return
	}

	respHeaders := map[string]string{}
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	payload, err := json.Marshal(map[string]any{
		"requestID": requestID,
		"status":    resp.StatusCode,
		"headers":   respHeaders,
		"body":      string(data),
	})
	if err != nil {
		m.fail(requestID, err)
		return
	}
	m.sink.Emit("networkingResponse", string(payload))
}

func (m *networkingModule) fail(requestID int, err error) {
	payload, _ := json.Marshal(map[string]any{
		"requestID": requestID,
		"error":     err.Error(),
	})
	m.sink.Emit("networkingFailed", string(payload))
}

// abortRequest(requestID) cancels an in-flight request. Unknown or already
// finished ids are a no-op.
func (m *networkingModule) abortRequest(args []any) (any, error) {
	requestID, err := intArg(args, 0, "abortRequest")
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	cancel := m.inflight[requestID]
	delete(m.inflight, requestID)
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil, nil
}

func (m *networkingModule) Close() error {
	m.mu.Lock()
	for id, cancel := range m.inflight {
		cancel()
		delete(m.inflight, id)
	}
	m.mu.Unlock()
	return nil
}

// decodeResponseBody reads the response body, transparently decompressing
// gzip, deflate, and brotli encodings, capped at maxResponseBytes.
func decodeResponseBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip response: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	case "br":
		reader = brotli.NewReader(resp.Body)
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}
	return data, nil
}
