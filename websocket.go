package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const maxWSMessageBytes = 64 * 1024
const wsDialTimeout = 10 * time.Second
const wsWriteTimeout = 10 * time.Second

// webSocketModule implements the WebSocketModule capability. connect/send/
// close run on the native queue; a per-connection read pump goroutine
// delivers incoming frames to the script context as events.
type webSocketModule struct {
	sink *eventSink

	mu    sync.Mutex
	conns map[int]*wsConn
}

type wsConn struct {
	id     int
	conn   *websocket.Conn
	cancel context.CancelFunc
}

func newWebSocketModule(sink *eventSink) *webSocketModule {
	return &webSocketModule{
		sink:  sink,
		conns: make(map[int]*wsConn),
	}
}

func (m *webSocketModule) Methods() map[string]Method {
	return map[string]Method{
		"connect":    m.connect,
		"send":       m.send,
		"sendBinary": m.sendBinary,
		"ping":       m.ping,
		"close":      m.close,
	}
}

// connect(url, socketID) dials the endpoint and starts the read pump.
// Incoming text frames arrive as "websocketMessage" events {id, type:"text",
// data}; binary frames carry base64 data with type:"binary". Connection end
// emits "websocketClosed" (clean) or "websocketFailed" (error).
func (m *webSocketModule) connect(args []any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("connect: want (url, socketID)")
	}
	url, _ := args[0].(string)
	if url == "" {
		return nil, fmt.Errorf("connect: url must be a non-empty string")
	}
	id, err := intArg(args, 1, "connect")
	if err != nil {
		return nil, err
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), wsDialTimeout)
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	dialCancel()
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	conn.SetReadLimit(maxWSMessageBytes)

	ctx, cancel := context.WithCancel(context.Background())
	wc := &wsConn{id: id, conn: conn, cancel: cancel}

	m.mu.Lock()
	if old, ok := m.conns[id]; ok {
		old.cancel()
		_ = old.conn.Close(websocket.StatusNormalClosure, "replaced")
	}
	m.conns[id] = wc
	m.mu.Unlock()

	go m.readPump(ctx, wc)
	return nil, nil
}

// readPump reads frames until the connection drops, forwarding each to the
// script context through the sink.
func (m *webSocketModule) readPump(ctx context.Context, wc *wsConn) {
	defer func() {
		m.mu.Lock()
		if m.conns[wc.id] == wc {
			delete(m.conns, wc.id)
		}
		m.mu.Unlock()
	}()

	for {
		msgType, data, err := wc.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != -1 {
				payload, _ := json.Marshal(map[string]any{"id": wc.id, "code": int(status)})
				m.sink.Emit("websocketClosed", string(payload))
			} else if ctx.Err() == nil {
				payload, _ := json.Marshal(map[string]any{"id": wc.id, "error": err.Error()})
				m.sink.Emit("websocketFailed", string(payload))
			}
			return
		}

		var payload []byte
		if msgType == websocket.MessageBinary {
			payload, _ = json.Marshal(map[string]any{
				"id":   wc.id,
				"type": "binary",
				"data": base64.StdEncoding.EncodeToString(data),
			})
		} else {
			payload, _ = json.Marshal(map[string]any{
				"id":   wc.id,
				"type": "text",
				"data": string(data),
			})
		}
		m.sink.Emit("websocketMessage", string(payload))
	}
}

// send(socketID, data) writes a text frame.
func (m *webSocketModule) send(args []any) (any, error) {
	wc, data, err := m.connAndData(args, "send")
	if err != nil {
		return nil, err
	}
	return nil, m.write(wc, websocket.MessageText, []byte(data))
}

// sendBinary(socketID, base64Data) writes a binary frame.
func (m *webSocketModule) sendBinary(args []any) (any, error) {
	wc, data, err := m.connAndData(args, "sendBinary")
	if err != nil {
		return nil, err
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("sendBinary: decoding payload: %w", err)
	}
	return nil, m.write(wc, websocket.MessageBinary, decoded)
}

// ping(socketID) sends a ping and waits for the pong.
func (m *webSocketModule) ping(args []any) (any, error) {
	id, err := intArg(args, 0, "ping")
	if err != nil {
		return nil, err
	}
	wc, err := m.lookup(id, "ping")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return nil, wc.conn.Ping(ctx)
}

// close(socketID, code, reason) closes the connection; further frames on the
// socket are rejected.
func (m *webSocketModule) close(args []any) (any, error) {
	id, err := intArg(args, 0, "close")
	if err != nil {
		return nil, err
	}
	code := int(websocket.StatusNormalClosure)
	if len(args) > 1 {
		if c, cErr := intArg(args, 1, "close"); cErr == nil {
			code = c
		}
	}
	reason := ""
	if len(args) > 2 {
		reason, _ = args[2].(string)
	}

	m.mu.Lock()
	wc := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if wc == nil {
		return nil, nil
	}
	wc.cancel()
	return nil, wc.conn.Close(websocket.StatusCode(code), reason)
}

func (m *webSocketModule) Close() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[int]*wsConn)
	m.mu.Unlock()
	for _, wc := range conns {
		wc.cancel()
		_ = wc.conn.Close(websocket.StatusGoingAway, "bridge teardown")
	}
	return nil
}

func (m *webSocketModule) connAndData(args []any, method string) (*wsConn, string, error) {
	if len(args) < 2 {
		return nil, "", fmt.Errorf("%s: want (socketID, data)", method)
	}
	id, err := intArg(args, 0, method)
	if err != nil {
		return nil, "", err
	}
	data, ok := args[1].(string)
	if !ok {
		return nil, "", fmt.Errorf("%s: data must be a string, got %T", method, args[1])
	}
	wc, err := m.lookup(id, method)
	if err != nil {
		return nil, "", err
	}
	return wc, data, nil
}

func (m *webSocketModule) lookup(id int, method string) (*wsConn, error) {
	m.mu.Lock()
	wc := m.conns[id]
	m.mu.Unlock()
	if wc == nil {
		return nil, fmt.Errorf("%s: no open socket %d", method, id)
	}
	return wc, nil
}

func (m *webSocketModule) write(wc *wsConn, typ websocket.MessageType, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return wc.conn.Write(ctx, typ, data)
}
