package hmi

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	jsonRPCVersion = "2.0"
	writeWait      = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The head unit connects from the vehicle network
	},
}

// frame is a JSON-RPC 2.0 message
type frame struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      *uint32        `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *frameError    `json:"error,omitempty"`
}

type frameError struct {
	Code    int            `json:"code"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Handlers receive traffic from the head unit
type Handlers struct {
	// Response receives replies to requests
	Response func(Event)
	// Notification receives head unit notifications such as OnAppActivated
	Notification func(method string, params map[string]any)
	// Disconnected is called when the active connection closes
	Disconnected func()
}

// WSTransport is the WebSocket endpoint of the head unit. Only one head unit
// connection is active; a new connection replaces the previous one.
type WSTransport struct {
	logger *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	connID   string
	writeMu  sync.Mutex
	handlers Handlers
}

// NewWSTransport creates a transport without a connection
func NewWSTransport(logger *zap.Logger) *WSTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSTransport{logger: logger.Named("hmi.ws")}
}

// Bind sets the handlers for incoming traffic
func (t *WSTransport) Bind(h Handlers) {
	t.mu.Lock()
	t.handlers = h
	t.mu.Unlock()
}

// Connected reports whether a head unit is connected
func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// ConnectionID returns the id of the active connection
func (t *WSTransport) ConnectionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connID
}

// Send writes a request frame to the head unit
func (t *WSTransport) Send(req Request) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	f := frame{JSONRPC: jsonRPCVersion, Method: req.Method, Params: req.Params}
	if !req.Notification {
		id := req.CorrelationID
		f.ID = &id
	}
	data, err := sonic.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", req.Method, err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// HandleConnection upgrades the request and serves the head unit connection
func (t *WSTransport) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	connID := uuid.New().String()

	t.mu.Lock()
	previous := t.conn
	t.conn = conn
	t.connID = connID
	t.mu.Unlock()
	if previous != nil {
		previous.Close()
	}

	t.logger.Info("head unit connected", zap.String("conn_id", connID))
	t.readLoop(conn)

	conn.Close()
	t.mu.Lock()
	current := t.conn == conn
	if current {
		t.conn = nil
		t.connID = ""
	}
	handlers := t.handlers
	t.mu.Unlock()

	t.logger.Info("head unit disconnected", zap.String("conn_id", connID))
	if current && handlers.Disconnected != nil {
		handlers.Disconnected()
	}
}

// Close drops the active connection
func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		var f frame
		if err := sonic.Unmarshal(data, &f); err != nil {
			t.logger.Warn("malformed hmi frame", zap.Error(err))
			continue
		}
		t.dispatch(f)
	}
}

func (t *WSTransport) dispatch(f frame) {
	t.mu.Lock()
	handlers := t.handlers
	t.mu.Unlock()

	switch {
	case f.ID != nil && f.Method == "":
		if handlers.Response != nil {
			handlers.Response(decodeReply(f))
		}
	case f.ID == nil && f.Method != "":
		if handlers.Notification != nil {
			handlers.Notification(f.Method, f.Params)
		}
	default:
		t.logger.Debug("ignoring hmi frame", zap.String("method", f.Method))
	}
}

// decodeReply converts a response or error frame into an Event
func decodeReply(f frame) Event {
	ev := Event{CorrelationID: *f.ID}
	if f.Error != nil {
		ev.ResultCode = ResultCodeFromInt(f.Error.Code)
		ev.Payload = f.Error.Data
		if method, ok := f.Error.Data["method"].(string); ok {
			ev.Method = method
		}
		return ev
	}

	ev.Payload = f.Result
	ev.ResultCode = ResultSuccess
	if code, ok := f.Result["code"]; ok {
		ev.ResultCode = ResultCodeFromInt(toInt(code))
	}
	if method, ok := f.Result["method"].(string); ok {
		ev.Method = method
	}
	return ev
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return -1
	}
}
