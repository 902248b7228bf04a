package hmi

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransportServer(t *testing.T) (*WSTransport, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	transport := NewWSTransport(nil)
	router := gin.New()
	router.GET("/hmi", transport.HandleConnection)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/hmi"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, transport.Connected, time.Second, 5*time.Millisecond)
	return transport, conn
}

func TestWSTransportRoundTrip(t *testing.T) {
	transport, conn := newTransportServer(t)
	d := NewDispatcher(transport, time.Second, nil)

	var (
		mu     sync.Mutex
		events []Event
	)
	transport.Bind(Handlers{Response: func(ev Event) { d.Deliver(ev) }})
	assert.NotEmpty(t, transport.ConnectionID())

	id, err := d.Send(SubscribeWayPoints(42), func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, sonic.Unmarshal(data, &got))
	assert.Equal(t, "2.0", got["jsonrpc"])
	assert.Equal(t, MethodSubscribeWayPoints, got["method"])
	assert.Equal(t, float64(id), got["id"])

	reply := `{"jsonrpc":"2.0","id":` + strconv.FormatUint(uint64(id), 10) + `,"result":{"code":0,"method":"Navigation.SubscribeWayPoints"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(reply)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1 && events[0].ResultCode == ResultSuccess
	}, time.Second, 5*time.Millisecond)
}

func TestWSTransportErrorReplyAndNotification(t *testing.T) {
	transport, conn := newTransportServer(t)

	replies := make(chan Event, 1)
	notifications := make(chan string, 1)
	transport.Bind(Handlers{
		Response:     func(ev Event) { replies <- ev },
		Notification: func(method string, params map[string]any) { notifications <- method },
	})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":5,"error":{"code":4,"message":"busy","data":{"method":"UI.AddCommand"}}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","method":"BasicCommunication.OnAppActivated","params":{"appID":3}}`)))

	select {
	case ev := <-replies:
		assert.Equal(t, uint32(5), ev.CorrelationID)
		assert.Equal(t, ResultRejected, ev.ResultCode)
		assert.Equal(t, MethodUIAddCommand, ev.Method)
	case <-time.After(time.Second):
		t.Fatal("reply not delivered")
	}

	select {
	case method := <-notifications:
		assert.Equal(t, MethodOnAppActivated, method)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestWSTransportDisconnect(t *testing.T) {
	transport, conn := newTransportServer(t)

	disconnected := make(chan struct{})
	transport.Bind(Handlers{Disconnected: func() { close(disconnected) }})

	conn.Close()

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("disconnect not reported")
	}
	assert.False(t, transport.Connected())
	assert.ErrorIs(t, transport.Send(SubscribeWayPoints(1)), ErrNotConnected)
}
