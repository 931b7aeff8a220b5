package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-station-simulator/internal/config"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: time.Second,
		PingInterval:     time.Second,
		PongTimeout:      time.Second,
		MaxMessageSize:   1 << 20,
	}
}

// startTestCSMS 最小CSMS：接受ocpp子协议，回显收到的帧
func startTestCSMS(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()

	received := &sync.Map{}
	upgrader := websocket.Upgrader{
		Subprotocols: []string{SubprotocolOCPP16, SubprotocolOCPP201},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		received.Store("path", r.URL.Path)
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(messageType, data)
		}
	}))
	t.Cleanup(server.Close)
	return server, received
}

func serverURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClientConnectAndEcho(t *testing.T) {
	server, received := startTestCSMS(t)

	client, err := NewClient("CP-WS", SubprotocolOCPP16, config.CSMSConfig{
		URL:               serverURL(server),
		ReconnectInterval: 100 * time.Millisecond,
	}, testWSConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(client.Stop)

	opened := make(chan struct{})
	frames := make(chan []byte, 1)
	client.SetOnOpen(func() { close(opened) })
	client.SetOnFrame(func(data []byte) { frames <- data })

	client.Start()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not connect")
	}
	assert.True(t, client.IsOpen())

	// 站点ID附加到路径
	path, _ := received.Load("path")
	assert.Equal(t, "/CP-WS", path)

	require.NoError(t, client.Send([]byte(`[2,"id-1","Heartbeat",{}]`)))

	select {
	case frame := <-frames:
		assert.Equal(t, `[2,"id-1","Heartbeat",{}]`, string(frame))
	case <-time.After(2 * time.Second):
		t.Fatal("echo frame not received")
	}
}

func TestClientSendWhileClosed(t *testing.T) {
	client, err := NewClient("CP-WS", SubprotocolOCPP16, config.CSMSConfig{
		URL:               "ws://localhost:1",
		ReconnectInterval: time.Second,
	}, testWSConfig(), nil)
	require.NoError(t, err)

	assert.False(t, client.IsOpen())
	assert.Error(t, client.Send([]byte("data")))
	client.Stop()
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("CP-WS", SubprotocolOCPP16, config.CSMSConfig{URL: "://bad"}, testWSConfig(), nil)
	assert.Error(t, err)
}
