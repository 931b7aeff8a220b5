package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-station-simulator/internal/ocpp/wire"
)

// fakeTransport 可控的传输层测试替身
type fakeTransport struct {
	mu   sync.Mutex
	open bool
	sent [][]byte
	fail bool
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return errors.New("send failed")
	}
	t.sent = append(t.sent, data)
	return nil
}

func (t *fakeTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	frames := make([][]byte, len(t.sent))
	copy(frames, t.sent)
	return frames
}

func (t *fakeTransport) setOpen(open bool) {
	t.mu.Lock()
	t.open = open
	t.mu.Unlock()
}

func newTestRouter(t *testing.T, transport *fakeTransport) *Router {
	t.Helper()
	return New("CP-TEST", transport, 2*time.Second, nil)
}

func TestCallCorrelatesReply(t *testing.T) {
	transport := &fakeTransport{open: true}
	router := newTestRouter(t, transport)

	messageID := ""
	router.SetMessageIDFactory(func() string {
		messageID = "fixed-id"
		return messageID
	})

	done := make(chan struct{})
	var payload json.RawMessage
	var callErr error
	go func() {
		payload, callErr = router.Call(context.Background(), "Heartbeat", map[string]string{}, nil)
		close(done)
	}()

	// 等请求发出
	require.Eventually(t, func() bool { return len(transport.sentFrames()) == 1 }, time.Second, 10*time.Millisecond)

	reply, _ := wire.MarshalCallResult("fixed-id", map[string]string{"currentTime": "2024-01-01T00:00:00Z"})
	router.HandleFrame(reply)

	<-done
	require.NoError(t, callErr)
	assert.JSONEq(t, `{"currentTime":"2024-01-01T00:00:00Z"}`, string(payload))
	assert.Equal(t, 0, router.PendingCount())
}

func TestCallErrorReply(t *testing.T) {
	transport := &fakeTransport{open: true}
	router := newTestRouter(t, transport)
	router.SetMessageIDFactory(func() string { return "err-id" })

	done := make(chan error, 1)
	go func() {
		_, err := router.Call(context.Background(), "Heartbeat", map[string]string{}, nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(transport.sentFrames()) == 1 }, time.Second, 10*time.Millisecond)

	reply, _ := wire.MarshalCallError("err-id", wire.NewError(wire.ErrInternalError, "boom"))
	router.HandleFrame(reply)

	err := <-done
	require.Error(t, err)
	ocppErr := wire.AsError(err)
	assert.Equal(t, wire.ErrInternalError, ocppErr.Code)
}

func TestCallTimeout(t *testing.T) {
	transport := &fakeTransport{open: true}
	router := New("CP-TEST", transport, 50*time.Millisecond, nil)

	_, err := router.Call(context.Background(), "Heartbeat", map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, wire.ErrTimeout, wire.AsError(err).Code)
	assert.Equal(t, 0, router.PendingCount())
}

func TestCallBuffersWhileOffline(t *testing.T) {
	transport := &fakeTransport{open: false}
	router := newTestRouter(t, transport)
	router.SetMessageIDFactory(func() string { return "buffered-id" })

	done := make(chan error, 1)
	go func() {
		_, err := router.Call(context.Background(), "StatusNotification", map[string]string{}, nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return router.BufferedCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Empty(t, transport.sentFrames())

	// 重连后按序重放
	transport.setOpen(true)
	router.OnReconnect()
	require.Eventually(t, func() bool { return len(transport.sentFrames()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, router.BufferedCount())

	reply, _ := wire.MarshalCallResult("buffered-id", map[string]string{})
	router.HandleFrame(reply)
	require.NoError(t, <-done)
}

func TestSkipBufferingOnError(t *testing.T) {
	transport := &fakeTransport{open: false}
	router := newTestRouter(t, transport)

	_, err := router.Call(context.Background(), "Heartbeat", map[string]string{}, &SendOptions{SkipBufferingOnError: true})
	require.Error(t, err)
	assert.Equal(t, 0, router.BufferedCount())
	assert.Equal(t, 0, router.PendingCount())
}

func TestUnknownReplyDropped(t *testing.T) {
	transport := &fakeTransport{open: true}
	router := newTestRouter(t, transport)

	reply, _ := wire.MarshalCallResult("nobody-waits", map[string]string{})
	// 不应panic，静默丢弃
	router.HandleFrame(reply)
	assert.Equal(t, 0, router.PendingCount())
}

func TestMalformedFrameReturnsCallError(t *testing.T) {
	transport := &fakeTransport{open: true}
	router := newTestRouter(t, transport)

	router.HandleFrame([]byte(`[2,"bad-frame","Heartbeat"]`))

	frames := transport.sentFrames()
	require.Len(t, frames, 1)

	frame, err := wire.Unmarshal(frames[0])
	require.NoError(t, err)
	assert.Equal(t, wire.CallError, frame.Type)
	assert.Equal(t, "bad-frame", frame.MessageID)
	assert.Equal(t, string(wire.ErrFormationViolation), frame.ErrorCode)
}

func TestInboundCallDispatched(t *testing.T) {
	transport := &fakeTransport{open: true}
	router := newTestRouter(t, transport)

	received := make(chan string, 1)
	router.SetInboundHandler(func(messageID, action string, payload json.RawMessage) {
		received <- action
	})

	call, _ := wire.MarshalCall("in-1", "Reset", map[string]string{"type": "Soft"})
	router.HandleFrame(call)

	select {
	case action := <-received:
		assert.Equal(t, "Reset", action)
	case <-time.After(time.Second):
		t.Fatal("inbound handler not invoked")
	}
}

func TestStopDrainsPendingWithCancelled(t *testing.T) {
	transport := &fakeTransport{open: true}
	router := newTestRouter(t, transport)

	done := make(chan error, 1)
	go func() {
		_, err := router.Call(context.Background(), "Heartbeat", map[string]string{}, nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return router.PendingCount() == 1 }, time.Second, 10*time.Millisecond)

	router.Stop()

	err := <-done
	require.Error(t, err)
	assert.Equal(t, wire.ErrCancelled, wire.AsError(err).Code)

	// 停止后的新请求直接失败
	_, err = router.Call(context.Background(), "Heartbeat", map[string]string{}, nil)
	require.Error(t, err)
	assert.Equal(t, wire.ErrCancelled, wire.AsError(err).Code)
}
