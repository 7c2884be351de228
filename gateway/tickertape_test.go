package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWSObserver struct {
	connects    atomic.Int32
	disconnects atomic.Int32
}

func (o *countingWSObserver) RecordWSConnect()    { o.connects.Add(1) }
func (o *countingWSObserver) RecordWSDisconnect() { o.disconnects.Add(1) }

func wsServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ob/api/ws/ACC/venues/VEN/tickertape/stocks/STK" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// 保持连接直到客户端断开
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestTickerTapeNoQuoteBeforeFirstMessage(t *testing.T) {
	tape := NewTickerTape("ws://127.0.0.1:1", "ACC", "VEN", "STK", nil)
	_, err := tape.Quote(context.Background())
	assert.True(t, errors.Is(err, ErrNoQuote))
}

func TestTickerTapeMergesStream(t *testing.T) {
	ts := wsServer(t, []string{
		`{"ok":true,"quote":{"symbol":"STK","bid":75,"ask":90,"askSize":10,"askDepth":40}}`,
		`not json`,
		`{"ok":false,"error":"bad"}`,
		`{"ok":true,"quote":{"symbol":"STK","bid":80,"last":85}}`,
	})
	defer ts.Close()

	obs := &countingWSObserver{}
	tape := NewTickerTape("ws"+strings.TrimPrefix(ts.URL, "http"), "ACC", "VEN", "STK", nil)
	tape.Observer = obs

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tape.Run(ctx) }()

	require.Eventually(t, func() bool {
		q, err := tape.Quote(context.Background())
		return err == nil && q.Last != nil
	}, 2*time.Second, 10*time.Millisecond)

	q, err := tape.Quote(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 80, *q.Bid)
	assert.Equal(t, 90, *q.Ask)
	assert.Equal(t, 85, *q.Last)
	assert.Equal(t, 40, *q.AskDepth)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, int32(1), obs.connects.Load())
	assert.Equal(t, int32(1), obs.disconnects.Load())
}

func TestTickerTapeRetriesDial(t *testing.T) {
	tape := NewTickerTape("ws://127.0.0.1:1", "ACC", "VEN", "STK", nil)
	tape.RetryBackoff = 5 * time.Millisecond
	tape.MaxBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := tape.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTickerTapeBackoffCaps(t *testing.T) {
	tape := &TickerTape{MaxBackoff: 3 * time.Second}
	assert.Equal(t, 2*time.Second, tape.nextBackoff(time.Second))
	assert.Equal(t, 3*time.Second, tape.nextBackoff(2*time.Second))
}
