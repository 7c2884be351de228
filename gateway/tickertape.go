package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stockfighter-mm/market"
)

const DefaultWSURL = "wss://api.stockfighter.io"

// WSObserver 记录 WS 连接与断开；infrastructure/monitor.Monitor 实现。
type WSObserver interface {
	RecordWSConnect()
	RecordWSDisconnect()
}

type tapeMessage struct {
	OK    bool               `json:"ok"`
	Error string             `json:"error"`
	Quote market.QuoteUpdate `json:"quote"`
}

// TickerTape 订阅行情推送，缓存合并后的最新报价，断线自动重连。
// Quote 与 REST Client.Quote 签名一致，可直接替换行情源。
type TickerTape struct {
	URL      string
	Account  string
	Venue    string
	Stock    string
	Dialer   *websocket.Dialer
	Logger   *zap.Logger
	Observer WSObserver

	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	ReadTimeout  time.Duration

	mu     sync.RWMutex
	latest market.QuoteUpdate
	have   bool
}

func NewTickerTape(url, account, venue, stock string, logger *zap.Logger) *TickerTape {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickerTape{
		URL:          url,
		Account:      account,
		Venue:        venue,
		Stock:        stock,
		Dialer:       websocket.DefaultDialer,
		Logger:       logger,
		RetryBackoff: time.Second,
		MaxBackoff:   30 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Endpoint 返回 tickertape 的完整地址。
func (t *TickerTape) Endpoint() string {
	return fmt.Sprintf("%s/ob/api/ws/%s/venues/%s/tickertape/stocks/%s", t.URL, t.Account, t.Venue, t.Stock)
}

// Quote 返回迄今合并的报价；尚未收到任何推送时返回 ErrNoQuote。
func (t *TickerTape) Quote(ctx context.Context) (market.QuoteUpdate, error) {
	if err := ctx.Err(); err != nil {
		return market.QuoteUpdate{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.have {
		return market.QuoteUpdate{}, ErrNoQuote
	}
	return t.latest, nil
}

// Run 连接并读取推送直到 ctx 取消；断线后按指数退避重连。
func (t *TickerTape) Run(ctx context.Context) error {
	backoff := t.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := t.Dialer.DialContext(ctx, t.Endpoint(), nil)
		if err != nil {
			t.Logger.Warn("tickertape dial failed",
				zap.String("endpoint", t.Endpoint()),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = t.nextBackoff(backoff)
			continue
		}
		backoff = t.RetryBackoff
		if backoff <= 0 {
			backoff = time.Second
		}
		if t.Observer != nil {
			t.Observer.RecordWSConnect()
		}
		t.Logger.Info("tickertape connected", zap.String("stock", t.Stock))

		err = t.readLoop(ctx, conn)

		if t.Observer != nil {
			t.Observer.RecordWSDisconnect()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.Logger.Warn("tickertape disconnected, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
	}
}

func (t *TickerTape) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	timeout := t.ReadTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeout))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		t.handleMessage(raw)
	}
}

func (t *TickerTape) handleMessage(raw []byte) {
	var msg tapeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Logger.Warn("tickertape decode failed", zap.Error(err))
		return
	}
	if !msg.OK {
		t.Logger.Warn("tickertape error message", zap.String("error", msg.Error))
		return
	}
	t.mu.Lock()
	t.latest = market.MergeUpdates(t.latest, msg.Quote)
	t.have = true
	t.mu.Unlock()
}

func (t *TickerTape) nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if t.MaxBackoff > 0 && next > t.MaxBackoff {
		next = t.MaxBackoff
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
