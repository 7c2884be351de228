package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"stockfighter-mm/market"
	"stockfighter-mm/order"
)

const (
	DefaultBaseURL = "https://api.stockfighter.io"
	authHeader     = "X-Starfighter-Authorization"
)

// Observer 记录每个 REST 动作的请求数、错误与延迟；infrastructure/monitor.Monitor 实现。
type Observer interface {
	RecordRESTRequest(action string)
	RecordRESTError(action string)
	RecordRESTLatency(action string, seconds float64)
}

// Client Stockfighter 交易所 REST 客户端，绑定到单一 venue/stock/account。
// HTTPClient 可注入 httptest。
type Client struct {
	BaseURL    string
	APIKey     string
	Account    string
	Venue      string
	Stock      string
	HTTPClient *http.Client
	Limiter    RateLimiter
	Observer   Observer
}

// envelope 所有响应共有的字段。
type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type placeReq struct {
	Account   string          `json:"account"`
	Venue     string          `json:"venue"`
	Stock     string          `json:"stock"`
	Price     int             `json:"price"`
	Qty       int             `json:"qty"`
	Direction order.Direction `json:"direction"`
	OrderType string          `json:"orderType"`
}

// Symbol 交易标的。
type Symbol struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// BookLevel 订单簿档位。
type BookLevel struct {
	Price int  `json:"price"`
	Qty   int  `json:"qty"`
	IsBuy bool `json:"isBuy"`
}

// Orderbook 完整订单簿快照。
type Orderbook struct {
	Venue  string      `json:"venue"`
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
	TS     time.Time   `json:"ts"`
}

// Heartbeat 检查 API 整体健康。
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, "heartbeat", http.MethodGet, "/ob/api/heartbeat", nil, nil)
}

// VenueHeartbeat 检查 venue 健康。
func (c *Client) VenueHeartbeat(ctx context.Context) error {
	return c.do(ctx, "venue_heartbeat", http.MethodGet, c.venuePath()+"/heartbeat", nil, nil)
}

// Stocks 列出 venue 上可交易的标的。
func (c *Client) Stocks(ctx context.Context) ([]Symbol, error) {
	var resp struct {
		Symbols []Symbol `json:"symbols"`
	}
	if err := c.do(ctx, "stocks", http.MethodGet, c.venuePath()+"/stocks", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Symbols, nil
}

// Orderbook 查询订单簿。
func (c *Client) Orderbook(ctx context.Context) (Orderbook, error) {
	var ob Orderbook
	err := c.do(ctx, "orderbook", http.MethodGet, c.stockPath(), nil, &ob)
	return ob, err
}

// Quote 查询最新行情，缺失字段保持 nil。
func (c *Client) Quote(ctx context.Context) (market.QuoteUpdate, error) {
	var q market.QuoteUpdate
	err := c.do(ctx, "quote", http.MethodGet, c.stockPath()+"/quote", nil, &q)
	return q, err
}

// Bid 以限价买入。
func (c *Client) Bid(ctx context.Context, price, qty int) (order.Status, error) {
	return c.place(ctx, order.Buy, price, qty)
}

// Ask 以限价卖出。
func (c *Client) Ask(ctx context.Context, price, qty int) (order.Status, error) {
	return c.place(ctx, order.Sell, price, qty)
}

func (c *Client) place(ctx context.Context, dir order.Direction, price, qty int) (order.Status, error) {
	req := placeReq{
		Account:   c.Account,
		Venue:     c.Venue,
		Stock:     c.Stock,
		Price:     price,
		Qty:       qty,
		Direction: dir,
		OrderType: "limit",
	}
	var st order.Status
	err := c.do(ctx, "place_"+string(dir), http.MethodPost, c.stockPath()+"/orders", req, &st)
	return st, err
}

// OrderStatus 查询单个订单。
func (c *Client) OrderStatus(ctx context.Context, id int64) (order.Status, error) {
	var st order.Status
	err := c.do(ctx, "order_status", http.MethodGet, c.orderPath(id), nil, &st)
	return st, err
}

// Cancel 撤单；交易所返回撤单后的订单状态，这里只关心成功与否。
func (c *Client) Cancel(ctx context.Context, id int64) error {
	return c.do(ctx, "cancel", http.MethodDelete, c.orderPath(id), nil, nil)
}

// AllOrders 列出账户在该 venue 的全部订单。
func (c *Client) AllOrders(ctx context.Context) ([]order.Status, error) {
	var resp struct {
		Orders []order.Status `json:"orders"`
	}
	path := c.venuePath() + "/accounts/" + c.Account + "/stocks/" + c.Stock + "/orders"
	if err := c.do(ctx, "all_orders", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (c *Client) venuePath() string {
	return "/ob/api/venues/" + c.Venue
}

func (c *Client) stockPath() string {
	return c.venuePath() + "/stocks/" + c.Stock
}

func (c *Client) orderPath(id int64) string {
	return c.stockPath() + "/orders/" + strconv.FormatInt(id, 10)
}

// do 发送请求并解码；传输失败包装原始错误，应用失败返回 *APIError。
func (c *Client) do(ctx context.Context, action, method, path string, body, out any) error {
	return doJSON(ctx, c.HTTPClient, c.Limiter, c.Observer, c.BaseURL, c.APIKey, action, method, path, body, out)
}

func doJSON(ctx context.Context, hc *http.Client, lim RateLimiter, obs Observer, baseURL, apiKey, action, method, path string, body, out any) (err error) {
	if hc == nil {
		return fmt.Errorf("%s: http client not set", action)
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit wait: %w", action, err)
		}
	}
	if obs != nil {
		start := time.Now()
		obs.RecordRESTRequest(action)
		defer func() {
			obs.RecordRESTLatency(action, time.Since(start).Seconds())
			if err != nil {
				obs.RecordRESTError(action)
			}
		}()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", action, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", action, err)
	}
	req.Header.Set(authHeader, apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", action, err)
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 300 {
				return &APIError{Op: action, Status: resp.StatusCode, Message: string(raw)}
			}
			return fmt.Errorf("%s: decode: %w", action, err)
		}
	}
	if resp.StatusCode >= 300 || (len(raw) > 0 && !env.OK) {
		return &APIError{Op: action, Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode: %w", action, err)
		}
	}
	return nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
