package container

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockfighter-mm/config"
)

// fakeVenue 同时扮演 GM 与交易所。
type fakeVenue struct {
	t        *testing.T
	mu       sync.Mutex
	placed   []map[string]any
	canceled []string
	started  atomic.Int32
	stocks   atomic.Int32
	foreign  []int64 // 交易所上存在但本进程未记录的挂单
}

func (f *fakeVenue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const stock = "/ob/api/venues/TESTEX/stocks/FOOBAR"
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/gm/levels/sell_side":
		f.started.Add(1)
		io.WriteString(w, `{"ok":true,"account":"EXB123","instanceId":42,"tickers":["FOOBAR"],"venues":["TESTEX"]}`)
	case r.Method == http.MethodPost && r.URL.Path == "/gm/instances/7/resume":
		io.WriteString(w, `{"ok":true,"account":"EXB123","tickers":["FOOBAR"],"venues":["TESTEX"]}`)
	case r.Method == http.MethodGet && (r.URL.Path == "/gm/instances/42" || r.URL.Path == "/gm/instances/7"):
		io.WriteString(w, `{"ok":true,"done":false,"id":42,"state":"open",
			"flash":{"info":"You have $0.00 cash, 0 shares, and a NAV of $0.00"},
			"details":{"tradingDay":1,"endOfTheWorldDay":400}}`)
	case r.URL.Path == "/ob/api/heartbeat" || r.URL.Path == "/ob/api/venues/TESTEX/heartbeat":
		io.WriteString(w, `{"ok":true}`)
	case r.Method == http.MethodGet && r.URL.Path == "/ob/api/venues/TESTEX/stocks":
		f.stocks.Add(1)
		io.WriteString(w, `{"ok":true,"symbols":[{"name":"Foobar Corp","symbol":"FOOBAR"}]}`)
	case r.Method == http.MethodGet && r.URL.Path == stock:
		io.WriteString(w, `{"ok":true,"venue":"TESTEX","symbol":"FOOBAR","bids":[{"price":4990,"qty":30,"isBuy":true}],"asks":[]}`)
	case r.Method == http.MethodGet && r.URL.Path == "/ob/api/venues/TESTEX/accounts/EXB123/stocks/FOOBAR/orders":
		f.mu.Lock()
		var orders []string
		if len(f.placed) > 0 {
			orders = append(orders, `{"id":900,"price":5000,"qty":20,"direction":"buy","open":true}`)
		}
		for _, id := range f.foreign {
			orders = append(orders, `{"id":`+strconv.FormatInt(id, 10)+`,"price":4000,"qty":5,"direction":"buy","open":true}`)
		}
		orders = append(orders, `{"id":1,"price":4000,"qty":0,"direction":"buy","open":false}`)
		f.mu.Unlock()
		io.WriteString(w, `{"ok":true,"orders":[`+strings.Join(orders, ",")+`]}`)
	case r.Method == http.MethodGet && r.URL.Path == stock+"/quote":
		io.WriteString(w, `{"ok":true,"bid":4990,"ask":5000,"last":4995,"askSize":20,"askDepth":20,"bidDepth":30}`)
	case r.Method == http.MethodPost && r.URL.Path == stock+"/orders":
		var body map[string]any
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.placed = append(f.placed, body)
		f.mu.Unlock()
		io.WriteString(w, `{"ok":true,"id":900,"price":5000,"qty":20,"direction":"buy","fills":[],"open":true}`)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, stock+"/orders/"):
		f.mu.Lock()
		f.canceled = append(f.canceled, r.URL.Path)
		f.mu.Unlock()
		io.WriteString(w, `{"ok":true,"id":900,"qty":0,"direction":"buy","fills":[],"open":false}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"ok":false,"error":"not found"}`)
	}
}

func testConfig(url string) config.AppConfig {
	cfg := config.AppConfig{
		Gateway: config.GatewayConfig{
			APIToken: "token",
			BaseURL:  url,
			GMURL:    url,
		},
		Instance: config.InstanceConfig{Level: "sell_side"},
		Strategy: config.StrategyConfig{PositionLimit: 100, Buffer: 20},
	}
	config.ApplyDefaults(&cfg)
	cfg.Log.Level = "error"
	cfg.Gateway.RateLimit = 1000
	cfg.Gateway.Burst = 100
	return cfg
}

func TestContainerBuildRunsCycleAndCancelsOnStop(t *testing.T) {
	venue := &fakeVenue{t: t}
	ts := httptest.NewServer(venue)
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	require.NoError(t, config.Validate(cfg))

	c := NewWithConfig("", cfg)
	require.NoError(t, c.Build(context.Background()))
	assert.Equal(t, int32(1), venue.started.Load())
	assert.Equal(t, 42, c.Session().InstanceID)
	assert.Equal(t, int32(1), venue.stocks.Load())

	w := c.Engine().RunCycle(context.Background())
	require.Len(t, w.OpenBids, 1)
	assert.True(t, w.BackOffice.Known)
	assert.Equal(t, 5000, w.Quote.Ask)

	venue.mu.Lock()
	require.Len(t, venue.placed, 1)
	assert.Equal(t, "buy", venue.placed[0]["direction"])
	assert.Equal(t, float64(20), venue.placed[0]["qty"])
	assert.Equal(t, "EXB123", venue.placed[0]["account"])
	venue.mu.Unlock()

	require.NoError(t, c.Stop())
	venue.mu.Lock()
	assert.Len(t, venue.canceled, 1)
	venue.mu.Unlock()
}

func TestContainerResumeWithOverrides(t *testing.T) {
	venue := &fakeVenue{t: t}
	ts := httptest.NewServer(venue)
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Instance = config.InstanceConfig{InstanceID: 7, StartMode: config.StartResume, Venue: "TESTEX", Stock: "FOOBAR"}

	c := NewWithConfig("", cfg)
	require.NoError(t, c.Build(context.Background()))
	assert.Equal(t, int32(0), venue.started.Load())
	assert.Equal(t, 7, c.Session().InstanceID)
	require.NoError(t, c.Stop())
}

func TestContainerBuildFailsWhenSessionFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"error":"bad key"}`)
	}))
	defer ts.Close()

	c := NewWithConfig("", testConfig(ts.URL))
	err := c.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "establish session")
	assert.Nil(t, c.Engine())
	require.NoError(t, c.Stop())
}

func TestContainerRunReturnsNilOnCancel(t *testing.T) {
	venue := &fakeVenue{t: t}
	ts := httptest.NewServer(venue)
	defer ts.Close()

	c := NewWithConfig("", testConfig(ts.URL))
	require.NoError(t, c.Build(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	cancel()
	assert.NoError(t, c.Run(ctx))
	require.NoError(t, c.Stop())
}

func TestContainerStopCancelsEveryOpenOrderOnVenue(t *testing.T) {
	venue := &fakeVenue{t: t, foreign: []int64{77, 78}}
	ts := httptest.NewServer(venue)
	defer ts.Close()

	c := NewWithConfig("", testConfig(ts.URL))
	require.NoError(t, c.Build(context.Background()))
	require.NoError(t, c.Stop())

	venue.mu.Lock()
	defer venue.mu.Unlock()
	const prefix = "/ob/api/venues/TESTEX/stocks/FOOBAR/orders/"
	assert.ElementsMatch(t, []string{prefix + "77", prefix + "78"}, venue.canceled)
}

func TestContainerHealthCheckWithoutComponents(t *testing.T) {
	venue := &fakeVenue{t: t}
	ts := httptest.NewServer(venue)
	defer ts.Close()

	c := NewWithConfig("", testConfig(ts.URL))
	require.NoError(t, c.Build(context.Background()))
	assert.NoError(t, c.HealthCheck())
	require.NoError(t, c.Stop())
}
