package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersPlaced   *prometheus.CounterVec
	ordersCanceled *prometheus.CounterVec
	ordersRejected *prometheus.CounterVec
	openOrders     *prometheus.GaugeVec

	// 成交指标
	fills      *prometheus.CounterVec
	fillVolume *prometheus.CounterVec

	// 本地账本
	ledgerCash     prometheus.Gauge
	ledgerPosition prometheus.Gauge
	ledgerNAV      prometheus.Gauge
	lotQty         prometheus.Gauge

	// 后台账户
	boCash     prometheus.Gauge
	boPosition prometheus.Gauge
	boNAV      prometheus.Gauge
	divergence *prometheus.GaugeVec

	// 市场指标
	bidPrice  prometheus.Gauge
	askPrice  prometheus.Gauge
	lastPrice prometheus.Gauge

	// 循环指标
	stageFailures *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cycles        prometheus.Counter

	// 系统指标
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter
	restRequests  *prometheus.CounterVec
	restErrors    *prometheus.CounterVec
	restLatency   *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "sf",
		Subsystem: "mm",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	m := &Monitor{
		registry: reg,

		ordersPlaced:   counterVec("orders_placed_total", "下单总数", "side"),
		ordersCanceled: counterVec("orders_canceled_total", "过期撤单总数", "side"),
		ordersRejected: counterVec("orders_rejected_total", "下单失败总数", "side"),
		openOrders: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open_orders",
			Help:      "当前挂单数",
		}, []string{"side"}),

		fills:      counterVec("fills_total", "成交笔数", "side"),
		fillVolume: counterVec("fill_volume_total", "累计成交股数", "side"),

		ledgerCash:     gauge("ledger_cash_dollars", "本地账本现金"),
		ledgerPosition: gauge("ledger_position", "本地账本持仓"),
		ledgerNAV:      gauge("ledger_nav_dollars", "本地账本净值"),
		lotQty:         gauge("ledger_lot_qty", "待卖出批次总股数"),

		boCash:     gauge("backoffice_cash_dollars", "后台账户现金"),
		boPosition: gauge("backoffice_position", "后台账户持仓"),
		boNAV:      gauge("backoffice_nav_dollars", "后台账户净值"),
		divergence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ledger_divergence",
			Help:      "本地账本减后台账户的差值",
		}, []string{"field"}),

		bidPrice:  gauge("quote_bid_dollars", "最优买价"),
		askPrice:  gauge("quote_ask_dollars", "最优卖价"),
		lastPrice: gauge("quote_last_dollars", "最新成交价"),

		stageFailures: counterVec("stage_failures_total", "各阶段失败次数", "stage"),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "单轮对账耗时（秒，不含等待）",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		cycles: counter("cycles_total", "已完成轮数"),

		wsConnections: counter("ws_connections_total", "WebSocket连接次数"),
		wsDisconnects: counter("ws_disconnects_total", "WebSocket断开次数"),
		restRequests:  counterVec("rest_requests_total", "REST请求总数", "action"),
		restErrors:    counterVec("rest_errors_total", "REST错误总数", "action"),
		restLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_latency_seconds",
				Help:      "REST请求延迟（秒）",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}
	return m
}

func dollars(cents int64) float64 {
	return float64(cents) / 100
}

// 订单相关方法
func (m *Monitor) RecordOrderPlaced(side string) {
	m.ordersPlaced.WithLabelValues(side).Inc()
}

func (m *Monitor) RecordOrderCanceled(side string) {
	m.ordersCanceled.WithLabelValues(side).Inc()
}

func (m *Monitor) RecordOrderRejected(side string) {
	m.ordersRejected.WithLabelValues(side).Inc()
}

func (m *Monitor) UpdateOpenOrders(bids, asks int) {
	m.openOrders.WithLabelValues("buy").Set(float64(bids))
	m.openOrders.WithLabelValues("sell").Set(float64(asks))
}

// RecordFill 一笔成交
func (m *Monitor) RecordFill(side string, qty int) {
	m.fills.WithLabelValues(side).Inc()
	m.fillVolume.WithLabelValues(side).Add(float64(qty))
}

// 账本相关方法
func (m *Monitor) UpdateLedger(cash int64, position int, nav int64, lotQty int) {
	m.ledgerCash.Set(dollars(cash))
	m.ledgerPosition.Set(float64(position))
	m.ledgerNAV.Set(dollars(nav))
	m.lotQty.Set(float64(lotQty))
}

func (m *Monitor) UpdateBackOffice(cash int64, position int, nav int64) {
	m.boCash.Set(dollars(cash))
	m.boPosition.Set(float64(position))
	m.boNAV.Set(dollars(nav))
}

// UpdateDivergence 现金与净值按美元，持仓按股
func (m *Monitor) UpdateDivergence(cash int64, position int, nav int64) {
	m.divergence.WithLabelValues("cash").Set(dollars(cash))
	m.divergence.WithLabelValues("position").Set(float64(position))
	m.divergence.WithLabelValues("nav").Set(dollars(nav))
}

// 市场相关方法
func (m *Monitor) UpdateQuote(bid, ask, last int) {
	m.bidPrice.Set(dollars(int64(bid)))
	m.askPrice.Set(dollars(int64(ask)))
	m.lastPrice.Set(dollars(int64(last)))
}

// 循环相关方法
func (m *Monitor) RecordStageFailure(stage string) {
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *Monitor) RecordCycle(seconds float64) {
	m.cycles.Inc()
	m.cycleDuration.Observe(seconds)
}

// 系统相关方法
func (m *Monitor) RecordWSConnect() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

func (m *Monitor) RecordRESTRequest(action string) {
	m.restRequests.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTError(action string) {
	m.restErrors.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTLatency(action string, seconds float64) {
	m.restLatency.WithLabelValues(action).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
