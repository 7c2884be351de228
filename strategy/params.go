package strategy

import (
	"errors"
	"time"
)

// Params 做市核心参数，可热更新，每轮循环开始时读取一次。
type Params struct {
	PositionLimit int           // 多空两侧允许的最大绝对净仓位
	Buffer        int           // 买入价与卖出价之间的最小利润（美分）
	StaleBuffer   int           // 挂单偏离行情的容忍带（美分），为 0 时沿用 Buffer
	Interval      time.Duration // 两轮对账之间的固定等待
	Goal          int64         // 后台 NAV 达到该值（美分）时记录一次目标达成，0 表示不设
}

var (
	ErrInvalidLimit    = errors.New("positionLimit must be > 0")
	ErrInvalidBuffer   = errors.New("buffer must be >= 0")
	ErrInvalidInterval = errors.New("interval must be > 0")
)

// Validate 检查参数合法性。
func (p Params) Validate() error {
	if p.PositionLimit <= 0 {
		return ErrInvalidLimit
	}
	if p.Buffer < 0 || p.StaleBuffer < 0 {
		return ErrInvalidBuffer
	}
	if p.Interval <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

// StaleBand 返回撤单判断使用的容忍带。
func (p Params) StaleBand() int {
	if p.StaleBuffer > 0 {
		return p.StaleBuffer
	}
	return p.Buffer
}

// Reason 说明规划器为何停止；Proceed 表示应当下单。
type Reason string

const (
	Proceed              Reason = ""
	AtPositionLimit      Reason = "at_position_limit"
	NoMarketAsk          Reason = "no_market_ask"
	OwnAskNotAboveMarket Reason = "own_ask_not_above_market"
	NoAskSize            Reason = "no_ask_size"
	NoLots               Reason = "no_lots"
	ShortLimit           Reason = "short_limit"
	NoProfitableExit     Reason = "no_profitable_exit"
)
