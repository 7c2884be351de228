package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

const DefaultGMURL = "https://www.stockfighter.io"

// GMClient 关卡管理（GM）接口：开局、重启、恢复实例，查询实例状态。
// 不提供结束实例：进程退出后实例保留，便于下次 resume。
type GMClient struct {
	BaseURL    string
	APIKey     string
	InstanceID int
	HTTPClient *http.Client
	Limiter    RateLimiter
	Observer   Observer
}

// Session 开局/重启/恢复后交易所分配的会话信息。
type Session struct {
	AccountID  string
	InstanceID int
	Tickers    []string
	Venues     []string
}

// UnmarshalJSON 兼容 "account" 与 "accountId" 两种字段名。
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw struct {
		Account    string   `json:"account"`
		AccountID  string   `json:"accountId"`
		InstanceID int      `json:"instanceId"`
		Tickers    []string `json:"tickers"`
		Venues     []string `json:"venues"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.AccountID = raw.Account
	if s.AccountID == "" {
		s.AccountID = raw.AccountID
	}
	s.InstanceID = raw.InstanceID
	s.Tickers = raw.Tickers
	s.Venues = raw.Venues
	return nil
}

// Flash 后台推送的文字消息，info 中含现金/持仓/净值。
type Flash struct {
	Info    string `json:"info"`
	Warning string `json:"warning"`
	Danger  string `json:"danger"`
}

// Details 关卡进度。
type Details struct {
	TradingDay       int `json:"tradingDay"`
	EndOfTheWorldDay int `json:"endOfTheWorldDay"`
}

// InstanceStatus GET /gm/instances/{id} 的响应；flash/details 可能缺失。
type InstanceStatus struct {
	Done    bool     `json:"done"`
	ID      int      `json:"id"`
	State   string   `json:"state"`
	Flash   *Flash   `json:"flash"`
	Details *Details `json:"details"`
}

// FlashInfo 返回 flash.info，缺失时为 nil。
func (s InstanceStatus) FlashInfo() *string {
	if s.Flash == nil || s.Flash.Info == "" {
		return nil
	}
	info := s.Flash.Info
	return &info
}

// StartLevel 开启新关卡实例。
func (g *GMClient) StartLevel(ctx context.Context, level string) (Session, error) {
	var s Session
	err := g.do(ctx, "gm_start", http.MethodPost, "/gm/levels/"+level, &s)
	if err == nil {
		g.InstanceID = s.InstanceID
	}
	return s, err
}

// Restart 重启实例（清空账户）。
func (g *GMClient) Restart(ctx context.Context, instanceID int) (Session, error) {
	return g.session(ctx, "gm_restart", instanceID, "restart")
}

// Resume 恢复实例（保留账户）。
func (g *GMClient) Resume(ctx context.Context, instanceID int) (Session, error) {
	return g.session(ctx, "gm_resume", instanceID, "resume")
}

// InstanceStatus 查询当前实例状态，使用最近一次开局得到的 InstanceID。
func (g *GMClient) InstanceStatus(ctx context.Context) (InstanceStatus, error) {
	var st InstanceStatus
	err := g.do(ctx, "gm_status", http.MethodGet, instancePath(g.InstanceID), &st)
	return st, err
}

func (g *GMClient) session(ctx context.Context, action string, instanceID int, verb string) (Session, error) {
	var s Session
	if err := g.do(ctx, action, http.MethodPost, instancePath(instanceID)+"/"+verb, &s); err != nil {
		return Session{}, err
	}
	if s.InstanceID == 0 {
		s.InstanceID = instanceID
	}
	g.InstanceID = s.InstanceID
	return s, nil
}

func (g *GMClient) do(ctx context.Context, action, method, path string, out any) error {
	return doJSON(ctx, g.HTTPClient, g.Limiter, g.Observer, g.BaseURL, g.APIKey, action, method, path, nil, out)
}

func instancePath(id int) string {
	return "/gm/instances/" + strconv.Itoa(id)
}
