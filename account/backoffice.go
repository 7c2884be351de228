// Package account 解析 GM 后台（back-office）账户摘要，并与本地影子账本对照。
package account

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// BackOffice 交易所后台给出的权威账户摘要。Cash/NAV 单位为美分。
// Known 为 false 表示本轮没有可解析的 flash 消息，其余字段为零值。
type BackOffice struct {
	Cash          int64
	Position      int
	NAV           int64
	DaysRemaining int
	Known         bool
}

// Days GM 实例状态中的交易日信息。
type Days struct {
	TradingDay       int
	EndOfTheWorldDay int
}

// flash 消息中的数值：可带符号、可带 $、可带千分位、可带两位小数。
var numberToken = regexp.MustCompile(`[-+]?\$?[-+]?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?`)

// ParseFlash 从自由文本中按顺序取出 cash、position、nav 三个数值。
// 数值个数不是三个、无法解析或持仓带小数时返回零值快照（Known=false），不视为错误。
func ParseFlash(msg string) BackOffice {
	tokens := numberToken.FindAllString(msg, -1)
	if len(tokens) != 3 {
		return BackOffice{}
	}
	cash, err := parseToken(tokens[0])
	if err != nil {
		return BackOffice{}
	}
	pos, err := parseToken(tokens[1])
	if err != nil || !pos.IsInteger() {
		return BackOffice{}
	}
	nav, err := parseToken(tokens[2])
	if err != nil {
		return BackOffice{}
	}
	return BackOffice{
		Cash:     toCents(cash),
		Position: int(pos.IntPart()),
		NAV:      toCents(nav),
		Known:    true,
	}
}

// FromStatus 组合 flash 与交易日信息；info 为 nil 表示消息缺失。
func FromStatus(info *string, days *Days) BackOffice {
	var bo BackOffice
	if info != nil {
		bo = ParseFlash(*info)
	}
	if days != nil && days.EndOfTheWorldDay > 0 {
		bo.DaysRemaining = days.EndOfTheWorldDay - days.TradingDay
	}
	return bo
}

func parseToken(tok string) (decimal.Decimal, error) {
	neg := strings.Contains(tok, "-")
	clean := strings.NewReplacer("$", "", ",", "", "-", "", "+", "").Replace(tok)
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, err
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// 后台金额以美元两位小数给出，本地统一为美分。
func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
