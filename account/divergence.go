package account

import "github.com/shopspring/decimal"

// Divergence 影子账本减去后台数值的差额。
type Divergence struct {
	Cash     int64
	Position int
	NAV      int64
}

// Diverged 现金或仓位不一致即视为偏差；NAV 依赖估值时点，仅作参考。
func (d Divergence) Diverged() bool {
	return d.Cash != 0 || d.Position != 0
}

// Compare 对照影子账本与后台摘要；后台未知时 ok 为 false。
func Compare(bo BackOffice, cash int64, position int, nav int64) (d Divergence, ok bool) {
	if !bo.Known {
		return Divergence{}, false
	}
	return Divergence{
		Cash:     cash - bo.Cash,
		Position: position - bo.Position,
		NAV:      nav - bo.NAV,
	}, true
}

// Dollars 把美分格式化为带两位小数的美元字符串，例如 -1234 -> "-12.34"。
func Dollars(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
