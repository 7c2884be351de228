package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareUnknownBackOffice(t *testing.T) {
	_, ok := Compare(BackOffice{}, -100, 1, 0)
	assert.False(t, ok)
}

func TestCompare(t *testing.T) {
	bo := BackOffice{Cash: -1000, Position: 10, NAV: 100, Known: true}
	d, ok := Compare(bo, -1000, 10, 120)
	assert.True(t, ok)
	assert.False(t, d.Diverged())
	assert.Equal(t, int64(20), d.NAV)

	d, _ = Compare(bo, -1200, 12, 100)
	assert.True(t, d.Diverged())
	assert.Equal(t, Divergence{Cash: -200, Position: 2, NAV: 0}, d)
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "-12.34", Dollars(-1234))
	assert.Equal(t, "0.05", Dollars(5))
	assert.Equal(t, "1000.00", Dollars(100000))
}
