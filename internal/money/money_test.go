package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMinorUnitConversion(t *testing.T) {
	assert.Equal(t, int64(35050), ToMinor(decimal.RequireFromString("350.5")))
	assert.Equal(t, int64(3333), ToMinor(decimal.RequireFromString("33.333")))
	assert.True(t, decimal.RequireFromString("12.34").Equal(FromMinor(1234)))
}

func TestSplit(t *testing.T) {
	assert.True(t, decimal.NewFromInt(100).Equal(Split(decimal.NewFromInt(200), 2)))
	assert.True(t, decimal.RequireFromString("33.33").Equal(Split(decimal.NewFromInt(100), 3)))
	assert.True(t, decimal.Zero.Equal(Split(decimal.NewFromInt(100), 0)))
}
