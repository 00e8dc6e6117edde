package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetOfFee(t *testing.T) {
	net, fee := NetOfFee(decimal.RequireFromString("250"), decimal.NewFromInt(10))
	assert.Equal(t, "225.00", net.StringFixed(2))
	assert.Equal(t, "25.00", fee.StringFixed(2))

	net, fee = NetOfFee(decimal.RequireFromString("99.99"), decimal.NewFromInt(10))
	assert.Equal(t, "10.00", fee.StringFixed(2))
	assert.Equal(t, "89.99", net.StringFixed(2))
	assert.True(t, net.Add(fee).Equal(decimal.RequireFromString("99.99")))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "5.00", Percent(decimal.NewFromInt(250), decimal.NewFromInt(2)).StringFixed(2))
	assert.Equal(t, "0.01", Percent(decimal.RequireFromString("0.50"), decimal.NewFromInt(2)).StringFixed(2))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(25000), ToMinor(decimal.NewFromInt(250)))
	assert.Equal(t, int64(1999), ToMinor(decimal.RequireFromString("19.99")))
	assert.Equal(t, "19.99", FromMinor(1999).StringFixed(2))
}

func TestParse(t *testing.T) {
	d, err := Parse("120.456")
	require.NoError(t, err)
	assert.Equal(t, "120.46", Format(d))

	_, err = Parse("0")
	require.Error(t, err)
	_, err = Parse("abc")
	require.Error(t, err)
}
