package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDueDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDueDate("5.7")
	require.NoError(t, err)
	assert.Equal(t, DueDate{Day: 5, Month: 7}, d)
	assert.Equal(t, "05.07", d.String())

	for _, in := range []string{"+5.+7", "-1.07", "15.+7", "1 .07", "15.", ".07", "15-07", "32.01", "00.01", "00015.07"} {
		_, err := ParseDueDate(in)
		assert.Error(t, err, in)
	}
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	p, err := ParsePeriod("07.2024")
	require.NoError(t, err)
	assert.Equal(t, Period{Month: 7, Year: 2024}, p)

	for _, in := range []string{"+7.2024", "07.+2024", "07.-2024", "07.2019", "13.2024", "7.20240"} {
		_, err := ParsePeriod(in)
		assert.Error(t, err, in)
	}
}

func TestAmountInRange(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   decimal.Decimal
		want bool
	}{
		{decimal.RequireFromString("0.01"), true},
		{decimal.RequireFromString("-200.5"), true},
		{decimal.New(1, 9), true},
		{decimal.RequireFromString("999999999999999.99"), true},
		{decimal.New(1, 15), false},
		{decimal.RequireFromString("0.001"), false},
		{decimal.New(1, 2000000000), false},
		{decimal.New(1, -2000000000), false},
		{decimal.New(-1, 2000000000), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AmountInRange(tc.in), tc.in.Exponent())
	}
}
