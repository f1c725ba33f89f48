package inventory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAverageCost(t *testing.T) {
	// Zero starting stock takes the lot cost directly.
	avg := AverageCost(dec("0"), dec("0"), dec("10"), dec("100"))
	require.True(t, avg.Equal(dec("100")), "got %s", avg)

	// Weighted mean of two lots.
	avg = AverageCost(dec("10"), dec("100"), dec("10"), dec("200"))
	require.True(t, avg.Equal(dec("150")), "got %s", avg)

	// Uneven lots.
	avg = AverageCost(dec("10"), dec("100000"), dec("5"), dec("120000"))
	require.True(t, avg.Round(4).Equal(dec("106666.6667")), "got %s", avg)
}

func TestReverseAverageCost(t *testing.T) {
	// Undo the second lot: (20 @ 150) minus (10 @ 200) -> 100.
	avg := ReverseAverageCost(dec("20"), dec("150"), dec("10"), dec("200"))
	require.True(t, avg.Equal(dec("100")), "got %s", avg)

	// Divisor <= 0 guards to zero.
	require.True(t, ReverseAverageCost(dec("10"), dec("100"), dec("10"), dec("100")).IsZero())
	require.True(t, ReverseAverageCost(dec("5"), dec("100"), dec("10"), dec("100")).IsZero())

	// Negative remaining value guards to zero.
	require.True(t, ReverseAverageCost(dec("12"), dec("10"), dec("10"), dec("50")).IsZero())
}

func TestAverageCostRoundTrip(t *testing.T) {
	stock, avg := dec("10"), dec("100")
	qty, cost := dec("40"), dec("250")

	newAvg := AverageCost(stock, avg, qty, cost)
	require.True(t, newAvg.Equal(dec("220")), "got %s", newAvg)

	back := ReverseAverageCost(stock.Add(qty), newAvg, qty, cost)
	require.True(t, back.Equal(avg), "expected %s, got %s", avg, back)
}
