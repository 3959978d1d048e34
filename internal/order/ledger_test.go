package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite_trader/internal/models"
)

func TestLedgerOpenAndAverageUp(t *testing.T) {
	l := NewLedger()

	l.ApplyFill("X", models.SideBuy, 10, 100)
	l.ApplyFill("X", models.SideBuy, 10, 110)

	p, ok := l.Position("X")
	require.True(t, ok)
	assert.Equal(t, int64(20), p.NetQty)
	assert.InDelta(t, 105.0, p.AvgPrice, 1e-9)
	assert.Equal(t, 0.0, p.RealizedPnL)
}

func TestLedgerPartialCloseRealizesPnL(t *testing.T) {
	l := NewLedger()
	l.ApplyFill("X", models.SideBuy, 20, 105)

	l.ApplyFill("X", models.SideSell, 5, 120)

	p, _ := l.Position("X")
	assert.Equal(t, int64(15), p.NetQty)
	assert.InDelta(t, 105.0, p.AvgPrice, 1e-9) // средняя не меняется при сокращении
	assert.InDelta(t, 75.0, p.RealizedPnL, 1e-9)
}

func TestLedgerFullCloseGoesFlat(t *testing.T) {
	l := NewLedger()
	l.ApplyFill("X", models.SideBuy, 10, 100)
	l.ApplyFill("X", models.SideSell, 10, 95)

	p, _ := l.Position("X")
	assert.True(t, p.Flat())
	assert.Equal(t, 0.0, p.AvgPrice)
	assert.InDelta(t, -50.0, p.RealizedPnL, 1e-9)

	// плоская позиция остаётся в снапшоте ради реализованного PnL
	snap := l.Snapshot()
	require.Contains(t, snap, "X")
}

func TestLedgerFlip(t *testing.T) {
	l := NewLedger()
	l.ApplyFill("X", models.SideBuy, 10, 100)
	l.ApplyFill("X", models.SideSell, 15, 90)

	p, _ := l.Position("X")
	assert.Equal(t, int64(-5), p.NetQty)
	assert.True(t, p.Short())
	// остаток открыт по цене филла
	assert.InDelta(t, 90.0, p.AvgPrice, 1e-9)
	assert.InDelta(t, -100.0, p.RealizedPnL, 1e-9)
}

func TestLedgerShortSide(t *testing.T) {
	l := NewLedger()
	l.ApplyFill("X", models.SideSell, 10, 100)
	l.ApplyFill("X", models.SideBuy, 10, 90)

	p, _ := l.Position("X")
	assert.True(t, p.Flat())
	assert.InDelta(t, 100.0, p.RealizedPnL, 1e-9)
}

func TestLedgerIgnoresNonPositiveQty(t *testing.T) {
	l := NewLedger()
	l.ApplyFill("X", models.SideBuy, 0, 100)
	l.ApplyFill("X", models.SideBuy, -5, 100)

	_, ok := l.Position("X")
	assert.False(t, ok)
}
