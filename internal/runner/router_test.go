package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite_trader/internal/marketdata"
	"kite_trader/internal/models"
	"kite_trader/internal/modules/config"
	"kite_trader/internal/order"
	"kite_trader/internal/risk"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Exchange:         "NSE",
		MarketOpen:       "09:15",
		StrategyEnd:      "15:00",
		ResetAt:          "09:00",
		SeriesCapacity:   100,
		RangeMinutes:     15,
		VolumeLookback:   10,
		SpikeFactor:      1.5,
		MomentumLookback: 5,
		MinDayRangePct:   2.0,
		MinDayVolume:     1,
		Quantity:         1,
		TakeProfitRR:     2.0,
		MaxDrawdownPct:   10,
		StartingCapital:  100000,
	}
	cfg.Instruments = []config.Instrument{
		{Token: "738561", Symbol: "RELIANCE"},
		{Token: "2953217", Symbol: "TCS"},
	}
	return cfg
}

type noopGateway struct{}

func (noopGateway) PlaceOrder(_ context.Context, _ models.OrderRequest) (string, error) {
	return "ord-1", nil
}
func (noopGateway) CancelOrder(context.Context, string) error { return nil }

func newTestRouter(t *testing.T, cfg *config.Config) *Router {
	t.Helper()
	om := order.NewManager(noopGateway{}, nil)
	gov := risk.NewGovernor(risk.Config{MaxDrawdown: 0.10, StartingCapital: 100000}, om, nil)
	agg := marketdata.NewAggregator(cfg.SeriesCapacity)

	r, err := NewRouter(cfg, agg, om, gov, nil, nil)
	require.NoError(t, err)
	return r
}

func TestNewRouterBuildsPipelinePerInstrument(t *testing.T) {
	r := newTestRouter(t, testConfig())
	assert.Len(t, r.pipes, 2)
	assert.Len(t, r.orbs, 2)
}

func TestNewRouterRejectsBadSessionTimes(t *testing.T) {
	cfg := testConfig()
	cfg.MarketOpen = "2515"
	om := order.NewManager(noopGateway{}, nil)
	gov := risk.NewGovernor(risk.Config{}, om, nil)

	_, err := NewRouter(cfg, marketdata.NewAggregator(10), om, gov, nil, nil)
	assert.Error(t, err)
}

func TestRouterDropsUnknownInstrument(t *testing.T) {
	r := newTestRouter(t, testConfig())
	// незнакомый токен — дроп без паники
	r.OnTick(models.Tick{
		InstrumentID: "999",
		Timestamp:    time.Now(),
		LastPrice:    100,
	})
}

func TestRouterQueuesKnownInstrument(t *testing.T) {
	r := newTestRouter(t, testConfig())
	r.OnTick(models.Tick{
		InstrumentID: "738561",
		Timestamp:    time.Now(),
		LastPrice:    100,
		LastQty:      1,
	})
	assert.Len(t, r.pipes["738561"].queue, 1)
}

func TestRouterWorkersExitOnCancel(t *testing.T) {
	r := newTestRouter(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers still running after cancel")
	}
}

func TestRouterDumpAllListsInstruments(t *testing.T) {
	r := newTestRouter(t, testConfig())
	dump := r.DumpAll()
	assert.Contains(t, dump, "738561")
	assert.Contains(t, dump, "2953217")
	assert.Contains(t, dump, "AWAITING_OPEN")
}
