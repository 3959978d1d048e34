package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kite_trader/internal/modules/config"
)

func dailyStub(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Kite.BaseURL = srv.URL
	return NewClient(cfg)
}

// Дневные свечи Kite штампует полуночью IST. Прогрев посреди сессии
// не должен принять сегодняшнюю дневную свечу за вчерашнюю: в UTC её
// метка — ещё вчерашний вечер.
func TestPrevCloseUsesExchangeSessionDate(t *testing.T) {
	c := dailyStub(t, `{"status":"success","data":{"candles":[
		["2026-08-31T00:00:00+0530",99,101,98,100,500000],
		["2026-09-01T00:00:00+0530",100,103,99,98,400000]
	]}}`)

	ist := time.FixedZone("IST", 5*3600+30*60)
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, ist)

	px, err := c.PrevClose(context.Background(), "738561", now)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, px, 1e-9)
}

func TestPrevCloseAfterSessionClose(t *testing.T) {
	c := dailyStub(t, `{"status":"success","data":{"candles":[
		["2026-08-31T00:00:00+0530",99,101,98,100,500000],
		["2026-09-01T00:00:00+0530",100,103,99,98,400000]
	]}}`)

	ist := time.FixedZone("IST", 5*3600+30*60)
	now := time.Date(2026, 9, 1, 18, 0, 0, 0, ist)

	px, err := c.PrevClose(context.Background(), "738561", now)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, px, 1e-9)
}

func TestPrevCloseNoEarlierSession(t *testing.T) {
	c := dailyStub(t, `{"status":"success","data":{"candles":[
		["2026-09-01T00:00:00+0530",100,103,99,98,400000]
	]}}`)

	ist := time.FixedZone("IST", 5*3600+30*60)
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, ist)

	_, err := c.PrevClose(context.Background(), "738561", now)
	assert.Error(t, err)
}
