package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"kite_trader/internal/models"
	"kite_trader/internal/modules/config"
	kitesvc "kite_trader/internal/modules/kite/service"
	"kite_trader/pkg/db"
	"kite_trader/pkg/logger"
)

// backfill тянет историю свечей через REST и складывает в таблицу
// candles. Параметры через env: BACKFILL_TOKEN, BACKFILL_TF, BACKFILL_DAYS.

const insertCandleSQL = `
INSERT INTO candles (instrument, timeframe, start_at, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (instrument, timeframe, start_at) DO UPDATE
SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
    close = EXCLUDED.close, volume = EXCLUDED.volume`

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	logger.Init(zl)
	logger.SetServiceName("backfill")

	viper.SetEnvPrefix("backfill")
	viper.AutomaticEnv()
	viper.SetDefault("tf", "1m")
	viper.SetDefault("days", 5)

	token := viper.GetString("token")
	if token == "" {
		panic("BACKFILL_TOKEN is required")
	}
	tf := models.Timeframe(viper.GetString("tf"))
	days := viper.GetInt("days")

	cfg, err := config.NewConfig()
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	ctx := context.Background()
	client := kitesvc.NewClient(cfg)

	to := time.Now()
	from := to.AddDate(0, 0, -days)
	candles, err := client.HistoricalCandles(ctx, token, tf, from, to)
	if err != nil {
		panic(fmt.Errorf("fetch candles: %w", err))
	}
	fmt.Printf("fetched %d candles %s/%s\n", len(candles), token, tf)

	pool, err := db.NewPool(ctx, db.PoolConfig{DSN: cfg.DB})
	if err != nil {
		panic(fmt.Errorf("connect db: %w", err))
	}
	txm := db.NewPgTxManager(pool)
	defer txm.Close()

	err = txm.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, c := range candles {
			_, err := tx.Exec(ctx, insertCandleSQL,
				c.InstrumentID, string(c.Timeframe), c.Start,
				c.Open, c.High, c.Low, c.Close, c.Volume)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		panic(fmt.Errorf("store candles: %w", err))
	}
	fmt.Println("done")
}
