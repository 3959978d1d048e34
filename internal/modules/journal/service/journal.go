package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"kite_trader/internal/models"
	"kite_trader/pkg/db"
)

// Journal пишет торговый журнал в postgres. Схема — migrations/001_journal.sql.
type Journal struct {
	tx *db.PgTxManager
}

func NewJournal(tx *db.PgTxManager) *Journal {
	return &Journal{tx: tx}
}

const insertOrderSQL = `
INSERT INTO orders (order_id, instrument, side, quantity, price, order_type, product, status, tag, placed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (order_id) DO UPDATE SET status = EXCLUDED.status`

func (j *Journal) RecordOrder(ctx context.Context, o models.Order) error {
	err := j.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.InstrumentID, string(o.Side), o.Quantity, o.Price,
			string(o.Type), string(o.Product), string(o.Status), o.Tag, o.PlacedAt)
		return err
	})
	return errors.Wrap(err, "Journal.RecordOrder")
}

const insertFillSQL = `
INSERT INTO fills (order_id, quantity, price, filled_at)
VALUES ($1, $2, $3, now())`

func (j *Journal) RecordFill(ctx context.Context, orderID string, qty int64, price float64) error {
	err := j.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertFillSQL, orderID, qty, price)
		return err
	})
	return errors.Wrap(err, "Journal.RecordFill")
}

const insertSignalSQL = `
INSERT INTO signals (instrument, side, price, strategy, reason, emitted_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (j *Journal) RecordSignal(ctx context.Context, s models.Signal) error {
	err := j.tx.RunMaster(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertSignalSQL,
			s.InstrumentID, string(s.Side), s.Price, s.Strategy, s.Reason, s.At)
		return err
	})
	return errors.Wrap(err, "Journal.RecordSignal")
}
