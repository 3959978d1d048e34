package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kite_trader/internal/models"
)

// Engine — то, что дергает раннер после каждого обновления агрегатора.
type Engine interface {
	Evaluate(ctx context.Context, candles []models.Candle) (models.Signal, bool)
	Reset()
	Dump() string
}

// OrderPlacer — узкая граница размещения ордера (order.Manager).
type OrderPlacer interface {
	Place(ctx context.Context, req models.OrderRequest) (string, error)
}

// TimeOfDay — время внутри торговой сессии (биржевая таймзона).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay разбирает "09:15".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("bad time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("bad minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// On — это время суток в день даты t.
func (td TimeOfDay) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), td.Hour, td.Minute, 0, 0, t.Location())
}

func (td TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", td.Hour, td.Minute)
}
