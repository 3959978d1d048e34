package service

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"kite_trader/internal/models"
)

// Kite REST отвечает конвертом {"status": "...", "data": ...};
// при ошибке data нет, есть message + error_type.
type envelope struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorType string `json:"error_type"`
}

type orderResponse struct {
	envelope
	Data struct {
		OrderID string `json:"order_id"`
	} `json:"data"`
}

type historicalResponse struct {
	envelope
	Data struct {
		// строка: [timestamp, open, high, low, close, volume]
		Candles [][]any `json:"candles"`
	} `json:"data"`
}

// postback по ордеру приходит текстовым фреймом в тот же WebSocket
type orderPostback struct {
	Type string `json:"type"`
	Data struct {
		OrderID         string  `json:"order_id"`
		Status          string  `json:"status"`
		FilledQuantity  int64   `json:"filled_quantity"`
		AveragePrice    float64 `json:"average_price"`
		TradingSymbol   string  `json:"tradingsymbol"`
		TransactionType string  `json:"transaction_type"`
	} `json:"data"`
}

const kiteTimeLayout = "2006-01-02T15:04:05-0700"

func parseCandleRow(instrumentID string, tf models.Timeframe, row []any) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, errors.Errorf("candle row has %d fields", len(row))
	}
	ts, ok := row[0].(string)
	if !ok {
		return models.Candle{}, errors.New("candle timestamp is not a string")
	}
	start, err := time.Parse(kiteTimeLayout, ts)
	if err != nil {
		return models.Candle{}, errors.Wrap(err, "parse candle timestamp")
	}

	nums := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		f, ok := toFloat(row[i])
		if !ok {
			return models.Candle{}, errors.Errorf("candle field %d is not numeric", i)
		}
		nums[i-1] = f
	}

	return models.Candle{
		InstrumentID: instrumentID,
		Timeframe:    tf,
		Start:        start,
		Open:         nums[0],
		High:         nums[1],
		Low:          nums[2],
		Close:        nums[3],
		Volume:       int64(nums[4]),
	}, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

// mapOrderStatus переводит статус брокера в наш.
func mapOrderStatus(s string) (models.OrderStatus, bool) {
	switch s {
	case "OPEN", "TRIGGER PENDING":
		return models.OrderStatusOpen, true
	case "COMPLETE":
		return models.OrderStatusFilled, true
	case "CANCELLED":
		return models.OrderStatusCancelled, true
	case "REJECTED":
		return models.OrderStatusRejected, true
	case "PUT ORDER REQ RECEIVED", "VALIDATION PENDING", "OPEN PENDING":
		return models.OrderStatusPending, true
	}
	return "", false
}

func intervalFor(tf models.Timeframe) string {
	switch tf {
	case models.TF5m:
		return "5minute"
	case models.TF15m:
		return "15minute"
	default:
		return "minute"
	}
}
