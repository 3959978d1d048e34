package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"kite_trader/internal/helper"
	"kite_trader/internal/models"
	"kite_trader/internal/modules/config"
	"kite_trader/pkg/logger"
)

// Client — REST к Kite Connect. Данные ходят по числовому токену
// инструмента, ордера — по торговому символу, маппинг из конфига.
type Client struct {
	cfg  *config.Config
	http *http.Client

	baseURL     string
	apiKey      string
	accessToken string

	symbols map[string]string // token -> tradingsymbol
}

func NewClient(cfg *config.Config) *Client {
	symbols := make(map[string]string, len(cfg.Instruments))
	for _, in := range cfg.Instruments {
		symbols[in.Token] = in.Symbol
	}
	return &Client{
		cfg:         cfg,
		http:        &http.Client{Timeout: 10 * time.Second},
		baseURL:     cfg.Kite.BaseURL,
		apiKey:      cfg.Kite.APIKey,
		accessToken: cfg.Kite.AccessToken,
		symbols:     symbols,
	}
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
}

// PlaceOrder размещает ордер и возвращает order_id брокера. Филлы
// придут позже постбэком в WebSocket.
func (c *Client) PlaceOrder(ctx context.Context, r models.OrderRequest) (string, error) {
	symbol, ok := c.symbols[r.InstrumentID]
	if !ok {
		return "", errors.Errorf("no trading symbol for instrument %s", r.InstrumentID)
	}

	form := url.Values{}
	form.Set("exchange", c.cfg.Exchange)
	form.Set("tradingsymbol", symbol)
	form.Set("transaction_type", string(r.Side))
	form.Set("order_type", string(r.Type))
	form.Set("quantity", fmt.Sprintf("%d", r.Quantity))
	form.Set("product", string(r.Product))
	form.Set("validity", "DAY")
	if r.Type == models.OrderTypeLimit {
		form.Set("price", fmt.Sprintf("%.2f", helper.RoundToTick(r.Price, helper.DefaultTickSize)))
	}
	if r.Tag != "" {
		form.Set("tag", r.Tag)
	}

	const requestPath = "/orders/regular"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+requestPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "PlaceOrder new request")
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "PlaceOrder do")
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", errors.Errorf("PlaceOrder http %d: %s", resp.StatusCode, string(data))
	}

	var r2 orderResponse
	if err := sonic.Unmarshal(data, &r2); err != nil {
		return "", errors.Wrapf(err, "PlaceOrder decode; body=%s", string(data))
	}
	if r2.Status != "success" {
		return "", errors.Errorf("PlaceOrder rejected: %s (%s)", r2.Message, r2.ErrorType)
	}
	if r2.Data.OrderID == "" {
		return "", errors.Errorf("PlaceOrder: empty order_id RAW=%s", string(data))
	}
	return r2.Data.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	requestPath := "/orders/regular/" + orderID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+requestPath, nil)
	if err != nil {
		return errors.Wrap(err, "CancelOrder new request")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "CancelOrder do")
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("CancelOrder http %d: %s", resp.StatusCode, string(data))
	}

	var r orderResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return errors.Wrapf(err, "CancelOrder decode; body=%s", string(data))
	}
	if r.Status != "success" {
		return errors.Errorf("CancelOrder rejected: %s (%s)", r.Message, r.ErrorType)
	}
	return nil
}

// HistoricalCandles тянет свечи за [from, to] по одному таймфрейму.
// Брокер отдаёт их отсортированными, но мы на это не полагаемся.
func (c *Client) HistoricalCandles(ctx context.Context, instrumentID string, tf models.Timeframe, from, to time.Time) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02 15:04:05"))
	q.Set("to", to.Format("2006-01-02 15:04:05"))

	requestPath := fmt.Sprintf("/instruments/historical/%s/%s", instrumentID, intervalFor(tf))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+requestPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "HistoricalCandles new request")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "HistoricalCandles do")
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("HistoricalCandles http %d: %s", resp.StatusCode, string(data))
	}

	var r historicalResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "HistoricalCandles decode")
	}
	if r.Status != "success" {
		return nil, errors.Errorf("HistoricalCandles: %s (%s)", r.Message, r.ErrorType)
	}

	out := make([]models.Candle, 0, len(r.Data.Candles))
	for _, row := range r.Data.Candles {
		cndl, err := parseCandleRow(instrumentID, tf, row)
		if err != nil {
			// одна битая строка не должна ронять весь warmup
			logger.Warn("historical %s: %v", instrumentID, err)
			continue
		}
		out = append(out, cndl)
	}
	return out, nil
}

// PrevClose — закрытие предыдущей торговой сессии, нужно стратегии
// для классификации гэпа на открытии.
func (c *Client) PrevClose(ctx context.Context, instrumentID string, now time.Time) (float64, error) {
	// дневные свечи за последнюю неделю; последняя с датой раньше
	// сегодняшней и есть вчера
	candles, err := c.dailyCandles(ctx, instrumentID, now.AddDate(0, 0, -7), now)
	if err != nil {
		return 0, err
	}
	for i := len(candles) - 1; i >= 0; i-- {
		// дату сессии сравниваем в таймзоне биржи: метка дневной свечи
		// несёт её смещение, усечение по UTC захватило бы сегодняшнюю
		cy, cm, cd := candles[i].Start.Date()
		ny, nm, nd := now.In(candles[i].Start.Location()).Date()
		if cy == ny && cm == nm && cd == nd {
			continue
		}
		return candles[i].Close, nil
	}
	return 0, errors.Errorf("no previous session close for %s", instrumentID)
}

func (c *Client) dailyCandles(ctx context.Context, instrumentID string, from, to time.Time) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02 15:04:05"))
	q.Set("to", to.Format("2006-01-02 15:04:05"))

	requestPath := fmt.Sprintf("/instruments/historical/%s/day", instrumentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+requestPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "dailyCandles new request")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "dailyCandles do")
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("dailyCandles http %d: %s", resp.StatusCode, string(data))
	}

	var r historicalResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "dailyCandles decode")
	}
	if r.Status != "success" {
		return nil, errors.Errorf("dailyCandles: %s (%s)", r.Message, r.ErrorType)
	}

	out := make([]models.Candle, 0, len(r.Data.Candles))
	for _, row := range r.Data.Candles {
		cndl, err := parseCandleRow(instrumentID, models.TF1m, row)
		if err != nil {
			continue
		}
		out = append(out, cndl)
	}
	return out, nil
}
