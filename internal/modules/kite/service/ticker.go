package service

import (
	"context"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"kite_trader/internal/models"
	"kite_trader/internal/modules/config"
	"kite_trader/pkg/logger"
)

// HealthState — что тикер сообщает health-модулю.
type HealthState interface {
	SetWSConnected(v bool)
	TouchTick(t time.Time)
}

// OrderUpdateFunc — колбэк постбэка по ордеру из того же сокета.
type OrderUpdateFunc func(ctx context.Context, orderID string, status models.OrderStatus, filledQty int64, avgPrice float64)

// Ticker — один WebSocket на весь вотчлист. Тики приходят бинарными
// фреймами (до ~200 инструментов на фрейм), постбэки по ордерам —
// текстовыми JSON-фреймами в тот же сокет.
type Ticker struct {
	cfg    *config.Config
	dialer *websocket.Dialer

	onOrder OrderUpdateFunc
	state   HealthState
}

func NewTicker(cfg *config.Config, onOrder OrderUpdateFunc, state HealthState) *Ticker {
	return &Ticker{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		onOrder: onOrder,
		state:   state,
	}
}

// Run держит соединение до отмены ctx: reconnect с паузой, resubscribe
// после каждого коннекта. Тики уходят в out; канал не закрываем —
// им владеет вызывающий.
func (t *Ticker) Run(ctx context.Context, out chan<- models.Tick) {
	url := t.cfg.Kite.WSURL + "?api_key=" + t.cfg.Kite.APIKey + "&access_token=" + t.cfg.Kite.AccessToken

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logger.Info("ws connect, %d instruments", len(t.cfg.Instruments))
		conn, _, err := t.dialer.DialContext(ctx, url, nil)
		if err != nil {
			logger.Error("ws dial: %v", err)
			time.Sleep(time.Second)
			continue
		}

		if err := t.subscribe(conn); err != nil {
			logger.Error("ws subscribe: %v", err)
			_ = conn.Close()
			time.Sleep(time.Second)
			continue
		}

		if t.state != nil {
			t.state.SetWSConnected(true)
		}

		// keepalive, иначе брокер рвёт молчащее соединение
		stopPing := make(chan struct{})
		go func() {
			ticker := time.NewTicker(20 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				case <-ticker.C:
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}()

		t.readLoop(ctx, conn, out)
		close(stopPing)
		_ = conn.Close()

		if t.state != nil {
			t.state.SetWSConnected(false)
		}

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

func (t *Ticker) subscribe(conn *websocket.Conn) error {
	tokens := make([]int64, 0, len(t.cfg.Instruments))
	for _, in := range t.cfg.Instruments {
		n, err := strconv.ParseInt(in.Token, 10, 64)
		if err != nil {
			logger.Warn("bad instrument token %q, skipped", in.Token)
			continue
		}
		tokens = append(tokens, n)
	}
	if len(tokens) == 0 {
		return errors.New("empty watchlist, nothing to subscribe")
	}

	if err := conn.WriteJSON(map[string]any{"a": "subscribe", "v": tokens}); err != nil {
		return err
	}
	// full mode: стакан + дневные объёмы в каждом тике
	return conn.WriteJSON(map[string]any{"a": "mode", "v": []any{"full", tokens}})
}

func (t *Ticker) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.Tick) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Error("ws read: %v", err)
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			// heartbeat — один байт, пропускаем
			if len(msg) < 2 {
				continue
			}
			for _, tick := range parseBinaryFrame(msg) {
				if t.state != nil {
					t.state.TouchTick(tick.Timestamp)
				}
				select {
				case out <- tick:
				case <-ctx.Done():
					return
				}
			}

		case websocket.TextMessage:
			t.handleTextFrame(ctx, msg)
		}
	}
}

func (t *Ticker) handleTextFrame(ctx context.Context, msg []byte) {
	var pb orderPostback
	if err := sonic.Unmarshal(msg, &pb); err != nil || pb.Type != "order" {
		return
	}
	status, ok := mapOrderStatus(pb.Data.Status)
	if !ok {
		logger.Warn("unknown order status %q for %s", pb.Data.Status, pb.Data.OrderID)
		return
	}
	if t.onOrder != nil {
		t.onOrder(ctx, pb.Data.OrderID, status, pb.Data.FilledQuantity, pb.Data.AveragePrice)
	}
}

// Бинарный фрейм: int16 число пакетов, дальше пакеты [int16 длина, тело].
// Тело full-пакета — big-endian int32-поля, цены в пайсах (делим на 100).
func parseBinaryFrame(msg []byte) []models.Tick {
	n := int(binary.BigEndian.Uint16(msg[0:2]))
	ticks := make([]models.Tick, 0, n)

	off := 2
	for i := 0; i < n; i++ {
		if off+2 > len(msg) {
			break
		}
		pktLen := int(binary.BigEndian.Uint16(msg[off : off+2]))
		off += 2
		if off+pktLen > len(msg) {
			break
		}
		if tick, ok := parsePacket(msg[off : off+pktLen]); ok {
			ticks = append(ticks, tick)
		}
		off += pktLen
	}
	return ticks
}

const (
	ltpPacketLen   = 8
	quotePacketLen = 44
	fullPacketLen  = 184
	priceDivisor   = 100.0
)

func parsePacket(p []byte) (models.Tick, bool) {
	if len(p) < ltpPacketLen {
		return models.Tick{}, false
	}

	token := binary.BigEndian.Uint32(p[0:4])
	tick := models.Tick{
		InstrumentID: strconv.FormatUint(uint64(token), 10),
		LastPrice:    float64(int32(binary.BigEndian.Uint32(p[4:8]))) / priceDivisor,
		Timestamp:    time.Now(),
	}

	if len(p) >= quotePacketLen {
		tick.LastQty = int64(int32(binary.BigEndian.Uint32(p[8:12])))
		tick.AvgTradePrice = float64(int32(binary.BigEndian.Uint32(p[12:16]))) / priceDivisor
		tick.DayVolume = int64(int32(binary.BigEndian.Uint32(p[16:20])))
	}

	if len(p) >= fullPacketLen {
		// offset 60 — биржевой timestamp в секундах unix
		if ts := int64(int32(binary.BigEndian.Uint32(p[60:64]))); ts > 0 {
			tick.Timestamp = time.Unix(ts, 0)
		}
		tick.Depth = parseDepth(tick.InstrumentID, tick.Timestamp, p[64:fullPacketLen])
	}

	return tick, tick.Valid()
}

// Стакан: 10 уровней по 12 байт — первые 5 bid, дальше 5 ask.
// В уровне int32 qty, int32 price, int16 orders, int16 padding.
func parseDepth(instrumentID string, ts time.Time, p []byte) *models.MarketDepth {
	var bids, asks []models.DepthLevel
	for i := 0; i < 10; i++ {
		off := i * 12
		if off+12 > len(p) {
			break
		}
		lvl := models.DepthLevel{
			Quantity: int64(int32(binary.BigEndian.Uint32(p[off : off+4]))),
			Price:    float64(int32(binary.BigEndian.Uint32(p[off+4:off+8]))) / priceDivisor,
			Orders:   int(int16(binary.BigEndian.Uint16(p[off+8 : off+10]))),
		}
		if lvl.Price <= 0 {
			continue
		}
		if i < 5 {
			bids = append(bids, lvl)
		} else {
			asks = append(asks, lvl)
		}
	}
	if len(bids) == 0 && len(asks) == 0 {
		return nil
	}
	return models.NewMarketDepth(instrumentID, ts, bids, asks)
}
