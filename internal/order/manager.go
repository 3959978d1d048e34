package order

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"kite_trader/internal/metrics"
	"kite_trader/internal/models"
	"kite_trader/pkg/logger"
)

// Gateway — граница с брокером. Реализуется kite-модулем,
// в тестах — фейком.
type Gateway interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Journal — опциональная запись в торговый журнал. nil допустим.
type Journal interface {
	RecordOrder(ctx context.Context, o models.Order) error
	RecordFill(ctx context.Context, orderID string, qty int64, price float64) error
}

// Manager ведёт активные ордера и позиции. Апдейты статусов приходят
// асинхронно от брокера и двигают леджер.
type Manager struct {
	gw      Gateway
	journal Journal

	mu     sync.RWMutex
	active map[string]*models.Order
	ledger *Ledger
}

func NewManager(gw Gateway, journal Journal) *Manager {
	return &Manager{
		gw:      gw,
		journal: journal,
		active:  make(map[string]*models.Order),
		ledger:  NewLedger(),
	}
}

func (m *Manager) Ledger() *Ledger { return m.ledger }

// Place размещает ордер через шлюз. Ошибка означает, что ордера нет —
// вызывающий оставляет своё состояние как было и пробует позже.
func (m *Manager) Place(ctx context.Context, req models.OrderRequest) (string, error) {
	if req.Quantity <= 0 || req.InstrumentID == "" || req.Side == models.SideNone {
		return "", ErrBadRequest
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "order.place")
	defer span.Finish()
	span.SetTag("instrument", req.InstrumentID)
	span.SetTag("side", string(req.Side))

	orderID, err := m.gw.PlaceOrder(ctx, req)
	if err != nil {
		metrics.OrdersRejected.Inc()
		logger.Error("place %s %s x%d: %v", req.Side, req.InstrumentID, req.Quantity, err)
		return "", err
	}

	o := &models.Order{
		ID:           orderID,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		Quantity:     req.Quantity,
		Price:        req.Price,
		Type:         req.Type,
		Product:      req.Product,
		Status:       models.OrderStatusPending,
		Tag:          req.Tag,
		PlacedAt:     time.Now(),
	}

	m.mu.Lock()
	m.active[orderID] = o
	m.mu.Unlock()

	metrics.OrdersPlaced.WithLabelValues(string(req.Side)).Inc()
	logger.Info("order placed %s: %s %s x%d @ %.2f [%s]",
		orderID, req.Side, req.InstrumentID, req.Quantity, req.Price, req.Tag)

	if m.journal != nil {
		if err := m.journal.RecordOrder(ctx, *o); err != nil {
			logger.Warn("journal order %s: %v", orderID, err)
		}
	}
	return orderID, nil
}

// Cancel снимает активный ордер.
func (m *Manager) Cancel(ctx context.Context, orderID string) error {
	m.mu.RLock()
	o, ok := m.active[orderID]
	m.mu.RUnlock()
	if !ok {
		return ErrUnknownOrder
	}
	if o.Status.Terminal() {
		return ErrTerminalOrder
	}
	if err := m.gw.CancelOrder(ctx, orderID); err != nil {
		logger.Error("cancel %s: %v", orderID, err)
		return err
	}
	logger.Info("cancel requested %s (%s %s)", orderID, o.Side, o.InstrumentID)
	return nil
}

// OnOrderUpdate — колбэк статуса от брокера. Переходы только вперёд:
// апдейт терминального ордера игнорируется. Филлы двигают леджер.
func (m *Manager) OnOrderUpdate(ctx context.Context, orderID string, status models.OrderStatus, filledQty int64, avgPrice float64) {
	m.mu.Lock()
	o, ok := m.active[orderID]
	if !ok {
		m.mu.Unlock()
		logger.Warn("update for unknown order %s (%s)", orderID, status)
		return
	}
	if o.Status.Terminal() {
		m.mu.Unlock()
		logger.Warn("update for terminal order %s: %s -> %s ignored", orderID, o.Status, status)
		return
	}
	o.Status = status
	filled := *o
	if status.Terminal() {
		delete(m.active, orderID)
	}
	m.mu.Unlock()

	if status == models.OrderStatusFilled && filledQty > 0 {
		m.ledger.ApplyFill(filled.InstrumentID, filled.Side, filledQty, avgPrice)
		metrics.OrdersFilled.Inc()
		logger.Info("fill %s: %s %s x%d @ %.2f", orderID, filled.Side, filled.InstrumentID, filledQty, avgPrice)
		if m.journal != nil {
			if err := m.journal.RecordFill(ctx, orderID, filledQty, avgPrice); err != nil {
				logger.Warn("journal fill %s: %v", orderID, err)
			}
		}
	}
}

// ActiveOrders — копии всех нетерминальных ордеров.
func (m *Manager) ActiveOrders() []models.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Order, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, *o)
	}
	return out
}
