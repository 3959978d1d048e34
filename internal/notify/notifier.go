package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kite_trader/internal/modules/config"
	"kite_trader/internal/order"
	"kite_trader/internal/risk"
	"kite_trader/pkg/logger"
)

// Telegram — пассивный нотифайер плюс пара операторских команд:
// /positions, /status, /reset. Без токена в конфиге все методы no-op.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	orders *order.Manager
	gov    *risk.Governor

	mu       sync.Mutex
	statusFn func() string // дампы стратегий, подвешивает раннер
}

func NewTelegram(cfg *config.Config, orders *order.Manager) (*Telegram, error) {
	t := &Telegram{
		chatID: cfg.Telegram.ChatID,
		orders: orders,
	}
	if cfg.Telegram.Token == "" {
		logger.Warn("telegram token is empty, notifications disabled")
		return t, nil
	}
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	t.bot = b
	return t, nil
}

// SetGovernor подвешивается позже раннером: governor сам получает
// нотифайер в конструкторе, напрямую связать их fx не даст.
func (t *Telegram) SetGovernor(gov *risk.Governor) {
	t.mu.Lock()
	t.gov = gov
	t.mu.Unlock()
}

func (t *Telegram) SetStatusFunc(fn func() string) {
	t.mu.Lock()
	t.statusFn = fn
	t.mu.Unlock()
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

// /positions — снапшот леджера
func (t *Telegram) handlePositions() {
	snap := t.orders.Ledger().Snapshot()
	if len(snap) == 0 {
		t.Send("📭 Позиций нет")
		return
	}

	var b strings.Builder
	b.WriteString("📊 Позиции:\n")
	for _, p := range snap {
		state := "FLAT"
		if p.Long() {
			state = "LONG"
		} else if p.Short() {
			state = "SHORT"
		}
		fmt.Fprintf(&b, "- %s [%s] qty=%d avg=%.2f realized=%.2f\n",
			p.InstrumentID, state, p.NetQty, p.AvgPrice, p.RealizedPnL)
	}
	t.Send(b.String())
}

func (t *Telegram) handleStatus() {
	t.mu.Lock()
	fn := t.statusFn
	gov := t.gov
	t.mu.Unlock()

	var b strings.Builder
	if gov != nil {
		fmt.Fprintf(&b, "Просадка: %.2f%%, митигация: %v\n", gov.Drawdown()*100, gov.Mitigation())
	}
	if fn != nil {
		b.WriteString(fn())
	}
	if b.Len() == 0 {
		t.Send("нет данных")
		return
	}
	t.Send(b.String())
}

func (t *Telegram) handleReset() {
	t.mu.Lock()
	gov := t.gov
	t.mu.Unlock()

	if gov == nil {
		t.Send("❗️ Риск-модуль не подключен")
		return
	}
	if !gov.Mitigation() {
		t.Send("Митигация не активна")
		return
	}
	gov.ResetMitigation()
	t.Send("✅ Митигация сброшена, пик считается заново")
}

// Start: long-polling только ради команд оператора.
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil || t.bot == nil {
		return nil
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message == nil || upd.Message.Chat == nil ||
					upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				switch upd.Message.Command() {
				case "positions":
					go t.handlePositions()
				case "status":
					go t.handleStatus()
				case "reset":
					go t.handleReset()
				}
			}
		}
	}()
	return nil
}
