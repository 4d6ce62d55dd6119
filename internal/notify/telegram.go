package notify

import (
	"encoding/json"
	"fmt"

	"slotcal/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of the bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier pushes booking lifecycle messages to an ops chat. It subscribes
// to the in-process event bus, so a Telegram outage never touches the
// booking path.
type Notifier struct {
	bot    Sender
	chatID int64
	logger zerolog.Logger
}

func NewNotifier(bot Sender, chatID int64, logger *zerolog.Logger) *Notifier {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "notify").Logger()
	}
	return &Notifier{bot: bot, chatID: chatID, logger: base}
}

// NewBot builds the underlying bot API client.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return bot, nil
}

// Attach subscribes the notifier to booking events on the bus.
func (n *Notifier) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingCreated, n.handle("New booking"))
	bus.Subscribe(events.EventBookingUpdated, n.handle("Booking updated"))
	bus.Subscribe(events.EventBookingCancelled, n.handle("Booking cancelled"))
}

func (n *Notifier) handle(headline string) events.EventHandler {
	return func(event *events.Event) error {
		var payload events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			n.logger.Warn().Err(err).Str("event", event.Type).Msg("decode event payload")
			return err
		}

		text := fmt.Sprintf("%s\n%s — %s\n%s to %s\nby %s (%s)",
			headline,
			payload.Slot,
			payload.CourseName,
			payload.Start.Format("Jan 2, 2006"),
			payload.End.Format("Jan 2, 2006"),
			payload.CreatedBy,
			payload.Department,
		)

		msg := tgbotapi.NewMessage(n.chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Str("event", event.Type).Msg("send notification")
			return err
		}
		return nil
	}
}
