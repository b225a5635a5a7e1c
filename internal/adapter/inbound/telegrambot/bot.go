// Package telegrambot receives inline keyboard presses and commands from
// Telegram by long polling and routes them to the interaction port.
package telegrambot

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
)

// maxCallbackAnswer is the Bot API limit for answerCallbackQuery text.
const maxCallbackAnswer = 200

// Bot wires telebot handlers to an InteractionPort.
type Bot struct {
	bot         *tele.Bot
	interaction inbound.InteractionPort
	logger      *slog.Logger
	timeout     time.Duration
}

// NewBot registers handlers on bot. The caller owns bot and may share it
// with the chat transport.
func NewBot(bot *tele.Bot, interaction inbound.InteractionPort, logger *slog.Logger) *Bot {
	b := &Bot{
		bot:         bot,
		interaction: interaction,
		logger:      logger.With("component", "telegrambot"),
		timeout:     30 * time.Second,
	}
	bot.Handle(tele.OnCallback, b.onCallback)
	bot.Handle(tele.OnText, b.onText)
	return b
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.logger.Info("telegram polling started")
	b.bot.Start()
	return nil
}

func (b *Bot) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	reply, err := b.callback(ctx, cb.Data, c.Sender())
	if err != nil {
		b.logger.Error("handling button press failed", "data", cb.Data, "error", err)
	}
	answer, followUp := answerFor(reply)
	if err := c.Respond(answer); err != nil {
		b.logger.Warn("answering callback failed", "error", err)
	}
	if followUp != "" {
		return c.Send(followUp)
	}
	return nil
}

func (b *Bot) callback(ctx context.Context, data string, sender *tele.User) (inbound.Reply, error) {
	name, alertID, ok := strings.Cut(strings.TrimSpace(data), ":")
	if !ok || alertID == "" {
		return inbound.Reply{Text: "❓ Unrecognised button"}, nil
	}
	reply, err := b.interaction.HandleCallback(ctx, inbound.CallbackRequest{
		Action:  name,
		AlertID: alertID,
		Actor:   actor(sender),
	})
	if err != nil {
		return inbound.Reply{Text: "⚠️ Something went wrong handling that action."}, err
	}
	return reply, nil
}

func (b *Bot) onText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	reply, err := b.interaction.HandleCommand(ctx, inbound.CommandRequest{Text: text, Actor: actor(c.Sender())})
	if err != nil {
		b.logger.Error("handling command failed", "command", text, "error", err)
		reply = inbound.Reply{Text: "⚠️ Something went wrong handling that command."}
	}
	if reply.Text == "" {
		return nil
	}
	return c.Reply(reply.Text)
}

// answerFor builds the callback answer. Text longer than the popup limit is
// sent as a follow-up message instead.
func answerFor(reply inbound.Reply) (*tele.CallbackResponse, string) {
	if len([]rune(reply.Text)) <= maxCallbackAnswer {
		return &tele.CallbackResponse{Text: reply.Text, ShowAlert: reply.Denied}, ""
	}
	return &tele.CallbackResponse{}, reply.Text
}

func actor(u *tele.User) inbound.Actor {
	if u == nil {
		return inbound.Actor{}
	}
	name := u.Username
	if name == "" {
		name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	id := strconv.FormatInt(u.ID, 10)
	if name == "" {
		name = id
	}
	return inbound.Actor{ID: id, Name: name}
}
