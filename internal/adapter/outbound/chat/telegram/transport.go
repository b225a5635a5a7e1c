// Package telegram delivers alert notifications to Telegram chats with
// inline keyboards and edits them in place as sessions progress.
package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

const (
	transportName = "telegram"
	maxTextLen    = 4096
	buttonsPerRow = 2
)

type Config struct {
	Token string
	// APIURL overrides the Bot API base URL.
	APIURL  string
	Timeout time.Duration
}

// NewBot builds an offline bot usable for sending. Polling is attached by
// the inbound adapter.
func NewBot(cfg Config, poller tele.Poller) (*tele.Bot, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Poller:  poller,
		Offline: poller == nil,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return bot, nil
}

// Transport implements outbound.ChatTransport via the Telegram Bot API.
type Transport struct {
	bot *tele.Bot
}

func NewTransport(bot *tele.Bot) *Transport {
	return &Transport{bot: bot}
}

var _ outbound.ChatTransport = (*Transport)(nil)

func (t *Transport) Name() string { return transportName }

// recipient accepts numeric chat IDs as well as @channel usernames.
type recipient string

func (r recipient) Recipient() string { return string(r) }

// Send posts msg to the chat named by target.
func (t *Transport) Send(ctx context.Context, target string, msg outbound.Message) (model.MessageRef, error) {
	if target == "" {
		return model.MessageRef{}, fmt.Errorf("telegram send: no chat configured")
	}
	if err := ctx.Err(); err != nil {
		return model.MessageRef{}, err
	}
	sent, err := t.bot.Send(recipient(target), RenderHTML(msg), sendOptions(msg))
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("telegram send: %w", err)
	}
	return model.MessageRef{
		Transport: transportName,
		ChatID:    strconv.FormatInt(sent.Chat.ID, 10),
		MessageID: strconv.Itoa(sent.ID),
	}, nil
}

// Edit rewrites the text and keyboard of a previously sent message.
func (t *Transport) Edit(ctx context.Context, ref model.MessageRef, msg outbound.Message) error {
	chatID, err := strconv.ParseInt(ref.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram edit: invalid chat id %q", ref.ChatID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := tele.StoredMessage{MessageID: ref.MessageID, ChatID: chatID}
	if _, err := t.bot.Edit(stored, RenderHTML(msg), sendOptions(msg)); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("telegram edit: %w", err)
	}
	return nil
}

func sendOptions(msg outbound.Message) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ReplyMarkup:           Keyboard(msg.Actions),
	}
}

// Keyboard lays buttons out two per row. Callback data is "action:alert_id".
func Keyboard(buttons []outbound.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{}}
	}
	var rows [][]tele.InlineButton
	var row []tele.InlineButton
	for _, b := range buttons {
		row = append(row, tele.InlineButton{
			Text: b.Label,
			Data: model.CallbackData(b.Action, b.AlertID),
		})
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// RenderHTML formats msg using the Telegram HTML subset.
func RenderHTML(msg outbound.Message) string {
	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(msg.Title) + "</b>\n")
	for _, f := range msg.Fields {
		fmt.Fprintf(&b, "\n<b>%s:</b> %s", html.EscapeString(f.Label), html.EscapeString(f.Value))
	}
	for _, s := range msg.Sections {
		body := html.EscapeString(s.Body)
		if strings.HasSuffix(s.Title, " report") {
			body = "<pre>" + body + "</pre>"
		}
		fmt.Fprintf(&b, "\n\n<b>%s</b>\n%s", html.EscapeString(s.Title), body)
	}
	if msg.Footer != "" {
		b.WriteString("\n\n<i>" + html.EscapeString(msg.Footer) + "</i>")
	}
	return clip(b.String())
}

// clip keeps the message under the Bot API limit. A cut inside a <pre>
// block is closed so the HTML stays valid.
func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxTextLen {
		return s
	}
	out := string(r[:maxTextLen-20])
	if cut := strings.LastIndex(out, "&"); cut > strings.LastIndex(out, ";") {
		out = out[:cut]
	}
	if cut := strings.LastIndex(out, "<"); cut > strings.LastIndex(out, ">") {
		out = out[:cut]
	}
	out += "…"
	if strings.Count(out, "<pre>") > strings.Count(out, "</pre>") {
		out += "</pre>"
	}
	if strings.Count(out, "<i>") > strings.Count(out, "</i>") {
		out += "</i>"
	}
	return out
}
