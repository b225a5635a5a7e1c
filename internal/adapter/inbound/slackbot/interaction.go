package slackbot

import (
	"context"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/adapter/outbound/chat/slack"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
)

const replyTimeout = 5 * time.Second

// handleInteraction routes every alert button in a block_actions payload.
func (b *Bot) handleInteraction(ctx context.Context, callback slackapi.InteractionCallback) {
	if callback.Type != slackapi.InteractionTypeBlockActions {
		return
	}
	for _, action := range callback.ActionCallback.BlockActions {
		req, ok := callbackRequest(action, callback.User)
		if !ok {
			continue
		}
		reply, err := b.interaction.HandleCallback(ctx, req)
		if err != nil {
			b.logger.Error("handling button press failed", "alertID", req.AlertID, "action", req.Action, "error", err)
			reply = inbound.Reply{Text: "⚠️ Something went wrong handling that action."}
		}
		b.respond(ctx, callback.Channel.ID, callback.User.ID, reply)
	}
}

// callbackRequest converts a pressed button into a CallbackRequest.
// Buttons not rendered by the chat transport are ignored.
func callbackRequest(action *slackapi.BlockAction, user slackapi.User) (inbound.CallbackRequest, bool) {
	if action == nil || !strings.HasPrefix(action.ActionID, slack.ActionIDPrefix) {
		return inbound.CallbackRequest{}, false
	}
	name, alertID, ok := strings.Cut(action.Value, ":")
	if !ok || alertID == "" {
		return inbound.CallbackRequest{}, false
	}
	return inbound.CallbackRequest{
		Action:  name,
		AlertID: alertID,
		Actor:   actor(user.ID, user.Name),
	}, true
}

func (b *Bot) respond(ctx context.Context, channelID, userID string, reply inbound.Reply) {
	if reply.Text == "" || channelID == "" {
		return
	}
	// The handler deadline may already be spent; the reply gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), replyTimeout)
	defer cancel()
	if _, err := b.responder.PostEphemeralContext(ctx, channelID, userID, slackapi.MsgOptionText(reply.Text, false)); err != nil {
		b.logger.Warn("posting reply failed", "channel", channelID, "user", userID, "error", err)
	}
}

// handleSlashCommand returns the ack payload for a slash command.
func (b *Bot) handleSlashCommand(ctx context.Context, cmd slackapi.SlashCommand) map[string]any {
	reply, err := b.interaction.HandleCommand(ctx, inbound.CommandRequest{
		Text:  commandText(cmd.Text),
		Actor: actor(cmd.UserID, cmd.UserName),
	})
	if err != nil {
		b.logger.Error("handling slash command failed", "command", cmd.Command, "error", err)
		reply = inbound.Reply{Text: "⚠️ Something went wrong handling that command."}
	}
	return map[string]any{
		"response_type": "ephemeral",
		"text":          reply.Text,
	}
}

// commandText turns "/zabbix status" style input into "/status".
func commandText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "/help"
	}
	if !strings.HasPrefix(text, "/") {
		text = "/" + text
	}
	return text
}

func actor(id, name string) inbound.Actor {
	if name == "" {
		name = id
	}
	return inbound.Actor{ID: id, Name: name}
}
