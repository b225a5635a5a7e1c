// Package slack delivers alert notifications to Slack channels as Block Kit
// messages and edits them in place as sessions progress.
package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

const transportName = "slack"

type Config struct {
	BotToken string
	// APIURL overrides the Slack Web API base URL.
	APIURL string
}

// Transport implements outbound.ChatTransport via the Slack Web API.
type Transport struct {
	client *slackapi.Client
}

func NewTransport(cfg Config) *Transport {
	var opts []slackapi.Option
	if cfg.APIURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(cfg.APIURL))
	}
	return &Transport{client: slackapi.New(cfg.BotToken, opts...)}
}

// NewTransportWithClient wraps an existing client, typically the one the bot uses.
func NewTransportWithClient(client *slackapi.Client) *Transport {
	return &Transport{client: client}
}

var _ outbound.ChatTransport = (*Transport)(nil)

func (t *Transport) Name() string { return transportName }

// Send posts msg to the channel named by target.
func (t *Transport) Send(ctx context.Context, target string, msg outbound.Message) (model.MessageRef, error) {
	if target == "" {
		return model.MessageRef{}, fmt.Errorf("slack send: no channel configured")
	}
	channel, ts, err := t.client.PostMessageContext(ctx, target,
		slackapi.MsgOptionBlocks(BuildBlocks(msg)...),
		slackapi.MsgOptionText(FallbackText(msg), false),
	)
	if err != nil {
		return model.MessageRef{}, fmt.Errorf("slack send: %w", err)
	}
	return model.MessageRef{Transport: transportName, ChatID: channel, MessageID: ts}, nil
}

// Edit replaces the blocks of a previously sent message.
func (t *Transport) Edit(ctx context.Context, ref model.MessageRef, msg outbound.Message) error {
	_, _, _, err := t.client.UpdateMessageContext(ctx, ref.ChatID, ref.MessageID,
		slackapi.MsgOptionBlocks(BuildBlocks(msg)...),
		slackapi.MsgOptionText(FallbackText(msg), false),
	)
	if err != nil {
		return fmt.Errorf("slack edit: %w", err)
	}
	return nil
}
