// Package slackbot receives button presses and slash commands from Slack
// over Socket Mode and routes them to the interaction port.
package slackbot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/inbound"
)

type Config struct {
	BotToken string
	AppToken string
	// APIURL overrides the Web API base URL.
	APIURL string
}

// NewClient builds the Web API client shared by the bot and the chat transport.
func NewClient(cfg Config) *slackapi.Client {
	opts := []slackapi.Option{slackapi.OptionAppLevelToken(cfg.AppToken)}
	if cfg.APIURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(cfg.APIURL))
	}
	return slackapi.New(cfg.BotToken, opts...)
}

// ephemeralPoster is the part of the Slack client used to answer the actor.
type ephemeralPoster interface {
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slackapi.MsgOption) (string, error)
}

const (
	handlerTimeout = 30 * time.Second
	// Slack drops slash command acks after 3s.
	commandAckTimeout = 2500 * time.Millisecond
)

// Bot handles incoming Slack events via Socket Mode. Each interaction runs
// in its own goroutine under a deadline, so a slow press on one alert does
// not hold up the event loop.
type Bot struct {
	socketMode  *socketmode.Client
	responder   ephemeralPoster
	interaction inbound.InteractionPort
	logger      *slog.Logger
	timeout     time.Duration
	inflight    sync.WaitGroup
}

// NewBot creates a new Bot with Socket Mode enabled on client.
func NewBot(client *slackapi.Client, interaction inbound.InteractionPort, logger *slog.Logger) *Bot {
	return &Bot{
		socketMode:  socketmode.New(client),
		responder:   client,
		interaction: interaction,
		logger:      logger.With("component", "slackbot"),
		timeout:     handlerTimeout,
	}
}

// Start begins processing Slack events. It blocks until ctx is cancelled
// and the in-flight handlers have returned.
func (b *Bot) Start(ctx context.Context) error {
	go b.handleEvents(ctx)
	err := b.socketMode.RunContext(ctx)
	b.inflight.Wait()
	return err
}

// spawn runs fn in a tracked goroutine under its own deadline.
func (b *Bot) spawn(parent context.Context, limit time.Duration, fn func(ctx context.Context)) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		ctx, cancel := context.WithTimeout(parent, limit)
		defer cancel()
		fn(ctx)
	}()
}

func (b *Bot) dispatchInteraction(ctx context.Context, callback slackapi.InteractionCallback) {
	b.spawn(ctx, b.timeout, func(ctx context.Context) {
		b.handleInteraction(ctx, callback)
	})
}

// dispatchCommand acks the slash command from its own goroutine once the
// reply is ready or the ack deadline passes.
func (b *Bot) dispatchCommand(ctx context.Context, cmd slackapi.SlashCommand, ack func(payload map[string]any)) {
	b.spawn(ctx, commandAckTimeout, func(ctx context.Context) {
		ack(b.handleSlashCommand(ctx, cmd))
	})
}

// handleEvents dispatches incoming Socket Mode events to the appropriate handler.
func (b *Bot) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socketMode.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				b.logger.Info("connecting to Slack")
			case socketmode.EventTypeConnected:
				b.logger.Info("connected to Slack")
			case socketmode.EventTypeConnectionError:
				b.logger.Warn("slack connection error")
			case socketmode.EventTypeInteractive:
				b.socketMode.Ack(*evt.Request)
				if callback, ok := evt.Data.(slackapi.InteractionCallback); ok {
					b.dispatchInteraction(ctx, callback)
				}
			case socketmode.EventTypeSlashCommand:
				cmd, ok := evt.Data.(slackapi.SlashCommand)
				if !ok {
					b.socketMode.Ack(*evt.Request)
					continue
				}
				req := *evt.Request
				b.dispatchCommand(ctx, cmd, func(payload map[string]any) {
					b.socketMode.Ack(req, payload)
				})
			default:
				if evt.Request != nil {
					b.socketMode.Ack(*evt.Request)
				}
			}
		}
	}
}
