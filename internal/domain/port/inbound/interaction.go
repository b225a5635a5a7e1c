package inbound

import (
	"context"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

// InteractionPort handles button presses and text commands from chat platforms.
type InteractionPort interface {
	HandleCallback(ctx context.Context, req CallbackRequest) (Reply, error)
	HandleCommand(ctx context.Context, req CommandRequest) (Reply, error)
}

type Actor struct {
	ID   string
	Name string
}

type CallbackRequest struct {
	Action  string
	AlertID string
	Actor   Actor
}

type CommandRequest struct {
	Text  string
	Actor Actor
}

// Reply is shown to the actor who triggered the interaction.
type Reply struct {
	Text   string
	Denied bool
	State  model.SessionState
}
