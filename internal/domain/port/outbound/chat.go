package outbound

import (
	"context"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
)

type ButtonStyle string

const (
	ButtonDefault ButtonStyle = ""
	ButtonPrimary ButtonStyle = "primary"
	ButtonDanger  ButtonStyle = "danger"
)

type Field struct {
	Label string
	Value string
}

type Section struct {
	Title string
	Body  string
}

type Button struct {
	Label   string
	Action  model.Action
	AlertID string
	Style   ButtonStyle
}

// Message is a transport-neutral rendering of an alert notification.
type Message struct {
	Title    string
	Severity model.Severity
	Fields   []Field
	Sections []Section
	Footer   string
	Actions  []Button
}

// PlainText flattens the message for transports without rich layout.
func (m Message) PlainText() string {
	out := m.Title
	for _, f := range m.Fields {
		out += "\n" + f.Label + ": " + f.Value
	}
	for _, s := range m.Sections {
		out += "\n\n" + s.Title + "\n" + s.Body
	}
	if m.Footer != "" {
		out += "\n\n" + m.Footer
	}
	return out
}

// ChatTransport delivers and edits notifications on a chat platform.
type ChatTransport interface {
	Name() string
	Send(ctx context.Context, target string, msg Message) (model.MessageRef, error)
	Edit(ctx context.Context, ref model.MessageRef, msg Message) error
}
