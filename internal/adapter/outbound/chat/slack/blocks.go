package slack

import (
	"fmt"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/model"
	"github.com/ddphuc01/Zabbix-Monitoring/internal/domain/port/outbound"
)

// ActionIDPrefix marks buttons whose value is a callback payload.
const ActionIDPrefix = "zbxai_"

const (
	maxHeaderLen  = 150
	maxSectionLen = 3000
	maxFields     = 10
)

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// BuildBlocks renders a Message as Block Kit blocks.
func BuildBlocks(msg outbound.Message) []slackapi.Block {
	blocks := []slackapi.Block{
		slackapi.NewHeaderBlock(slackapi.NewTextBlockObject(slackapi.PlainTextType, clip(msg.Title, maxHeaderLen), true, false)),
	}

	if len(msg.Fields) > 0 {
		fields := make([]*slackapi.TextBlockObject, 0, len(msg.Fields))
		for i, f := range msg.Fields {
			if i == maxFields {
				break
			}
			fields = append(fields, markdown(fmt.Sprintf("*%s*\n%s", f.Label, mrkdwnEscaper.Replace(f.Value))))
		}
		blocks = append(blocks, slackapi.NewSectionBlock(nil, fields, nil))
	}

	for _, s := range msg.Sections {
		body := clip(mrkdwnEscaper.Replace(s.Body), maxSectionLen-200)
		if strings.HasSuffix(s.Title, " report") {
			body = "```" + body + "```"
		}
		text := fmt.Sprintf("*%s*\n%s", s.Title, body)
		blocks = append(blocks, slackapi.NewDividerBlock(), slackapi.NewSectionBlock(markdown(text), nil, nil))
	}

	if msg.Footer != "" {
		blocks = append(blocks, slackapi.NewContextBlock("", markdown("_"+mrkdwnEscaper.Replace(msg.Footer)+"_")))
	}

	if len(msg.Actions) > 0 {
		elements := make([]slackapi.BlockElement, 0, len(msg.Actions))
		for _, b := range msg.Actions {
			btn := slackapi.NewButtonBlockElement(
				ActionIDPrefix+string(b.Action),
				model.CallbackData(b.Action, b.AlertID),
				slackapi.NewTextBlockObject(slackapi.PlainTextType, b.Label, true, false),
			)
			switch b.Style {
			case outbound.ButtonPrimary:
				btn.Style = slackapi.StylePrimary
			case outbound.ButtonDanger:
				btn.Style = slackapi.StyleDanger
			}
			elements = append(elements, btn)
		}
		blocks = append(blocks, slackapi.NewActionBlock("zbxai_actions", elements...))
	}

	return blocks
}

// FallbackText is shown in notifications and by clients that cannot render blocks.
func FallbackText(msg outbound.Message) string {
	return clip(msg.Title, maxHeaderLen)
}

func markdown(text string) *slackapi.TextBlockObject {
	return slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
