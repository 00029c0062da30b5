package alert

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient is the subset of the Slack API the notifier uses.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts operator alerts to a Slack channel as colored
// attachments.
type SlackNotifier struct {
	client    slackClient
	channelID string
}

// NewSlackNotifier builds a notifier for a bot token and channel.
func NewSlackNotifier(botToken, channelID string) (*SlackNotifier, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("alert: slack bot token and channel are required")
	}
	return &SlackNotifier{client: slackapi.New(botToken), channelID: channelID}, nil
}

func severityColor(severity string) string {
	switch severity {
	case SeverityError:
		return "#d32f2f"
	case SeverityWarning:
		return "#ffc107"
	default:
		return "#36a64f"
	}
}

func (n *SlackNotifier) Notify(ctx context.Context, a Alert) error {
	fields := []slackapi.AttachmentField{}
	if a.CallID != "" {
		fields = append(fields, slackapi.AttachmentField{Title: "Call", Value: a.CallID, Short: true})
	}
	if a.Business != "" {
		fields = append(fields, slackapi.AttachmentField{Title: "Business", Value: a.Business, Short: true})
	}

	attachment := slackapi.Attachment{
		Color:  severityColor(a.Severity),
		Title:  a.Title,
		Text:   a.Body,
		Fields: fields,
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channelID, slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("alert: slack post message: %w", err)
	}
	return nil
}
