package alert

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	slackapi "github.com/slack-go/slack"

	"github.com/zulandar/afterhours/internal/config"
)

type fakeSlackClient struct {
	channel string
	opts    [][]slackapi.MsgOption
	err     error
}

func (f *fakeSlackClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	f.channel = channelID
	f.opts = append(f.opts, options)
	return "", "", f.err
}

func TestSlackNotifier(t *testing.T) {
	client := &fakeSlackClient{}
	n := &SlackNotifier{client: client, channelID: "C123"}

	err := n.Notify(context.Background(), Alert{
		Severity: SeverityError,
		Title:    "Dispatch exhausted",
		Body:     "No acknowledgment after cutoff",
		CallID:   "call-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.channel != "C123" {
		t.Errorf("channel = %s, want C123", client.channel)
	}
	if len(client.opts) != 1 {
		t.Errorf("posted %d messages, want 1", len(client.opts))
	}
}

func TestSlackNotifier_Error(t *testing.T) {
	n := &SlackNotifier{client: &fakeSlackClient{err: errors.New("channel_not_found")}, channelID: "C123"}
	if err := n.Notify(context.Background(), Alert{Title: "x"}); err == nil {
		t.Error("expected error from failed post")
	}
}

type fakeDiscordSession struct {
	channel string
	embeds  []*discordgo.MessageEmbed
	err     error
}

func (f *fakeDiscordSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.embeds = append(f.embeds, embed)
	return nil, f.err
}

func TestDiscordNotifier(t *testing.T) {
	sess := &fakeDiscordSession{}
	n := &DiscordNotifier{sess: sess, channelID: "987"}

	err := n.Notify(context.Background(), Alert{
		Severity: SeverityWarning,
		Title:    "Call needs review",
		Body:     "No business matched",
		CallID:   "call-2",
		Business: "unknown",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.channel != "987" {
		t.Errorf("channel = %s, want 987", sess.channel)
	}
	if len(sess.embeds) != 1 {
		t.Fatalf("sent %d embeds, want 1", len(sess.embeds))
	}
	embed := sess.embeds[0]
	if embed.Title != "Call needs review" {
		t.Errorf("title = %s", embed.Title)
	}
	if len(embed.Fields) != 2 {
		t.Errorf("fields = %d, want 2", len(embed.Fields))
	}
	if embed.Color != 0xffc107 {
		t.Errorf("color = %x, want warning yellow", embed.Color)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: log.New(&buf, "", 0)}

	if err := n.Notify(context.Background(), Alert{
		Severity: SeverityInfo, Title: "Recovered", CallID: "call-3",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Recovered") || !strings.Contains(out, "call-3") {
		t.Errorf("log output = %q", out)
	}
}

func TestFromConfig(t *testing.T) {
	n, err := FromConfig(config.AlertConfig{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := n.(*LogNotifier); !ok {
		t.Errorf("empty platform should yield LogNotifier, got %T", n)
	}

	n, err = FromConfig(config.AlertConfig{
		Platform: "slack",
		Slack:    config.SlackConfig{BotToken: "xoxb-1", Channel: "C1"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := n.(*SlackNotifier); !ok {
		t.Errorf("got %T, want SlackNotifier", n)
	}

	if _, err := FromConfig(config.AlertConfig{Platform: "pager"}, nil); err == nil {
		t.Error("expected error for unsupported platform")
	}

	if _, err := FromConfig(config.AlertConfig{Platform: "slack"}, nil); err == nil {
		t.Error("expected error for slack without token")
	}
}
