package alert

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession is the subset of discordgo the notifier uses.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts operator alerts to a Discord channel as embeds.
type DiscordNotifier struct {
	sess      discordSession
	channelID string
}

// NewDiscordNotifier builds a notifier for a bot token and channel.
func NewDiscordNotifier(botToken, channelID string) (*DiscordNotifier, error) {
	if botToken == "" || channelID == "" {
		return nil, fmt.Errorf("alert: discord bot token and channel id are required")
	}
	dg, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("alert: create discord session: %w", err)
	}
	return &DiscordNotifier{sess: dg, channelID: channelID}, nil
}

func severityColorInt(severity string) int {
	switch severity {
	case SeverityError:
		return 0xd32f2f
	case SeverityWarning:
		return 0xffc107
	default:
		return 0x36a64f
	}
}

func (n *DiscordNotifier) Notify(ctx context.Context, a Alert) error {
	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		Description: a.Body,
		Color:       severityColorInt(a.Severity),
	}
	if a.CallID != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Call", Value: a.CallID, Inline: true})
	}
	if a.Business != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Business", Value: a.Business, Inline: true})
	}

	if _, err := n.sess.ChannelMessageSendEmbed(n.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("alert: discord send embed: %w", err)
	}
	return nil
}
