package alert

import (
	"fmt"
	"log"

	"github.com/zulandar/afterhours/internal/config"
)

// FromConfig selects the notifier for the configured platform. An empty
// platform falls back to the process log.
func FromConfig(cfg config.AlertConfig, logger *log.Logger) (Notifier, error) {
	switch cfg.Platform {
	case "slack":
		return NewSlackNotifier(cfg.Slack.BotToken, cfg.Slack.Channel)
	case "discord":
		return NewDiscordNotifier(cfg.Discord.BotToken, cfg.Discord.ChannelID)
	case "":
		return &LogNotifier{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("alert: unsupported platform %q", cfg.Platform)
	}
}
