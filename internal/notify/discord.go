package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Discord embed limits.
const (
	discordMaxTitle       = 256
	discordMaxDescription = 4096
)

// Embed colours keyed by alert severity.
const (
	colourAlert = 0xE74C3C
	colourGain  = 0x2ECC71
	colourInfo  = 0x3498DB
)

// DiscordSender delivers alerts to a Discord webhook as a single embed.
// Mentions are disabled so token symbols cannot ping the channel.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
	now        func() time.Time
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
	AllowedMentions struct {
		Parse []string `json:"parse"`
	} `json:"allowed_mentions"`
}

// NewDiscordSender creates a DiscordSender for webhookURL. username overrides
// the webhook's display name when set.
func NewDiscordSender(webhookURL, username string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Send posts one embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	payload := discordPayload{
		Username: d.username,
		Embeds: []discordEmbed{{
			Title:       truncateRunes(title, discordMaxTitle),
			Description: truncateRunes(message, discordMaxDescription),
			Color:       embedColour(title),
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	}
	payload.AllowedMentions.Parse = []string{}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	return postJSON(ctx, d.client, d.webhookURL, body, "discord")
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func embedColour(title string) int {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "profit"):
		return colourGain
	case strings.Contains(t, "loss"), strings.Contains(t, "fail"), strings.Contains(t, "error"):
		return colourAlert
	default:
		return colourInfo
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
