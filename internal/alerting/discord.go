package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wishlist-pricewatch/internal/chart"
)

const (
	discordColorGreen = 0x57F287
	chartFilename     = "price_history.png"
)

// DiscordOptions configure the webhook notifier.
type DiscordOptions struct {
	WebhookURL  string
	Username    string
	Timeout     time.Duration
	AttachChart bool
}

// DiscordNotifier posts alerts to a Discord channel webhook.
type DiscordNotifier struct {
	opts   DiscordOptions
	client *http.Client
	logger zerolog.Logger
}

// NewDiscordNotifier builds a Discord notifier.
func NewDiscordNotifier(opts DiscordOptions, logger zerolog.Logger) *DiscordNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DiscordNotifier{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_discord").Logger(),
	}
}

type discordPayload struct {
	Username    string              `json:"username,omitempty"`
	Embeds      []discordEmbed      `json:"embeds"`
	Attachments []discordAttachment `json:"attachments,omitempty"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Image       *discordImage  `json:"image,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordImage struct {
	URL string `json:"url"`
}

type discordAttachment struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
}

// Notify sends one embed, with the history chart attached when available.
func (n *DiscordNotifier) Notify(ctx context.Context, alert Alert) error {
	payload := n.buildPayload(alert)

	var png []byte
	if n.opts.AttachChart && alert.History != nil {
		img, err := n.renderChart(ctx, alert)
		if err != nil {
			n.logger.Warn().Err(err).Str("item_id", alert.ItemID).Msg("chart unavailable, sending without image")
		} else {
			png = img
			payload.Embeds[0].Image = &discordImage{URL: "attachment://" + chartFilename}
			payload.Attachments = []discordAttachment{{ID: 0, Filename: chartFilename}}
		}
	}

	body, contentType, err := encodeDiscordBody(payload, png)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.opts.WebhookURL, body)
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	n.logger.Info().Str("item_id", alert.ItemID).
		Str("reasons", alert.Reasons.String()).
		Bool("chart", png != nil).
		Msg("alert sent (discord)")
	return nil
}

func (n *DiscordNotifier) buildPayload(alert Alert) discordPayload {
	embed := discordEmbed{
		Title:       headline(alert),
		Description: fmt.Sprintf("**%s** is now **%s** on Steam!", alert.DisplayName(), alert.Price.StringFixed(2)),
		URL:         alert.StoreURL(),
		Color:       discordColorGreen,
	}
	if lines := reasonLines(alert); len(lines) > 0 {
		embed.Fields = append(embed.Fields, discordField{Name: "Why", Value: strings.Join(lines, "\n")})
	}
	embed.Fields = append(embed.Fields, discordField{
		Name:  "Link",
		Value: fmt.Sprintf("[Check it out here](%s)", alert.StoreURL()),
	})
	if !alert.ObservedAt.IsZero() {
		embed.Timestamp = alert.ObservedAt.UTC().Format(time.RFC3339)
	}

	return discordPayload{Username: n.opts.Username, Embeds: []discordEmbed{embed}}
}

func (n *DiscordNotifier) renderChart(ctx context.Context, alert Alert) ([]byte, error) {
	points, err := alert.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	var buf bytes.Buffer
	if err := chart.RenderHistory(&buf, "Price History for "+alert.DisplayName(), points); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeDiscordBody(payload discordPayload, png []byte) (io.Reader, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal discord payload: %w", err)
	}
	if png == nil {
		return bytes.NewReader(data), "application/json", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("payload_json", string(data)); err != nil {
		return nil, "", fmt.Errorf("write payload_json: %w", err)
	}
	part, err := writer.CreateFormFile("files[0]", chartFilename)
	if err != nil {
		return nil, "", fmt.Errorf("create chart part: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return nil, "", fmt.Errorf("write chart part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

var _ Notifier = (*DiscordNotifier)(nil)
