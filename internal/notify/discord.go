// Package notify posts embeds and log lines to Discord webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/go-github/v57/github"
)

const (
	// ColorGreen matches Discord's built-in green.
	ColorGreen = 0x2ecc71

	// DefaultTimeout bounds every webhook call.
	DefaultTimeout = 5 * time.Second

	// maxDescription is Discord's embed description limit in characters.
	maxDescription = 4096
)

// Embed is a Discord message embed.
type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// Message is the body accepted by a Discord webhook.
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Discord sends notifications to a deploy webhook and a log webhook. An
// empty URL turns the corresponding calls into no-ops.
type Discord struct {
	webhookURL string
	logURL     string
	client     *http.Client
	logger     *slog.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// NewDiscord creates a Discord sink.
func NewDiscord(webhookURL, logURL string, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		webhookURL: webhookURL,
		logURL:     logURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Send posts msg to url.
func (d *Discord) Send(ctx context.Context, url string, msg Message) error {
	if url == "" {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return nil
}

// Deploy announces a redeploy triggered by commits of event.
func (d *Discord) Deploy(ctx context.Context, event *github.PushEvent, commits []*github.HeadCommit) error {
	embed := Embed{
		Title:       "Deploy",
		Description: describeCommits(event, commits),
		Color:       ColorGreen,
		URL:         event.GetCompare(),
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	return d.Send(ctx, d.webhookURL, Message{Embeds: []Embed{embed}})
}

// Started announces that the server came up.
func (d *Discord) Started(ctx context.Context, botName, version string) error {
	embed := Embed{
		Title:       "Deploy",
		Description: fmt.Sprintf("%s dashboard started (%s)", botName, version),
		Color:       ColorGreen,
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	return d.Send(ctx, d.webhookURL, Message{Embeds: []Embed{embed}})
}

// Log forwards text as a code-formatted line to the log webhook without
// blocking the caller. Failures are only written to the local log.
func (d *Discord) Log(text string) {
	if d.logURL == "" {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()

		msg := Message{Content: "`" + strings.ReplaceAll(text, "`", "'") + "`"}
		if err := d.Send(ctx, d.logURL, msg); err != nil {
			d.logger.Warn("Failed to forward log line", "error", err)
		}
	}()
}

// Wait blocks until every pending Log call has finished.
func (d *Discord) Wait() {
	d.wg.Wait()
}

func describeCommits(event *github.PushEvent, commits []*github.HeadCommit) string {
	repoURL := event.GetRepo().GetHTMLURL()

	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		id := c.GetID()
		short := id
		if len(short) > 7 {
			short = short[:7]
		}

		url := c.GetURL()
		if url == "" && repoURL != "" && id != "" {
			url = repoURL + "/commit/" + id
		}

		subject, _, _ := strings.Cut(c.GetMessage(), "\n")
		if url != "" {
			lines = append(lines, fmt.Sprintf("[`%s`](%s) %s", short, url, subject))
		} else {
			lines = append(lines, fmt.Sprintf("`%s` %s", short, subject))
		}
	}

	return truncate(strings.Join(lines, "\n"), maxDescription)
}

// truncate shortens s to at most limit characters, ending in "...", without
// splitting a multi-byte character.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	end, n := 0, 0
	for n < limit-3 {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
		n++
	}
	return s[:end] + "..."
}
