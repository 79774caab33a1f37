// Package notifications pushes operator-facing events to an ntfy topic.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelpress/internal/config"
)

const userAgent = "reelpress/0.1.0"

// Service defines the notification surface exposed to the dispatcher.
type Service interface {
	NotifyCycleStarted(ctx context.Context, ready int) error
	NotifyCycleCompleted(ctx context.Context, published, failed int, duration time.Duration) error
	NotifyPublished(ctx context.Context, account, title, manageURL string) error
	NotifyPublishFailed(ctx context.Context, account, title, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyCycleStarted(ctx context.Context, ready int) error {
	data := payload{
		title:   "Reelpress - Cycle Started",
		message: fmt.Sprintf("Dispatching %d ready records", ready),
		tags:    []string{"reelpress", "cycle", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCycleCompleted(ctx context.Context, published, failed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title, message string
	if failed == 0 {
		title = "Reelpress - Cycle Complete"
		message = fmt.Sprintf("Cycle complete: %d published in %s", published, durationText)
	} else {
		title = "Reelpress - Cycle Complete (with errors)"
		message = fmt.Sprintf("Cycle complete: %d published, %d failed in %s", published, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"reelpress", "cycle", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPublished(ctx context.Context, account, title, manageURL string) error {
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Published for %s: %s", account, title)
	if manageURL != "" {
		message = fmt.Sprintf("%s\n%s", message, manageURL)
	}
	data := payload{
		title:    "Reelpress - Published",
		message:  message,
		tags:     []string{"reelpress", "publish", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPublishFailed(ctx context.Context, account, title, reason string) error {
	title = strings.TrimSpace(title)
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Reelpress - Publish Failed",
		message:  fmt.Sprintf("Failed for %s: %s (%s)", account, title, reason),
		tags:     []string{"reelpress", "publish", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Reelpress - Error",
		message:  builder.String(),
		tags:     []string{"reelpress", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reelpress - Test",
		message:  "Notification system test",
		tags:     []string{"reelpress", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyCycleStarted(context.Context, int) error                        { return nil }
func (noopService) NotifyCycleCompleted(context.Context, int, int, time.Duration) error  { return nil }
func (noopService) NotifyPublished(context.Context, string, string, string) error        { return nil }
func (noopService) NotifyPublishFailed(context.Context, string, string, string) error    { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
