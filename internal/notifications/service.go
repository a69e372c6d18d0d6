package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ldseq/internal/config"
)

const userAgent = "ldseq/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyRunStarted(ctx context.Context, sampleCount int) error
	NotifyRunCompleted(ctx context.Context, completed, failed int, duration time.Duration) error
	NotifySampleFailed(ctx context.Context, base, stageName string, err error) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		runStarted:   cfg.Notifications.RunStarted,
		runCompleted: cfg.Notifications.RunCompleted,
		errors:       cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	runStarted   bool
	runCompleted bool
	errors       bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, sampleCount int) error {
	if !n.runStarted {
		return nil
	}
	data := payload{
		title:   "ldseq - Run Started",
		message: fmt.Sprintf("Started processing %d sample pairs", sampleCount),
		tags:    []string{"ldseq", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, completed, failed int, duration time.Duration) error {
	if !n.runCompleted {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title string
	var message string
	if failed == 0 {
		title = "ldseq - Run Complete"
		message = fmt.Sprintf("✅ Run complete: %d samples processed in %s", completed, durationText)
	} else {
		title = "ldseq - Run Complete (with errors)"
		message = fmt.Sprintf("Run complete: %d succeeded, %d failed in %s", completed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"ldseq", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySampleFailed(ctx context.Context, base, stageName string, err error) error {
	if !n.errors {
		return nil
	}
	base = strings.TrimSpace(base)
	stageName = strings.TrimSpace(stageName)
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "ldseq - Sample Failed",
		message:  fmt.Sprintf("❌ %s failed at %s: %s", base, stageName, detail),
		tags:     []string{"ldseq", "sample", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
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
		title:    "ldseq - Error",
		message:  builder.String(),
		tags:     []string{"ldseq", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "ldseq - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"ldseq", "test"},
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

func (noopService) NotifyRunStarted(context.Context, int) error                       { return nil }
func (noopService) NotifyRunCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifySampleFailed(context.Context, string, string, error) error   { return nil }
func (noopService) NotifyError(context.Context, error, string) error                  { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
