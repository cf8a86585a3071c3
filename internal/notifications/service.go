package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
)

const userAgent = "Murmur-Go/0.1.0"

// Service defines the notification surface exposed to daemon components.
type Service interface {
	NotifyMemoDetected(ctx context.Context, title string) error
	NotifyTranscriptionCompleted(ctx context.Context, title string, duration time.Duration) error
	NotifyMemoReady(ctx context.Context, title, generatedTitle string) error
	NotifyJobFailed(ctx context.Context, title, jobKind, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
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
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled:  cfg.Notifications,
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
	enabled  config.Notifications
}

func (n *ntfyService) NotifyMemoDetected(ctx context.Context, title string) error {
	if !n.enabled.MemoDetected {
		return nil
	}
	data := payload{
		title:   "Murmur - Memo Detected",
		message: fmt.Sprintf("New memo in inbox: %s", strings.TrimSpace(title)),
		tags:    []string{"murmur", "memo", "detected"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTranscriptionCompleted(ctx context.Context, title string, duration time.Duration) error {
	if !n.enabled.Transcription {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Murmur - Transcribed",
		message: fmt.Sprintf("Transcription complete: %s (%s)", strings.TrimSpace(title), duration),
		tags:    []string{"murmur", "transcription", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyMemoReady(ctx context.Context, title, generatedTitle string) error {
	if !n.enabled.MemoReady {
		return nil
	}
	message := fmt.Sprintf("Memo ready: %s", strings.TrimSpace(title))
	if generatedTitle = strings.TrimSpace(generatedTitle); generatedTitle != "" && generatedTitle != title {
		message = fmt.Sprintf("Memo ready: %s\nTitled: %s", strings.TrimSpace(title), generatedTitle)
	}
	data := payload{
		title:    "Murmur - Ready",
		message:  message,
		tags:     []string{"murmur", "memo", "ready"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, title, jobKind, reason string) error {
	if !n.enabled.Errors {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Murmur - Job Failed",
		message:  fmt.Sprintf("%s job failed for %s: %s", jobKind, strings.TrimSpace(title), reason),
		tags:     []string{"murmur", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.enabled.Errors {
		return nil
	}
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
		title:    "Murmur - Error",
		message:  builder.String(),
		tags:     []string{"murmur", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Murmur - Test",
		message:  "Notification system test",
		tags:     []string{"murmur", "test"},
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

func (noopService) NotifyMemoDetected(context.Context, string) error                        { return nil }
func (noopService) NotifyTranscriptionCompleted(context.Context, string, time.Duration) error { return nil }
func (noopService) NotifyMemoReady(context.Context, string, string) error                   { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string) error           { return nil }
func (noopService) NotifyError(context.Context, error, string) error                        { return nil }
func (noopService) TestNotification(context.Context) error                                  { return nil }
