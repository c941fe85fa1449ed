package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"warden/internal/config"
)

const userAgent = "Warden-Go/0.1.0"

// Event enumerates the notification-worthy moments in the system.
type Event string

const (
	EventDaemonStarted       Event = "daemon_started"
	EventDaemonStopped       Event = "daemon_stopped"
	EventApprovalPending     Event = "approval_pending"
	EventItemRejected        Event = "item_rejected"
	EventExecutionFailed     Event = "execution_failed"
	EventUnknownOutcome      Event = "unknown_outcome"
	EventProcessRestarted    Event = "process_restarted"
	EventProcessLaunchFailed Event = "process_launch_failed"
)

// Payload carries event-specific fields used to render the message.
type Payload map[string]string

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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
	}
}

// NewNop returns a Service that drops every event.
func NewNop() Service {
	return noopService{}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventDaemonStarted:
		return message{
			title: "Warden - Started",
			body:  "Supervisor is up, watching the vault",
			tags:  []string{"warden", "daemon", "started"},
		}, true
	case EventDaemonStopped:
		return message{
			title: "Warden - Stopped",
			body:  "Supervisor shut down",
			tags:  []string{"warden", "daemon", "stopped"},
		}, true
	case EventApprovalPending:
		subject := get("subject")
		if subject == "" {
			subject = get("item")
		}
		return message{
			title:    "Warden - Approval Needed",
			body:     fmt.Sprintf("Awaiting your decision: %s", subject),
			tags:     []string{"warden", "approval", "pending"},
			priority: "high",
		}, true
	case EventItemRejected:
		reason := get("reason")
		if reason == "" {
			reason = "unspecified"
		}
		return message{
			title: "Warden - Rejected",
			body:  fmt.Sprintf("Rejected %s: %s", get("item"), reason),
			tags:  []string{"warden", "rejected"},
		}, true
	case EventExecutionFailed:
		return message{
			title:    "Warden - Execution Failed",
			body:     fmt.Sprintf("Action failed for %s: %s", get("item"), get("error")),
			tags:     []string{"warden", "executor", "failed"},
			priority: "high",
		}, true
	case EventUnknownOutcome:
		return message{
			title:    "Warden - Unknown Outcome",
			body:     fmt.Sprintf("Item %s was mid-execution during a crash. Verify the side effect before re-queueing.", get("item")),
			tags:     []string{"warden", "executor", "review"},
			priority: "high",
		}, true
	case EventProcessRestarted:
		return message{
			title: "Warden - Process Restarted",
			body:  fmt.Sprintf("Process %s died and was restarted (attempt %s)", get("process"), get("attempt")),
			tags:  []string{"warden", "supervisor", "restarted"},
		}, true
	case EventProcessLaunchFailed:
		return message{
			title:    "Warden - Launch Failed",
			body:     fmt.Sprintf("Process %s failed to launch: %s", get("process"), get("error")),
			tags:     []string{"warden", "supervisor", "failed"},
			priority: "high",
		}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
