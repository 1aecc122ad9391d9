// Package chat posts run notifications to a Google Chat webhook.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lwai/onboarding/internal/pkg/httpretry"
)

// detailLimit caps how many per-account lines a summary message shows.
const detailLimit = 10

// SuccessDetail is one successful account in the completion summary.
type SuccessDetail struct {
	Email   string
	AppName string
}

// FailureDetail is one failed account in the completion summary.
type FailureDetail struct {
	Email  string
	Reason string
}

// RunSummary carries the completion message's numbers and detail lines.
type RunSummary struct {
	TotalProcessed  int
	AccountsCreated int
	AccountsFailed  int
	Successes       []SuccessDetail
	Failures        []FailureDetail
	Elapsed         time.Duration
}

// SuccessRate returns the account creation rate as a percentage of the
// processed total; zero processed yields zero.
func (s RunSummary) SuccessRate() float64 {
	if s.TotalProcessed == 0 {
		return 0
	}
	return float64(s.AccountsCreated) / float64(s.TotalProcessed) * 100
}

// Notifier posts messages to one webhook, optionally threading them.
type Notifier struct {
	webhookURL string
	threadKey  string
	httpClient httpretry.HTTPDoer
	now        func() time.Time
}

// NewNotifier creates a notifier. An empty webhook URL disables all
// notifications.
func NewNotifier(webhookURL, threadKey string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		threadKey:  threadKey,
		httpClient: httpretry.NewRetryClient(&http.Client{Timeout: 10 * time.Second}, 3),
		now:        time.Now,
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (n *Notifier) SetHTTPClient(client httpretry.HTTPDoer) {
	n.httpClient = client
}

// SetNow replaces the clock (useful for testing).
func (n *Notifier) SetNow(now func() time.Time) {
	n.now = now
}

// NotifyStart announces a run and how many students it will process.
func (n *Notifier) NotifyStart(ctx context.Context, total int) error {
	msg := fmt.Sprintf("🚀 *Onboarding Automation - Started*\n📅 *Started:* %s\n👥 *Students to Process:* %d\n\n⏳ Processing in progress...",
		n.now().Format("2006-01-02 15:04:05"), total)
	return n.Post(ctx, msg)
}

// NotifyComplete posts the run summary.
func (n *Notifier) NotifyComplete(ctx context.Context, s RunSummary) error {
	return n.Post(ctx, formatSummary(s, n.now()))
}

// NotifyError reports a run-level failure.
func (n *Notifier) NotifyError(ctx context.Context, errMsg string) error {
	msg := fmt.Sprintf("🚨 *Onboarding Automation - ERROR*\n📅 *Time:* %s\n\n❌ *Error Details:*\n%s",
		n.now().Format("2006-01-02 15:04:05"), errMsg)
	return n.Post(ctx, msg)
}

// Post sends one text message to the webhook. A notifier without a
// webhook URL silently does nothing.
func (n *Notifier) Post(ctx context.Context, text string) error {
	if n.webhookURL == "" {
		return nil
	}

	payload := map[string]interface{}{"text": text}
	if n.threadKey != "" {
		payload["thread"] = map[string]string{"name": n.threadKey}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post chat message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat webhook: HTTP %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func formatSummary(s RunSummary, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🤖 *Onboarding Automation - Summary*\n📅 *Completed:* %s\n\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "📊 *Overall Results:*\n")
	fmt.Fprintf(&b, "• Total Processed: %d\n", s.TotalProcessed)
	fmt.Fprintf(&b, "• ✅ Successful: %d\n", s.AccountsCreated)
	fmt.Fprintf(&b, "• ❌ Failed: %d\n", s.AccountsFailed)
	fmt.Fprintf(&b, "• 📈 Success Rate: %.1f%%", s.SuccessRate())
	if s.Elapsed > 0 {
		fmt.Fprintf(&b, "\n• ⏱️ Execution Time: %s", s.Elapsed.Round(time.Second))
	}

	if len(s.Successes) > 0 {
		fmt.Fprintf(&b, "\n\n✅ *Successful Accounts (%d):*", len(s.Successes))
		for i, d := range s.Successes {
			if i == detailLimit {
				fmt.Fprintf(&b, "\n• ... and %d more", len(s.Successes)-detailLimit)
				break
			}
			fmt.Fprintf(&b, "\n• %s → %s", d.Email, d.AppName)
		}
	}

	if len(s.Failures) > 0 {
		fmt.Fprintf(&b, "\n\n❌ *Failed Accounts (%d):*", len(s.Failures))
		for i, d := range s.Failures {
			if i == detailLimit {
				fmt.Fprintf(&b, "\n• ... and %d more", len(s.Failures)-detailLimit)
				break
			}
			fmt.Fprintf(&b, "\n• %s: %s", d.Email, d.Reason)
		}
	}

	return b.String()
}
