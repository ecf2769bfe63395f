// Package notify holds the concrete notification channels. Each channel
// is independent: one failing never blocks another, and every send is
// bounded by the caller's context.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Jim-purch/jim-resume/internal/common"
	"github.com/Jim-purch/jim-resume/internal/domain"
)

// WebhookChannel posts a JSON summary of the report to a generic webhook.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates the webhook channel. The client timeout is a
// backstop; per-send deadlines come from the context.
func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

// webhookPayload is the wire shape: the report summary plus the featured
// project list, with the markdown rendering attached for rich receivers.
type webhookPayload struct {
	Subject     string             `json:"subject"`
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Summary     domain.ReportStats `json:"summary"`
	Featured    []featuredProject  `json:"featured"`
	Added       int                `json:"added"`
	Changed     int                `json:"changed"`
	Removed     int                `json:"removed"`
	Markdown    string             `json:"markdown"`
}

type featuredProject struct {
	Name            string  `json:"name"`
	ProjectType     string  `json:"project_type"`
	CombinedScore   float64 `json:"combined_score"`
	Complexity      float64 `json:"complexity"`
	BusinessValue   float64 `json:"business_value"`
	AICollaboration bool    `json:"ai_collaboration"`
}

// Send posts the payload with a short retry. Any non-2xx response is a
// delivery error.
func (c *WebhookChannel) Send(ctx context.Context, n *domain.Notification) error {
	if c.url == "" {
		return common.NewError(common.ErrCodeConfiguration, "webhook URL is empty")
	}

	payload := webhookPayload{
		Subject:     n.Subject,
		RunID:       n.Report.RunID,
		GeneratedAt: n.Report.GeneratedAt,
		Summary:     n.Report.Stats,
		Added:       len(n.Report.Delta.Added),
		Changed:     len(n.Report.Delta.Changed),
		Removed:     len(n.Report.Delta.Removed),
		Markdown:    n.Markdown,
	}
	for _, e := range n.Report.FeaturedEntries() {
		payload.Featured = append(payload.Featured, featuredProject{
			Name:            e.Repo.FullName,
			ProjectType:     e.Analysis.ProjectType,
			CombinedScore:   e.Analysis.CombinedScore,
			Complexity:      e.Analysis.Complexity,
			BusinessValue:   e.Analysis.BusinessValue,
			AICollaboration: e.Analysis.AICollaboration,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return common.WrapError(common.ErrCodeChannelDelivery, "marshal webhook payload", err)
	}

	err = common.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, postErr := c.client.Do(req)
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return nil
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(500*time.Millisecond),
	)
	if err != nil {
		return common.WrapError(common.ErrCodeChannelDelivery, "webhook send failed", err)
	}
	return nil
}
