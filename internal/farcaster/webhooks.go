package farcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// Webhook describes a registered webhook. The list endpoint has shipped
// several field spellings over time; UnmarshalJSON accepts them all.
type Webhook struct {
	ID        string
	Title     string
	TargetURL string
	Active    bool
}

func (w *Webhook) UnmarshalJSON(raw []byte) error {
	var fields struct {
		WebhookID string `json:"webhook_id"`
		ID        string `json:"id"`
		UID       string `json:"uid"`
		Title     string `json:"title"`
		Name      string `json:"name"`
		TargetURL string `json:"target_url"`
		URL       string `json:"url"`
		Active    *bool  `json:"active"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	w.ID = firstNonEmpty(fields.WebhookID, fields.ID, fields.UID)
	w.Title = firstNonEmpty(fields.Title, fields.Name)
	w.TargetURL = strings.TrimSpace(firstNonEmpty(fields.TargetURL, fields.URL))
	// Default to active if the field is missing.
	w.Active = fields.Active == nil || *fields.Active
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// MentionsWebhookName is the title used when registering the mentions webhook.
const MentionsWebhookName = "CastPipe Mentions Webhook"

var mentionsWebhookTitle = regexp.MustCompile(`(?i)castpipe mentions webhook`)

// CreateMentionsWebhook registers a webhook that fires on casts mentioning
// the bot's FID.
func (c *Client) CreateMentionsWebhook(ctx context.Context, targetURL string) (Webhook, error) {
	req := map[string]interface{}{
		"name": MentionsWebhookName,
		"url":  targetURL,
		"subscription": map[string]interface{}{
			"cast.created": map[string]interface{}{
				"mentioned_fids": []int64{c.fid},
			},
		},
	}
	var resp struct {
		Webhook Webhook `json:"webhook"`
		Message string  `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v2/farcaster/webhook", req, &resp); err != nil {
		slog.Error("Client.CreateMentionsWebhook failed", "error", err, "target_url", targetURL)
		return Webhook{}, err
	}
	if resp.Webhook.ID == "" && !strings.Contains(strings.ToLower(resp.Message), "webhook created") {
		return Webhook{}, fmt.Errorf("webhook creation did not report success: %s", resp.Message)
	}
	slog.Info("Client.CreateMentionsWebhook succeeded", "webhook_id", resp.Webhook.ID, "target_url", targetURL)
	return resp.Webhook, nil
}

// ListWebhooks returns all registered webhooks.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	var resp struct {
		Webhooks []Webhook `json:"webhooks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v2/farcaster/webhook/list", nil, &resp); err != nil {
		slog.Error("Client.ListWebhooks failed", "error", err)
		return nil, err
	}
	return resp.Webhooks, nil
}

// DeleteWebhook removes a webhook by id.
func (c *Client) DeleteWebhook(ctx context.Context, id string) error {
	req := map[string]string{"webhook_id": id}
	if err := c.doJSON(ctx, http.MethodDelete, "/v2/farcaster/webhook", req, nil); err != nil {
		slog.Error("Client.DeleteWebhook failed", "error", err, "webhook_id", id)
		return err
	}
	slog.Info("Client.DeleteWebhook succeeded", "webhook_id", id)
	return nil
}

// CleanupResult reports what CleanupWebhooks kept and removed.
type CleanupResult struct {
	Preserved *Webhook  `json:"preserved,omitempty"`
	Deleted   []Webhook `json:"deleted"`
	Failed    []Webhook `json:"failed,omitempty"`
}

// CleanupWebhooks keeps exactly one active webhook matching targetURL and
// deletes the other active or mentions-titled webhooks. If no webhook matches
// the target URL, nothing is deleted.
func (c *Client) CleanupWebhooks(ctx context.Context, targetURL string) (CleanupResult, error) {
	targetURL = strings.TrimRight(strings.TrimSpace(targetURL), ")")
	webhooks, err := c.ListWebhooks(ctx)
	if err != nil {
		return CleanupResult{}, err
	}

	var keep []Webhook
	var remove []Webhook
	for _, wh := range webhooks {
		if wh.ID == "" {
			continue
		}
		switch {
		case wh.TargetURL == targetURL && wh.Active:
			keep = append(keep, wh)
		case mentionsWebhookTitle.MatchString(wh.Title) || wh.Active:
			remove = append(remove, wh)
		}
	}

	// Nothing matches the target URL: do nothing destructive.
	if len(keep) == 0 {
		slog.Info("Client.CleanupWebhooks: no active webhook matches target URL, not deleting anything", "target_url", targetURL)
		return CleanupResult{}, nil
	}

	preserved := keep[0]
	result := CleanupResult{Preserved: &preserved}
	for _, wh := range append(keep[1:], remove...) {
		if wh.ID == preserved.ID {
			continue
		}
		if err := c.DeleteWebhook(ctx, wh.ID); err != nil {
			result.Failed = append(result.Failed, wh)
			continue
		}
		result.Deleted = append(result.Deleted, wh)
	}
	slog.Info("Client.CleanupWebhooks done", "preserved", preserved.ID, "deleted", len(result.Deleted), "failed", len(result.Failed))
	return result, nil
}
