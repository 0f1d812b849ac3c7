package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mediation-escrow/backend/internal/events"
	"go.uber.org/zap"
)

// NotifyClient forwards mediation events to the external notification service.
type NotifyClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
	maxRetries uint64
}

func NewNotifyClient(baseURL string, log *zap.Logger) *NotifyClient {
	return &NotifyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log:        log,
		maxRetries: 3,
	}
}

type notifyPayload struct {
	Type             string         `json:"type"`
	RecipientUserIDs []string       `json:"recipient_user_ids"`
	RelatedEntityID  string         `json:"related_entity_id"`
	Params           map[string]any `json:"params,omitempty"`
}

// Forward posts one event. 5xx responses and transport errors are retried; 4xx are not.
func (c *NotifyClient) Forward(ctx context.Context, evt events.Event) error {
	p := notifyPayload{
		Type:            evt.Type,
		RelatedEntityID: evt.RelatedEntityID.String(),
		Params:          evt.Params,
	}
	for _, id := range evt.RecipientUserIDs {
		p.RecipientUserIDs = append(p.RecipientUserIDs, id.String())
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/notify", c.baseURL)
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn("notification service unavailable", zap.String("type", evt.Type), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("notification service returned %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("notification service returned %d: %s", resp.StatusCode, string(b)))
		}
		return nil
	}, policy)
}
