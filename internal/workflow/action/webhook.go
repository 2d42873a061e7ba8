package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/ledgerline-labs/ledgerline-go/internal/domain"
)

// WebhookAction delivers a JSON notification about the transition to an
// external endpoint. Config: url, method (default POST), headers (optional
// map), oauth2 (optional: token_url, client_id, client_secret, scopes) for
// client-credentials auth on the outbound call.
type WebhookAction struct {
	Client  *http.Client
	Timeout time.Duration
}

type webhookPayload struct {
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	PipelineID     string    `json:"pipeline_id"`
	TransitionID   string    `json:"transition_id"`
	TransitionCode string    `json:"transition_code"`
	FromStateID    string    `json:"from_state_id"`
	ToStateID      string    `json:"to_state_id"`
	Actor          string    `json:"actor"`
	Comment        string    `json:"comment,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (a *WebhookAction) Execute(ctx context.Context, inv Invocation, config domain.Metadata) error {
	url, err := configString(config, "url")
	if err != nil {
		return err
	}
	method := strings.ToUpper(configStringDefault(config, "method", http.MethodPost))

	body, err := json.Marshal(webhookPayload{
		EntityType:     inv.Entity.Type,
		EntityID:       inv.Entity.ID,
		PipelineID:     inv.EntityState.PipelineID,
		TransitionID:   inv.Transition.ID,
		TransitionCode: inv.Transition.Code,
		FromStateID:    inv.FromStateID,
		ToStateID:      inv.ToStateID,
		Actor:          inv.Actor,
		Comment:        inv.Comment,
		RequestID:      inv.RequestID,
		OccurredAt:     inv.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(inv.RequestID) != "" {
		req.Header.Set("X-Request-Id", inv.RequestID)
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(name, s)
			}
		}
	}

	client, err := a.client(ctx, config)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s %s: status %d", method, url, resp.StatusCode)
	}
	return nil
}

func (a *WebhookAction) client(ctx context.Context, config domain.Metadata) (*http.Client, error) {
	base := a.Client
	if base == nil {
		base = http.DefaultClient
	}
	raw, ok := config["oauth2"].(map[string]any)
	if !ok {
		return base, nil
	}

	oc := domain.Metadata(raw)
	tokenURL, err := configString(oc, "token_url")
	if err != nil {
		return nil, err
	}
	clientID, err := configString(oc, "client_id")
	if err != nil {
		return nil, err
	}
	clientSecret, err := configString(oc, "client_secret")
	if err != nil {
		return nil, err
	}
	cc := clientcredentials.Config{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
	if scopes, ok := oc["scopes"].([]any); ok {
		for _, s := range scopes {
			if scope, ok := s.(string); ok && strings.TrimSpace(scope) != "" {
				cc.Scopes = append(cc.Scopes, strings.TrimSpace(scope))
			}
		}
	}
	return cc.Client(ctx), nil
}
