package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// HTTPDispatcher wywołuje zdalną funkcję process-import (POST JSON z sekretem).
// Dispatch nie czeka na odpowiedź; porażkę dostarczenia zgłasza OnFailure.
type HTTPDispatcher struct {
	BaseURL string
	Secret  string
	Client  *http.Client
	Log     zerolog.Logger
	// OnFailure dostaje zlecenia, których nie udało się dostarczyć (np. oznacza batch failed).
	OnFailure func(m Message, err error)
}

func NewHTTPDispatcher(baseURL, secret string, log zerolog.Logger) *HTTPDispatcher {
	return &HTTPDispatcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Secret:  secret,
		Client:  &http.Client{Timeout: 15 * time.Minute},
		Log:     log.With().Str("component", "queue.http").Logger(),
	}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	// odłączamy się od kontekstu żądania: zadanie ma przeżyć jego zakończenie
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := d.Send(bg, body); err != nil {
			d.Log.Error().Err(err).Str("batch_id", m.BatchID).Msg("process-import invocation failed")
			if d.OnFailure != nil {
				d.OnFailure(m, err)
			}
		}
	}()
	return nil
}

// Send wykonuje jedno wywołanie synchronicznie.
func (d *HTTPDispatcher) Send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/process-import", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(WebhookSecretHeader, d.Secret)

	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("process-import: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("process-import: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
