package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"photo-transform-go/config"

	log "github.com/sirupsen/logrus"
)

// Log-Felder für die Inferenz-Komponente
var logFields = log.Fields{
	"component": "inference",
}

// maxErrorBody begrenzt, wie viel einer Fehlerantwort in die Meldung übernommen wird
const maxErrorBody = 2048

// Error ist der einzige Fehlertyp des Clients. Er trägt den Endpunkt und die
// Meldung des Backends; ein Erfolg wird nie teilweise befüllt zurückgegeben.
type Error struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference %s failed (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("inference %s failed: %s", e.Endpoint, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout meldet, ob der Aufruf an seinem Zeitbudget gescheitert ist
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Client implementiert die JSON-über-HTTP Kommunikation mit dem KI-Backend.
// Er wiederholt nie selbstständig; das entscheidet der Aufrufer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option konfiguriert den Client
type Option func(*Client)

// WithHTTPClient ersetzt den verwendeten http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient erstellt einen neuen Client für die übergebene Backend-Konfiguration
func NewClient(cfg config.InferenceConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("inference base url is empty")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid inference base url %q: %w", cfg.URL, err)
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Call führt genau einen Round-Trip aus: payload wird als JSON an endpoint
// gesendet, die Antwort nach out dekodiert. Ein timeout <= 0 bedeutet, dass
// nur der Kontext des Aufrufers gilt.
func (c *Client) Call(ctx context.Context, endpoint string, payload, out any, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Endpoint: endpoint, Message: "failed to encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Endpoint: endpoint, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &Error{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	log.WithFields(logFields).Debugf("POST %s returned %d in %s", endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(bodyBytes),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

// Ping prüft, ob das Backend erreichbar ist
func (c *Client) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach inference backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithFields(logFields).Warnf("Inference health check failed with status %d", resp.StatusCode)
		return false, nil
	}
	return true, nil
}

// upstreamMessage holt die Fehlermeldung aus einer Backend-Antwort.
// Flask-Dienste liefern {"error": ...}, andere {"message": ...} oder Klartext.
func upstreamMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}
