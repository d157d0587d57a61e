package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider speaks the common initialize/verify REST shape
// (POST /transaction/initialize, GET /transaction/verify/{reference}).
type HTTPProvider struct {
	baseURL    string
	secretKey  string
	callback   string
	httpClient *http.Client
	log        *slog.Logger
}

var _ Provider = (*HTTPProvider)(nil)

func NewHTTPProvider(baseURL, secretKey, callbackURL string, timeout time.Duration, log *slog.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		secretKey:  secretKey,
		callback:   callbackURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (p *HTTPProvider) Name() string { return "http" }

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrUnknownReference
	}
	if resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, env.Message)
	}
	return json.Unmarshal(env.Data, out)
}

func (p *HTTPProvider) InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    req.Amount,
		"reference": req.Reference,
		"metadata":  req.Metadata,
	}
	if p.callback != "" {
		body["callback_url"] = p.callback
	}
	var charge Charge
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", body, &charge); err != nil {
		return nil, err
	}
	p.log.Info("payment charge initialized", "reference", req.Reference, "amount", req.Amount)
	return &charge, nil
}

func (p *HTTPProvider) VerifyPayment(ctx context.Context, reference string) (*Verification, error) {
	var v Verification
	if err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &v); err != nil {
		return nil, err
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	return &v, nil
}
