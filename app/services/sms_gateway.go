package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/relaymark/courier/config"
	"github.com/relaymark/courier/models"
)

// HTTPSMSGateway is a bearer-token JSON SMS/MMS gateway client. One instance
// per configured provider; the gateway name comes from configuration so the
// same client code serves every vendor that speaks this shape.
type HTTPSMSGateway struct {
	name   string
	cfg    config.SMSProviderConfig
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewHTTPSMSGateway(name string, cfg config.SMSProviderConfig) *HTTPSMSGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSMSGateway{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPSMSGateway) Name() string { return g.name }

// Send submits one SMS/MMS to the gateway. The idempotency key rides in a
// header so a replayed cycle dedupes on the provider side.
func (g *HTTPSMSGateway) Send(ctx context.Context, req SendRequest) (SendOutcome, error) {
	if req.Channel != models.ChannelSMS && req.Channel != models.ChannelMMS {
		return SendOutcome{}, fmt.Errorf("sms gateway %s cannot carry channel %s", g.name, req.Channel)
	}

	token, err := g.getToken(ctx)
	if err != nil {
		return SendOutcome{}, err
	}

	payload := struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Body      string `json:"body"`
		MediaURL  string `json:"mediaUrl,omitempty"`
	}{
		Sender:    g.cfg.SourceNumber,
		Recipient: req.Recipient,
		Body:      req.Body,
		MediaURL:  req.MediaURL,
	}
	b, _ := json.Marshal(payload)

	url := g.cfg.APIDomain + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return SendOutcome{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return SendOutcome{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendOutcome{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"errorCode"`
			Message string `json:"description"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return SendOutcome{}, &SendError{Code: apiErr.Code, Message: apiErr.Message}
		}
		return SendOutcome{}, &SendError{
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: fmt.Sprintf("gateway http status: %d", resp.StatusCode),
		}
	}

	var out struct {
		ServerID  string  `json:"serverId"`
		Cost      float64 `json:"cost"`
		ErrorCode *string `json:"errorCode"`
		Desc      *string `json:"description"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return SendOutcome{}, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if out.ErrorCode != nil && *out.ErrorCode != "" {
		msg := ""
		if out.Desc != nil {
			msg = *out.Desc
		}
		return SendOutcome{}, &SendError{Code: *out.ErrorCode, Message: msg}
	}
	if out.ServerID == "" {
		return SendOutcome{}, errors.New("gateway accepted the message but returned no server id")
	}

	return SendOutcome{ExternalID: out.ServerID, CostAmount: out.Cost}, nil
}

// getToken fetches and caches the gateway OAuth token, refreshing one minute
// before expiry
func (g *HTTPSMSGateway) getToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.token != "" && time.Now().Before(g.tokenExpiry.Add(-time.Minute)) {
		return g.token, nil
	}

	url := fmt.Sprintf("%s/auth/token?username=%s&password=%s&grant_type=password",
		g.cfg.APIDomain, g.cfg.Username, g.cfg.Password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gateway token http status: %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("empty access_token")
	}

	g.token = out.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return g.token, nil
}
