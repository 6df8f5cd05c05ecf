package mailhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/ShipAlert/internal/integrations/notify"
	"github.com/pkg/errors"
)

const providerName = "mailhttp"

// Client — HTTP-клиент email-провайдера (transactional mail API).
type Client struct {
	baseURL   string
	apiKey    string
	fromEmail string
	httpc     *http.Client
}

func New(baseURL, apiKey, fromEmail string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9200"
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		fromEmail: fromEmail,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendReq struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

type sendResp struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (c *Client) SendEmail(ctx context.Context, p notify.EmailPayload) error {
	if p.To == "" {
		return notify.Permanent(providerName, "empty recipient email")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/send"

	body, err := json.Marshal(sendReq{From: c.fromEmail, To: p.To, Subject: p.Subject, HTML: p.Body})
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return notify.Transient(providerName, "http: %v", err)
	}
	defer resp.Body.Close()

	var r sendResp
	_ = json.NewDecoder(resp.Body).Decode(&r)

	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5:
		return notify.Transient(providerName, "http %d: %s", resp.StatusCode, r.Error)
	default:
		return notify.Permanent(providerName, "http %d: %s", resp.StatusCode, r.Error)
	}
}
