package smshttp

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

const providerName = "smshttp"

// Client — HTTP-клиент SMS-шлюза (JSON API в духе Twilio-подобных шлюзов).
type Client struct {
	baseURL string
	apiKey  string
	from    string
	httpc   *http.Client
}

func New(baseURL, apiKey, from string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendReq struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type sendResp struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (c *Client) SendSMS(ctx context.Context, p notify.SmsPayload) error {
	if p.To == "" {
		return notify.Permanent(providerName, "empty recipient phone")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = "/v1/messages"

	body, err := json.Marshal(sendReq{From: c.from, To: p.To, Text: p.Text})
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
		// Сетевая ошибка: исход неизвестен, пусть очередь ретраит.
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
		// 4xx кроме 429: кривой номер/payload, ретрай не поможет.
		return notify.Permanent(providerName, "http %d: %s", resp.StatusCode, r.Error)
	}
}
