// Package whatsapp is the outbound send transport: a thin client for a
// gowa-style WhatsApp gateway. All failures come back as *SendError so the
// dispatch guard can classify them.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"visadesk_backend/platform/config"
	"visadesk_backend/platform/logger"
	"visadesk_backend/platform/phone"
)

type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Results struct {
		MessageID string `json:"message_id"`
	} `json:"results"`
}

// NewClient builds the gateway client, or nil when no gateway is configured.
func NewClient(cfg config.WhatsAppConfig, log *logger.Logger) *Client {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Send delivers one message and returns the provider-assigned message id.
// Errors are always *SendError.
func (c *Client) Send(ctx context.Context, toAddress string, message string) (string, error) {
	if c == nil {
		return "", &SendError{Class: ClassAuth, Message: "whatsapp transport not configured"}
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(toAddress), "+")
	if normalized == "" {
		return "", &SendError{Class: ClassAuth, Message: "invalid destination address"}
	}

	payload := gowaRequest{
		Phone:   normalized,
		Message: message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &SendError{Class: ClassTransient, Message: "marshal payload: " + err.Error()}
	}

	url := fmt.Sprintf("%s/send/message", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", &SendError{Class: ClassTransient, Message: err.Error()}
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(c.apiKey))
	}
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The request may have reached the gateway before the failure.
		return "", &SendError{Class: ClassTransient, Message: err.Error(), Ambiguous: true}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &SendError{
			Class:      classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(data)),
		}
	}
	if readErr != nil {
		// Delivered, but the response with the message id was lost.
		return "", &SendError{Class: ClassTransient, Message: readErr.Error(), Ambiguous: true}
	}

	var parsed gowaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		c.log.Warn("whatsapp response not parseable", "error", err)
	}

	c.log.Info("whatsapp sent via gowa", "phone", normalized, "providerMessageId", parsed.Results.MessageID)
	return parsed.Results.MessageID, nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
