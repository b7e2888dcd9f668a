package messaging

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type webhookCfg struct {
	secret string
}

func (c webhookCfg) GetWebhookSecret() string { return c.secret }

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignatureMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	const secret = "test-secret"
	const body = `{"events":[]}`

	tests := []struct {
		name       string
		secret     string
		signature  string
		wantStatus int
	}{
		{
			name:       "valid signature",
			secret:     secret,
			signature:  sign(secret, body),
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid signature with sha256 prefix",
			secret:     secret,
			signature:  "sha256=" + sign(secret, body),
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong signature",
			secret:     secret,
			signature:  sign("other-secret", body),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing signature",
			secret:     secret,
			signature:  "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no secret configured skips verification",
			secret:     "",
			signature:  "",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			engine.POST("/webhook/whatsapp", WebhookSignatureMiddleware(webhookCfg{secret: tt.secret}), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewBufferString(body))
			if tt.signature != "" {
				req.Header.Set(signatureHeader, tt.signature)
			}

			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestWebhookSignatureMiddlewarePreservesBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	const secret = "test-secret"
	const body = `{"events":[{"messageId":"wamid.1"}]}`

	var seen string
	engine := gin.New()
	engine.POST("/webhook/whatsapp", WebhookSignatureMiddleware(webhookCfg{secret: secret}), func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		seen = string(raw)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewBufferString(body))
	req.Header.Set(signatureHeader, sign(secret, body))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if seen != body {
		t.Errorf("handler body = %q, want %q", seen, body)
	}
}
