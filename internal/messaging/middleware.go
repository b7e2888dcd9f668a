package messaging

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"visadesk_backend/platform/config"
)

const signatureHeader = "X-Webhook-Signature"

// WebhookSignatureMiddleware verifies the shared-secret HMAC on webhook
// deliveries: hex(HMAC-SHA256(secret, rawBody)) in X-Webhook-Signature.
// With no secret configured (development) verification is skipped.
func WebhookSignatureMiddleware(cfg config.WebhookConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := cfg.GetWebhookSecret()
		if secret == "" {
			c.Next()
			return
		}

		provided := strings.TrimPrefix(c.GetHeader(signatureHeader), "sha256=")
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing webhook signature"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(provided))) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
			return
		}

		c.Next()
	}
}
