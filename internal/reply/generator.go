package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"visadesk_backend/platform/config"
	"visadesk_backend/platform/logger"
)

// ErrDisabled is returned when no generation model is configured.
var ErrDisabled = errors.New("reply generation disabled")

// ComposeRequest carries the conversational context for one reply.
type ComposeRequest struct {
	ContactName   string
	ServiceIntent string
	LastInbound   string
	// Scripted is the flow-mandated content of the reply (the next question
	// or the wrap-up). The generator rephrases it naturally; it must never
	// change what is being asked.
	Scripted string
}

// Generator phrases scripted flow content with a generation model. It is
// strictly best-effort: every caller falls back to the scripted text when
// Compose fails or times out.
type Generator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
}

// NewGenerator creates the generator, or returns nil when generation is not
// configured. A nil *Generator is safe to call.
func NewGenerator(ctx context.Context, cfg config.GenAIConfig, log *logger.Logger) (*Generator, error) {
	if !cfg.IsGenAIEnabled() {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGenAIAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	return &Generator{
		client:  client,
		model:   cfg.GetGenAIModel(),
		timeout: cfg.GetGenAITimeout(),
		log:     log,
	}, nil
}

const systemPrompt = `You are a polite assistant for a visa and residency services company in the UAE.
Rephrase the scripted message below as one short, natural WhatsApp reply in the customer's language register.
Keep the same question or statement, do not add promises, prices, legal advice, or extra questions.
Reply with the message text only.`

// Compose returns the phrased reply text. The hard timeout comes from
// configuration; on timeout or any model error the caller uses the scripted
// fallback.
func (g *Generator) Compose(ctx context.Context, req ComposeRequest) (string, error) {
	if g == nil || g.client == nil {
		return "", ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")
	if req.ContactName != "" {
		fmt.Fprintf(&sb, "Customer name: %s\n", req.ContactName)
	}
	if req.ServiceIntent != "" {
		fmt.Fprintf(&sb, "Enquiry type: %s\n", req.ServiceIntent)
	}
	if req.LastInbound != "" {
		fmt.Fprintf(&sb, "Customer's last message: %s\n", req.LastInbound)
	}
	fmt.Fprintf(&sb, "Scripted message: %s\n", req.Scripted)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(sb.String()), nil)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty generation response")
	}
	// A runaway generation is worse than the scripted text.
	if len(text) > 1000 {
		return "", errors.New("generation response too long")
	}
	return text, nil
}
