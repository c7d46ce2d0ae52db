package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/pkg/modelhttp"
)

// Generator produces an answer conditioned on the evidence set. The prompt
// mandates [PMID: x] citation markers; the validator checks them afterwards.
type Generator interface {
	Generate(ctx context.Context, question string, evidence []domain.EvidenceItem, temperature float32) (string, error)
}

// ChatClient is the model-gateway surface the generator needs.
type ChatClient interface {
	Chat(ctx context.Context, opts modelhttp.ChatOpts, messages []modelhttp.ChatMessage) (string, int, error)
}

// GenerateOptions configures the gateway-backed generator.
type GenerateOptions struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultGenerateOptions returns the reference generation settings.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   1024,
		Timeout:     30 * time.Second,
	}
}

// GenHandle is the lazily-initialized process-wide generator.
type GenHandle struct {
	opts GenerateOptions
	dial func() (ChatClient, error)

	once   sync.Once
	client ChatClient
	err    error
}

// NewGenHandle creates a generator handle; dial runs at most once.
func NewGenHandle(opts GenerateOptions, dial func() (ChatClient, error)) *GenHandle {
	return &GenHandle{opts: opts, dial: dial}
}

// NewGatewayGenHandle wires a GenHandle to a modelhttp client.
func NewGatewayGenHandle(opts GenerateOptions, gatewayURL, apiKey string) *GenHandle {
	return NewGenHandle(opts, func() (ChatClient, error) {
		return modelhttp.New(gatewayURL,
			modelhttp.WithAPIKey(apiKey),
			modelhttp.WithTimeout(opts.Timeout),
		), nil
	})
}

// Generate implements Generator. A failed or timed-out completion is a hard
// failure: there is no fallback to an unvalidated answer.
func (h *GenHandle) Generate(ctx context.Context, question string, evidence []domain.EvidenceItem, temperature float32) (string, error) {
	h.once.Do(func() {
		h.client, h.err = h.dial()
	})
	if h.err != nil {
		return "", fmt.Errorf("rag: init generator: %w: %v", domain.ErrGenerationUnavailable, h.err)
	}

	if temperature <= 0 {
		temperature = h.opts.Temperature
	}

	genCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	reply, _, err := h.client.Chat(genCtx, modelhttp.ChatOpts{
		Model:       h.opts.Model,
		Temperature: temperature,
		MaxTokens:   h.opts.MaxTokens,
	}, []modelhttp.ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildUserPrompt(question, buildContext(evidence))},
	})
	if err != nil {
		return "", fmt.Errorf("rag: generate: %w: %v", domain.ErrGenerationUnavailable, err)
	}
	return reply, nil
}
