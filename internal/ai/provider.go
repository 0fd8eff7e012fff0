package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ImagePart carries inline image data for vision-capable providers.
type ImagePart struct {
	Data     []byte
	MIMEType string
}

// Provider is a single generative model endpoint.
type Provider interface {
	// Name identifies the provider/model for logging and metadata.
	Name() string
	// Generate runs one prompt (optionally with an image) and returns the raw
	// model text.
	Generate(ctx context.Context, prompt string, image *ImagePart) (string, error)
}

// Pool is an ordered list of model providers for one task. Calls are tried
// sequentially and short-circuit on the first success. The pool is built once
// at startup and never mutated.
type Pool struct {
	providers []Provider
}

// NewPool creates a pool over an ordered provider list.
func NewPool(providers ...Provider) *Pool {
	return &Pool{providers: providers}
}

// Empty reports whether the pool has no providers configured.
func (p *Pool) Empty() bool {
	return p == nil || len(p.providers) == 0
}

// Generate invokes the providers in order with a per-call timeout. A
// retryable provider error (model not found, permission denied, unsupported)
// moves on to the next provider; a timeout is terminal for the whole pool so
// the caller can fall back to the next pipeline stage. Returns the model text
// and the name of the provider that produced it.
func (p *Pool) Generate(ctx context.Context, prompt string, image *ImagePart, timeout time.Duration) (string, string, error) {
	if p.Empty() {
		return "", "", errors.New("no model providers configured")
	}

	var lastErr error
	for _, provider := range p.providers {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		text, err := provider.Generate(callCtx, prompt, image)
		cancel()

		if err == nil {
			return text, provider.Name(), nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", "", fmt.Errorf("model %s timed out after %s: %w", provider.Name(), timeout, err)
		}
		lastErr = err
		if isRetryable(err) {
			log.Printf("[ModelPool] %s unavailable, trying next model: %v", provider.Name(), err)
			continue
		}
		return "", "", fmt.Errorf("model %s failed: %w", provider.Name(), err)
	}

	return "", "", fmt.Errorf("all model providers failed: %w", lastErr)
}

// isRetryable reports whether an error indicates the model itself is
// unavailable (rather than the request being bad), so the next provider in
// the pool should be tried.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"not found",
		"does not exist",
		"invalid argument",
		"unsupported",
		"publisher model",
		"permission denied",
		"forbidden",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ExtractJSONObject pulls a JSON object out of a model response, stripping
// markdown code fences and any prose around the outermost braces. Returns nil
// when no object can be located.
func ExtractJSONObject(response string) []byte {
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) >= 2 {
			text = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return []byte(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return []byte(text[start : end+1])
	}
	return nil
}
