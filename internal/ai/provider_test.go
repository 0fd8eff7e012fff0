package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, prompt string, image *ImagePart) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestPoolFirstSuccessShortCircuits(t *testing.T) {
	first := &fakeProvider{name: "gemini/a", text: "ok"}
	second := &fakeProvider{name: "gemini/b", text: "never"}
	pool := NewPool(first, second)

	text, name, err := pool.Generate(context.Background(), "prompt", nil, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "gemini/a", name)
	assert.Equal(t, 0, second.calls)
}

func TestPoolRetryableErrorMovesToNext(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "model not found", err: errors.New("model gemini-x not found")},
		{name: "permission denied", err: errors.New("permission denied for model")},
		{name: "unsupported", err: errors.New("unsupported content type")},
		{name: "publisher model", err: errors.New("publisher model is not available")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := &fakeProvider{name: "gemini/a", err: tt.err}
			second := &fakeProvider{name: "openai/b", text: "fallback"}
			pool := NewPool(first, second)

			text, name, err := pool.Generate(context.Background(), "prompt", nil, time.Second)

			require.NoError(t, err)
			assert.Equal(t, "fallback", text)
			assert.Equal(t, "openai/b", name)
		})
	}
}

func TestPoolNonRetryableErrorStops(t *testing.T) {
	first := &fakeProvider{name: "gemini/a", err: errors.New("request body too large")}
	second := &fakeProvider{name: "openai/b", text: "never"}
	pool := NewPool(first, second)

	_, _, err := pool.Generate(context.Background(), "prompt", nil, time.Second)

	require.Error(t, err)
	assert.Equal(t, 0, second.calls)
}

func TestPoolTimeoutIsTerminal(t *testing.T) {
	first := &fakeProvider{name: "gemini/a", err: context.DeadlineExceeded}
	second := &fakeProvider{name: "openai/b", text: "never"}
	pool := NewPool(first, second)

	_, _, err := pool.Generate(context.Background(), "prompt", nil, time.Second)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, second.calls, "a timeout must not cascade through the pool")
}

func TestPoolAllProvidersFailed(t *testing.T) {
	first := &fakeProvider{name: "gemini/a", err: errors.New("model a not found")}
	second := &fakeProvider{name: "gemini/b", err: errors.New("model b does not exist")}
	pool := NewPool(first, second)

	_, _, err := pool.Generate(context.Background(), "prompt", nil, time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all model providers failed")
}

func TestPoolEmpty(t *testing.T) {
	var nilPool *Pool
	assert.True(t, nilPool.Empty())
	assert.True(t, NewPool().Empty())

	_, _, err := NewPool().Generate(context.Background(), "prompt", nil, time.Second)
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare object", input: `{"a":1}`, expected: `{"a":1}`},
		{name: "fenced json", input: "```json\n{\"a\":1}\n```", expected: `{"a":1}`},
		{name: "fenced without language", input: "```\n{\"a\":1}\n```", expected: `{"a":1}`},
		{name: "prose around object", input: "Here is the result: {\"a\":1} hope it helps", expected: `{"a":1}`},
		{name: "multiline object", input: "{\n  \"a\": 1\n}", expected: "{\n  \"a\": 1\n}"},
		{name: "no object", input: "sorry, I cannot read this receipt", expected: ""},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONObject(tt.input)
			if tt.expected == "" {
				assert.Nil(t, got)
			} else {
				assert.Equal(t, tt.expected, string(got))
			}
		})
	}
}
