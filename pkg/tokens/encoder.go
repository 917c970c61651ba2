package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder represents a token encoder for a specific model
type Encoder interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
	Count(text string) (int, error)
}

// TiktokenEncoder implements Encoder using tiktoken-go
type TiktokenEncoder struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEncoder creates a new tiktoken encoder. The BPE ranks are
// fetched on first use, so this can fail offline.
func NewTiktokenEncoder(encodingName string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encodingName, err)
	}
	return &TiktokenEncoder{encoding: encoding}, nil
}

// NewTiktokenEncoderForModel picks the encoding tiktoken associates with model.
func NewTiktokenEncoderForModel(model string) (*TiktokenEncoder, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for model %s: %w", model, err)
	}
	return &TiktokenEncoder{encoding: encoding}, nil
}

// Encode converts text to tokens
func (e *TiktokenEncoder) Encode(text string) ([]int, error) {
	return e.encoding.Encode(text, nil, nil), nil
}

// Decode converts tokens to text
func (e *TiktokenEncoder) Decode(tokens []int) (string, error) {
	return e.encoding.Decode(tokens), nil
}

// Count returns the number of tokens in text
func (e *TiktokenEncoder) Count(text string) (int, error) {
	return len(e.encoding.Encode(text, nil, nil)), nil
}

// MockEncoder implements Encoder with simple character-based counting
type MockEncoder struct{}

// NewMockEncoder creates a new mock encoder
func NewMockEncoder() *MockEncoder {
	return &MockEncoder{}
}

// Encode converts text to mock tokens (character-based)
func (e *MockEncoder) Encode(text string) ([]int, error) {
	count := len(text) / 4
	if count < 1 && len(text) > 0 {
		count = 1
	}
	tokens := make([]int, count)
	for i := 0; i < count; i++ {
		tokens[i] = i
	}
	return tokens, nil
}

// Decode converts mock tokens to text (not implemented)
func (e *MockEncoder) Decode(tokens []int) (string, error) {
	return "", fmt.Errorf("mock decoder not implemented")
}

// Count returns the number of tokens in text (~4 characters per token)
func (e *MockEncoder) Count(text string) (int, error) {
	count := len(text) / 4
	if count < 1 {
		count = 1
	}
	return count, nil
}

// EncoderRegistry manages model-to-encoder mappings. Encoders for models
// without an explicit registration are resolved through tiktoken once and
// cached; when that fails the fallback is used.
type EncoderRegistry struct {
	mu       sync.Mutex
	encoders map[string]Encoder
	fallback Encoder
	resolve  bool
}

// NewEncoderRegistry creates a registry that only uses registered encoders
// and the mock fallback.
func NewEncoderRegistry() *EncoderRegistry {
	return &EncoderRegistry{
		encoders: make(map[string]Encoder),
		fallback: NewMockEncoder(),
	}
}

// NewResolvingRegistry also asks tiktoken for unknown models.
func NewResolvingRegistry() *EncoderRegistry {
	r := NewEncoderRegistry()
	r.resolve = true
	return r
}

// RegisterEncoder registers an encoder for a model
func (r *EncoderRegistry) RegisterEncoder(modelID string, encoder Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[modelID] = encoder
}

// GetEncoder returns the encoder for a model, or fallback if not found
func (r *EncoderRegistry) GetEncoder(modelID string) Encoder {
	r.mu.Lock()
	defer r.mu.Unlock()

	if encoder, exists := r.encoders[modelID]; exists {
		return encoder
	}
	var encoder Encoder = r.fallback
	if r.resolve {
		if enc, err := NewTiktokenEncoderForModel(modelID); err == nil {
			encoder = enc
		}
	}
	r.encoders[modelID] = encoder
	return encoder
}

// CountTokens counts tokens in text using the appropriate encoder
func (r *EncoderRegistry) CountTokens(modelID, text string) (int, error) {
	return r.GetEncoder(modelID).Count(text)
}

// CountTokensInMessages counts tokens in a list of messages
func (r *EncoderRegistry) CountTokensInMessages(modelID string, messages []string) (int, error) {
	total := 0
	for _, message := range messages {
		count, err := r.CountTokens(modelID, message)
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

// TruncateLines drops trailing lines of text until it fits in maxTokens.
// The first line is always kept.
func TruncateLines(enc Encoder, text string, maxTokens int) (string, error) {
	lines := strings.Split(text, "\n")
	for len(lines) > 1 {
		n, err := enc.Count(strings.Join(lines, "\n"))
		if err != nil {
			return "", err
		}
		if n <= maxTokens {
			break
		}
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n"), nil
}
