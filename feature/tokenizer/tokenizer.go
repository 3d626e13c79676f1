package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hupe1980/agentgraph/core"
)

// Tokenizer counts the tokens of a text.
type Tokenizer interface {
	CountTokens(text string) int
}

// Whitespace approximates tokens by whitespace separated words.
type Whitespace struct{}

// CountTokens implements Tokenizer.
func (Whitespace) CountTokens(text string) int { return len(strings.Fields(text)) }

// DefaultEncoding is used for models tiktoken does not know.
const DefaultEncoding = "cl100k_base"

var (
	encodings   = make(map[string]*tiktoken.Tiktoken)
	encodingsMu sync.RWMutex
)

// Tiktoken counts tokens with the BPE encoding of an OpenAI model. Other
// models are approximated with DefaultEncoding.
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewTiktoken creates a tokenizer for modelID. Encodings are cached per
// model. The first use of an encoding may download its ranks.
func NewTiktoken(modelID string) (*Tiktoken, error) {
	encodingsMu.RLock()
	enc, ok := encodings[modelID]
	encodingsMu.RUnlock()

	if !ok {
		var err error
		enc, err = tiktoken.EncodingForModel(modelID)
		if err != nil {
			enc, err = tiktoken.GetEncoding(DefaultEncoding)
			if err != nil {
				return nil, fmt.Errorf("failed to get encoding: %w", err)
			}
		}

		encodingsMu.Lock()
		encodings[modelID] = enc
		encodingsMu.Unlock()
	}

	return &Tiktoken{encoding: enc, model: modelID}, nil
}

// Model returns the model the encoding was selected for.
func (t *Tiktoken) Model() string { return t.model }

// CountTokens implements Tokenizer.
func (t *Tiktoken) CountTokens(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Per message overhead of the chat format: <|start|>role<|message|>...<|end|>.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// CountMessages counts the tokens of msgs including the chat format
// overhead.
func CountMessages(t Tokenizer, msgs []core.Message) int {
	if len(msgs) == 0 {
		return 0
	}

	total := tokensPerReply
	for _, m := range msgs {
		total += tokensPerMessage
		total += t.CountTokens(string(m.Role()))
		total += t.CountTokens(m.Content())
	}

	return total
}

// CountText sums the tokens of the message contents without overhead.
func CountText(t Tokenizer, msgs []core.Message) int {
	total := 0
	for _, m := range msgs {
		total += t.CountTokens(m.Content())
	}
	return total
}
