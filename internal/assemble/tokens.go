package assemble

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/agentgate/pkg/oai"
)

// Estimator counts tokens for usage reporting when the runtime does not
// report totals itself.
type Estimator struct {
	tokenizer *tiktoken.Tiktoken
}

// NewEstimator creates an Estimator for the given model name.
func NewEstimator(model string) (*Estimator, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
	}
	return &Estimator{tokenizer: enc}, nil
}

// Count returns the token count of a single string.
func (e *Estimator) Count(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// Messages estimates the prompt size of a message list, with a small
// per-message overhead for role framing.
func (e *Estimator) Messages(messages []oai.Message) int {
	total := 0
	for _, m := range messages {
		total += e.Count(m.Content) + 4
	}
	return total
}
