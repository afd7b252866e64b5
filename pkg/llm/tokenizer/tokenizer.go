// Package tokenizer estimates prompt sizes for logging and metrics.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/entrhq/scout/pkg/types"
)

var (
	encoder     *tiktoken.Tiktoken
	encoderOnce sync.Once
	encoderErr  error
)

// perMessageOverhead approximates role and framing tokens per message.
const perMessageOverhead = 4

func initEncoder() error {
	encoderOnce.Do(func() {
		// Embedded BPE ranks; the default loader downloads them on first use.
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
		// cl100k_base covers the GPT-4 family; other providers get a close estimate.
		encoder, encoderErr = tiktoken.GetEncoding("cl100k_base")
	})
	return encoderErr
}

// Warm loads the encoding ahead of the first session.
func Warm() error {
	return initEncoder()
}

// CountTokens counts the tokens in text, falling back to an estimate when
// the encoding is unavailable.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := initEncoder(); err != nil {
		return estimate(text)
	}
	return len(encoder.Encode(text, nil, nil))
}

// CountMessages counts the tokens of a conversation including per-message overhead.
func CountMessages(messages []*types.Message) int {
	total := 2
	for _, msg := range messages {
		total += perMessageOverhead
		total += CountTokens(msg.Content)
		for _, call := range msg.ToolCalls {
			total += CountTokens(call.Name) + CountTokens(string(call.Arguments))
		}
	}
	return total
}

// CountDefinitions counts the tokens the tool declarations add to a request.
func CountDefinitions(defs []types.ToolDefinition) int {
	total := 0
	for _, def := range defs {
		total += CountTokens(def.Name) + CountTokens(def.Description)
		for name := range def.Parameters {
			total += CountTokens(name)
		}
	}
	return total
}

func estimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
