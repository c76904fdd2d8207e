package chat

import (
	"log"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Unbounded marks a window budget that can never be exceeded.
const Unbounded = 0

// Tokenizer counts tokens in a piece of text. Implementations must be deterministic.
type Tokenizer interface {
	Count(text string) int
}

// Window trims a history to the slice sent with each completion request.
//
// The system message is always kept. Remaining messages are walked from newest
// to oldest, and a message is kept while either budget still has room; the walk
// stops at the first message that exceeds both. An Unbounded budget always has
// room, so unless both budgets are set the history is returned whole.
type Window struct {
	MaxMessages int
	MaxTokens   int
	Tokenizer   Tokenizer
}

func (w Window) Apply(history History) History {
	if w.MaxMessages == Unbounded || w.MaxTokens == Unbounded {
		out := make(History, len(history))
		copy(out, history)
		return out
	}

	var system *Message
	rest := history
	if len(history) > 0 && history[0].Role == RoleSystem {
		system = &history[0]
		rest = history[1:]
	}

	tok := w.Tokenizer
	if tok == nil {
		tok = DefaultTokenizer()
	}

	start := len(rest)
	count, tokens := 0, 0
	for i := len(rest) - 1; i >= 0; i-- {
		count++
		tokens += messageTokens(tok, rest[i])

		if count > w.MaxMessages && tokens > w.MaxTokens {
			break
		}
		start = i
	}

	out := make(History, 0, len(rest)-start+1)
	if system != nil {
		out = append(out, *system)
	}
	return append(out, rest[start:]...)
}

// messageTokens counts text only; image parts contribute nothing.
func messageTokens(tok Tokenizer, m Message) int {
	if !m.Content.IsMulti() {
		return tok.Count(m.Content.Text)
	}
	n := 0
	for _, p := range m.Content.Parts {
		if p.Kind == PartText {
			n += tok.Count(p.Value)
		}
	}
	return n
}

var (
	defaultTokenizer     Tokenizer
	defaultTokenizerOnce sync.Once
)

// DefaultTokenizer returns a cl100k_base tokenizer, or a rune-class estimate
// when the BPE ranks cannot be loaded. Ranks come from the embedded offline
// loader, never from the network.
func DefaultTokenizer() Tokenizer {
	defaultTokenizerOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Printf("chat: tiktoken unavailable, using estimate: %v", err)
			defaultTokenizer = EstimateTokenizer{}
			return
		}
		defaultTokenizer = &bpeTokenizer{enc: enc}
	})
	return defaultTokenizer
}

type bpeTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (t *bpeTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimateTokenizer approximates ~4 ASCII chars per token and 2 tokens per non-ASCII rune.
type EstimateTokenizer struct{}

func (EstimateTokenizer) Count(text string) int {
	ascii, other := 0, 0
	for _, r := range text {
		if r <= 127 {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+3)/4 + other*2
}
