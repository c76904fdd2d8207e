package chat

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// wordTokenizer counts whitespace-separated words.
type wordTokenizer struct{}

func (wordTokenizer) Count(text string) int { return len(strings.Fields(text)) }

func sampleHistory() History {
	return History{
		SystemMessage("you are papo"),
		UserMessage("one two three"),
		AssistantMessage("four five"),
		UserMessage("six"),
		ToolMessage("get_current_time", `{"time":"now"}`),
		AssistantMessage("seven eight nine ten"),
	}
}

func TestWindowUnboundedReturnsFullHistory(t *testing.T) {
	h := sampleHistory()
	got := Window{Tokenizer: wordTokenizer{}}.Apply(h)
	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("window changed history (-want +got):\n%s", diff)
	}
	got[1] = UserMessage("mutated")
	if h[1].Content.Text != "one two three" {
		t.Fatalf("window output aliases input history")
	}
}

func TestWindowBudgets(t *testing.T) {
	h := sampleHistory()
	tests := []struct {
		name        string
		maxMessages int
		maxTokens   int
		want        History
	}{
		{
			// the unbounded token budget never runs out
			name:        "message budget only",
			maxMessages: 2,
			want:        h,
		},
		{
			name:      "token budget only",
			maxTokens: 5,
			want:      h,
		},
		{
			name:        "message budget tight, token budget roomy",
			maxMessages: 1,
			maxTokens:   100,
			want:        h,
		},
		{
			name:        "either budget with room keeps the message",
			maxMessages: 1,
			maxTokens:   7,
			// tokens: 4, 5, 6, 8 -> third message still fits the token budget
			want: History{h[0], h[3], h[4], h[5]},
		},
		{
			name:        "both exceeded on the newest message",
			maxMessages: 1,
			maxTokens:   1,
			// first message: count 1 <= 1 keeps it; second: count 2, tokens 5 -> stop
			want: History{h[0], h[5]},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window{MaxMessages: tt.maxMessages, MaxTokens: tt.maxTokens, Tokenizer: wordTokenizer{}}
			got := w.Apply(h)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected window (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWindowAlwaysKeepsSystemFirst(t *testing.T) {
	h := History{
		SystemMessage("persona"),
		UserMessage(strings.Repeat("word ", 50)),
		AssistantMessage(strings.Repeat("word ", 50)),
	}
	w := Window{MaxMessages: 1, MaxTokens: 1, Tokenizer: wordTokenizer{}}
	got := w.Apply(h)
	if len(got) == 0 || got[0].Role != RoleSystem {
		t.Fatalf("expected system message first, got %+v", got)
	}
	for _, m := range got[1:] {
		if m.Role == RoleSystem {
			t.Fatalf("system message duplicated in window")
		}
	}

	if diff := cmp.Diff(History{h[0], h[2]}, got); diff != "" {
		t.Fatalf("expected system plus the newest message (-want +got):\n%s", diff)
	}

	// one unbounded budget keeps everything even when the other is tight
	loose := Window{MaxMessages: 1, Tokenizer: wordTokenizer{}}.Apply(h)
	if diff := cmp.Diff(h, loose); diff != "" {
		t.Fatalf("expected the full history (-want +got):\n%s", diff)
	}
}

func TestWindowImagesCountZeroTokens(t *testing.T) {
	h := History{
		UserMessage("look", "https://img.example/a.png", "https://img.example/b.png"),
		AssistantMessage("nice"),
	}
	got := Window{MaxMessages: 1, MaxTokens: 2, Tokenizer: wordTokenizer{}}.Apply(h)
	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("image parts should not consume the token budget (-want +got):\n%s", diff)
	}
}

func TestEstimateTokenizer(t *testing.T) {
	tok := EstimateTokenizer{}
	if got := tok.Count(""); got != 0 {
		t.Fatalf("empty text: got %d", got)
	}
	if got := tok.Count("abcdefgh"); got != 2 {
		t.Fatalf("ascii text: got %d, want 2", got)
	}
	if got := tok.Count("你好"); got != 4 {
		t.Fatalf("non-ascii text: got %d, want 4", got)
	}
	if tok.Count("same input") != tok.Count("same input") {
		t.Fatalf("estimate is not deterministic")
	}
}

func TestDefaultTokenizerLoadsOffline(t *testing.T) {
	tok := DefaultTokenizer()
	if _, ok := tok.(*bpeTokenizer); !ok {
		t.Fatalf("expected the embedded cl100k_base ranks, got %T", tok)
	}
	if got := tok.Count("hello world"); got != 2 {
		t.Fatalf("hello world: got %d tokens, want 2", got)
	}
	if tok != DefaultTokenizer() {
		t.Fatalf("default tokenizer is not shared")
	}
}
