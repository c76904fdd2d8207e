package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lojasmm/papo/internal/chat"
)

// DefaultMaxToolIterations bounds the completion calls made for one turn.
const DefaultMaxToolIterations = 5

// Outcome tags how a run terminated.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeFailed
	OutcomeUnknownTool
	OutcomeLoopExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeUnknownTool:
		return "unknown_tool"
	case OutcomeLoopExhausted:
		return "tool_loop_exhausted"
	default:
		return "failed"
	}
}

type state int

const (
	stateAwaitingModel state = iota
	stateExecutingTool
	stateDone
)

// Result is the terminal value of one run.
type Result struct {
	Reply      chat.Message
	Outcome    Outcome
	Iterations int
}

type AgentConfig struct {
	Model         string
	SystemPrompt  string
	Temperature   *float32
	MaxTokens     *int
	Window        chat.Window
	MaxIterations int
}

// Agent drives the tool-call loop for one user's history.
type Agent struct {
	completer Completer
	tools     *Registry
	cfg       AgentConfig
}

func NewAgent(c Completer, tools *Registry, cfg AgentConfig) *Agent {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxToolIterations
	}
	if tools == nil {
		tools = NewRegistry()
	}
	return &Agent{completer: c, tools: tools, cfg: cfg}
}

// Run answers the last message in user.History. It appends tool results and
// the final assistant message to the history as it goes and never persists;
// on failure the history keeps whatever was appended before the failure.
func (a *Agent) Run(ctx context.Context, user *chat.User) (Result, error) {
	var (
		st     = stateAwaitingModel
		call   *FunctionCall
		iters  int
		result Result
	)

	for st != stateDone {
		switch st {
		case stateAwaitingModel:
			if iters == a.cfg.MaxIterations {
				return Result{Outcome: OutcomeLoopExhausted, Iterations: iters},
					fmt.Errorf("%w after %d iterations", ErrToolLoopExhausted, iters)
			}
			iters++

			user.History.EnsureSystem(a.cfg.SystemPrompt)
			cand, err := a.complete(ctx, user)
			if err != nil {
				return Result{Outcome: OutcomeFailed, Iterations: iters}, err
			}

			if cand.Call != nil {
				call = cand.Call
				st = stateExecutingTool
				continue
			}

			reply := chat.AssistantMessage(NormalizeNewlines(cand.Message.Content.PlainText()))
			user.History.Append(reply)
			result = Result{Reply: reply, Outcome: OutcomeDone, Iterations: iters}
			st = stateDone

		case stateExecutingTool:
			if _, ok := a.tools.Get(call.Name); !ok {
				return Result{Outcome: OutcomeUnknownTool, Iterations: iters},
					fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
			}

			log.Printf("agent: calling tool %s for %s", call.Name, user.ID)
			out, err := a.tools.Execute(ctx, call.Name, ParseArgs(call.Arguments))
			if err != nil {
				return Result{Outcome: OutcomeFailed, Iterations: iters}, err
			}
			resultJSON, err := json.Marshal(out)
			if err != nil {
				resultJSON = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
			}
			user.History.Append(chat.ToolMessage(call.Name, string(resultJSON)))
			call = nil
			st = stateAwaitingModel
		}
	}
	return result, nil
}

func (a *Agent) complete(ctx context.Context, user *chat.User) (Candidate, error) {
	resp, err := a.completer.Complete(ctx, Request{
		Model:       a.cfg.Model,
		Messages:    a.cfg.Window.Apply(user.History),
		Tools:       a.tools.Schemas(),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return Candidate{}, err
	}
	if len(resp.Candidates) == 0 {
		return Candidate{}, ErrEmptyChoices
	}

	first := resp.Candidates[0]
	finish := first.FinishReason
	if finish == "" {
		finish = "<none>"
	}
	log.Printf("agent: resp id=%s model=%s finish=%s prompt=%d completion=%d total=%d user=%s",
		resp.ID, resp.Model, finish, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens, user.ID)
	return first, nil
}

// NormalizeNewlines turns literal backslash-n sequences into line breaks.
// Applying it to already normalized text changes nothing.
func NormalizeNewlines(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}
