package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/llm"
)

// Completer is the slice of the llm service the pipeline needs
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Outcome is the result of running the pipeline on a conversation
type Outcome struct {
	Directive domain.StrategyDirective
	Reply     string // set only when the directive says reply
}

// Pipeline runs the two-stage conversation engine: a strategic pass
// decides what to do, a generation pass writes the message. Both stages
// share one llm service; the directive never outlives the call.
type Pipeline struct {
	llm Completer
}

func New(completer Completer) *Pipeline {
	return &Pipeline{llm: completer}
}

// Respond analyzes the conversation and, when the verdict is reply,
// generates the reply text. Conversations where we spoke last are
// skipped without consulting the model.
func (p *Pipeline) Respond(ctx context.Context, history []domain.Message, profile domain.Profile) (Outcome, error) {
	if len(history) == 0 || history[len(history)-1].SentBy == domain.SentByAccount {
		return Outcome{Directive: domain.StrategyDirective{
			ConversationAction: domain.ConversationSkip,
			ActionReason:       "last message is ours, waiting on the prospect",
		}}, nil
	}

	directive, err := p.Analyze(ctx, history, profile)
	if err != nil {
		return Outcome{}, err
	}
	if directive.ConversationAction != domain.ConversationReply {
		return Outcome{Directive: directive}, nil
	}

	reply, err := p.Generate(ctx, directive, history, profile)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Directive: directive, Reply: reply}, nil
}

// Analyze runs the strategic stage and parses its JSON directive
func (p *Pipeline) Analyze(ctx context.Context, history []domain.Message, profile domain.Profile) (domain.StrategyDirective, error) {
	raw, err := p.llm.Complete(ctx, llm.Request{
		Prompt: strategicPrompt(history, profile),
	})
	if err != nil {
		return domain.StrategyDirective{}, fmt.Errorf("strategic stage: %w", err)
	}

	var directive domain.StrategyDirective
	if err := json.Unmarshal([]byte(extractJSON(raw)), &directive); err != nil {
		return domain.StrategyDirective{}, fmt.Errorf("strategic stage: invalid directive json: %w", err)
	}
	if !directive.ConversationAction.Valid() {
		return domain.StrategyDirective{}, fmt.Errorf("strategic stage: unknown action %q", directive.ConversationAction)
	}
	directive.Normalize()
	return directive, nil
}

// Generate runs the generation stage under a directive
func (p *Pipeline) Generate(ctx context.Context, directive domain.StrategyDirective, history []domain.Message, profile domain.Profile) (string, error) {
	raw, err := p.llm.Complete(ctx, llm.Request{
		Prompt: generationPrompt(directive, history, profile),
	})
	if err != nil {
		return "", fmt.Errorf("generation stage: %w", err)
	}

	reply := strings.Trim(strings.TrimSpace(raw), `"'`)
	if reply == "" {
		return "", fmt.Errorf("generation stage: empty message")
	}
	return reply, nil
}

// extractJSON trims model chatter around the first top-level JSON object
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
