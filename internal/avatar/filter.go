package avatar

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/llm"
)

// Decision is the outcome of a classification tier
type Decision string

const (
	Accept    Decision = "accept"
	Reject    Decision = "reject"
	LLMNeeded Decision = "llm_needed"
)

// Verdict carries a decision plus the rule or reason behind it
type Verdict struct {
	Decision Decision
	Reason   string
}

// Completer is the slice of the llm service the filter needs
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Filter screens prospects against the ideal customer profile. The quick
// tier is pure pattern matching; ambiguous profiles escalate to the LLM.
type Filter struct {
	mu    sync.RWMutex
	rules *ruleset
	llm   Completer
}

// New compiles the pattern set into a filter. llm may be nil, in which
// case ambiguous profiles resolve to reject.
func New(p Patterns, completer Completer) (*Filter, error) {
	rules, err := compile(p)
	if err != nil {
		return nil, err
	}
	return &Filter{rules: rules, llm: completer}, nil
}

// Reload swaps in a new pattern set atomically
func (f *Filter) Reload(p Patterns) error {
	rules, err := compile(p)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.rules = rules
	f.mu.Unlock()
	return nil
}

// Classify runs the pattern tiers over the combined profile text.
// Blacklist wins over whitelist; a whitelisted title accepts outright; a
// sector match alone is not enough to accept.
func (f *Filter) Classify(p domain.Profile) Verdict {
	f.mu.RLock()
	rules := f.rules
	f.mu.RUnlock()

	text := strings.ToLower(strings.TrimSpace(
		p.Headline + " " + p.JobTitle + " " + p.Company))

	switch {
	case anyMatch(text, rules.blacklistSectors):
		return Verdict{Reject, "blacklist_sector"}
	case anyMatch(text, rules.blacklistTitles):
		return Verdict{Reject, "blacklist_title"}
	case anyMatch(text, rules.blacklistKeywords):
		return Verdict{Reject, "blacklist_keyword"}
	}

	titleMatch := anyMatch(text, rules.whitelistTitles)
	sectorMatch := anyMatch(text, rules.whitelistSectors)

	switch {
	case titleMatch && sectorMatch:
		return Verdict{Accept, "whitelist_title_and_sector"}
	case titleMatch:
		return Verdict{Accept, "whitelist_title"}
	case sectorMatch:
		return Verdict{LLMNeeded, "sector_match_needs_title_validation"}
	}
	return Verdict{LLMNeeded, "no_clear_pattern"}
}

// Resolve classifies a profile to a final accept/reject. Pattern-decided
// profiles never touch the LLM; ambiguous ones do, and any LLM failure
// resolves to reject.
func (f *Filter) Resolve(ctx context.Context, p domain.Profile) Verdict {
	v := f.Classify(p)
	if v.Decision != LLMNeeded {
		return v
	}
	return f.resolveWithLLM(ctx, p)
}

const analysisSystemPrompt = `You qualify B2B prospects for a freelance developer selling workflow automation to agencies.

IDEAL CUSTOMER:
- CEO, founder, director, consultant, media buyer, copywriter, traffic manager, growth roles, product or project managers
- Sectors: marketing, web and design agencies, SaaS, tech, digital, communication, media
- Likely need: automation, client onboarding, internal tooling

REJECT:
- Real estate, accounting, tax, legal officers, construction
- AI and automation specialists (direct competitors)
- Job seekers ("open to opportunities", "open to work")
- Sectors with no obvious automation need

Decide whether the profile is a good prospect.`

type llmDecision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func (f *Filter) resolveWithLLM(ctx context.Context, p domain.Profile) Verdict {
	if f.llm == nil {
		return Verdict{Reject, "llm_unavailable"}
	}

	prompt := fmt.Sprintf(`Analyze this profile:

Headline: %s
Job Title: %s
Company: %s

Answer ONLY with JSON in this exact shape:
{"decision": "accept" or "reject", "reason": "short explanation (max 15 words)"}`,
		orNA(p.Headline), orNA(p.JobTitle), orNA(p.Company))

	raw, err := f.llm.Complete(ctx, llm.Request{
		System: analysisSystemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		log.Printf("avatar: llm analysis failed, rejecting: %v", err)
		return Verdict{Reject, "llm_error"}
	}

	var out llmDecision
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		log.Printf("avatar: unparseable llm verdict, rejecting: %v", err)
		return Verdict{Reject, "llm_error_bad_json"}
	}
	if out.Decision != string(Accept) && out.Decision != string(Reject) {
		return Verdict{Reject, "llm_error_invalid_decision"}
	}
	return Verdict{Decision(out.Decision), "llm_" + out.Reason}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
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
