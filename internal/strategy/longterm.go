package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prospectra/outreach-orchestrator/internal/llm"
)

// LongTermRequest is a prospect's explicit ask to be recontacted later
type LongTermRequest struct {
	Detected bool   `json:"long_term"`
	Date     string `json:"date"`   // ISO date or rough period, may be empty
	Reason   string `json:"reason"` // may be empty
}

const longTermSystem = `You analyze prospect messages and detect whether the prospect explicitly asks to be recontacted later.`

// DetectLongTerm asks the model whether a message contains an explicit
// recontact-me-later request. Vague deferrals ("je vais y réfléchir") do
// not count. Failures report no detection together with the error.
func (p *Pipeline) DetectLongTerm(ctx context.Context, message string) (LongTermRequest, error) {
	prompt := fmt.Sprintf(`Analyze this prospect message:

"%s"

Does the prospect explicitly ask to be recontacted later? If so, extract the date (or rough period) and the reason.

Answer in JSON:
{"long_term": true/false, "date": "YYYY-MM-DD" or "rough period" or null, "reason": "short reason" or null}

Explicit requests: "Recontactez-moi en mars", "Rappelle-moi dans 3 mois", "Je serai dispo après les vacances".
NOT long_term: "Je n'ai pas le temps maintenant", "Je vais y réfléchir", vague messages with no explicit ask.`, message)

	raw, err := p.llm.Complete(ctx, llm.Request{
		System: longTermSystem,
		Prompt: prompt,
	})
	if err != nil {
		return LongTermRequest{}, fmt.Errorf("long-term detection: %w", err)
	}

	var out LongTermRequest
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return LongTermRequest{}, fmt.Errorf("long-term detection: invalid json: %w", err)
	}
	return out, nil
}
