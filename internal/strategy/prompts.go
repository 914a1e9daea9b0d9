package strategy

import (
	"fmt"
	"strings"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
)

// historyWindow bounds how much context the generation stage sees
const historyWindow = 6

func strategicPrompt(history []domain.Message, profile domain.Profile) string {
	var b strings.Builder

	b.WriteString(`You are a conversation strategist for outbound prospecting on a professional network.

YOUR ROLE:
1. DECIDE whether to act on this conversation
2. If yes, decide the next conversational direction

ACTION DECISION (absolute priority):
- "reply": last message is from the prospect AND calls for an answer (question, interest, engagement, pain point mentioned)
- "skip": last message is ours, or the prospect said "ok merci", "je réfléchis", "on verra" (wait for them)
- "archive": polite refusal ("non merci", "pas intéressé", "pas pour le moment")
- "close": hostile, disrespectful, or explicitly asks to never be contacted again

When the action is skip, archive or close, the other strategic fields may be empty.

PROSPECT:
`)
	fmt.Fprintf(&b, "- First name: %s\n- Job title: %s\n- Company: %s\n- Headline: %s\n",
		orNA(profile.FirstName), orNA(profile.JobTitle), orNA(profile.Company), orNA(profile.Headline))

	fmt.Fprintf(&b, "\nFULL CONVERSATION (%d prospect messages):\n%s\n",
		countProspectMessages(history), formatHistory(history, 0))

	b.WriteString(`
PHASES: ice_breaker, discovery, qualification, pitch. Pitch only once rapport exists and the prospect is qualified.
APPROACHES: challenge_observation, personal_share, open_question, deep_dive, pivot, pain_amplification.

STRICT RULES:
1. Never stay more than 3 messages on the same subject
2. Qualify organically, never as an interrogation
3. Avoid flat binary questions and generic compliments

PAIN POINTS (absolute priority): lack of time, manual processes, acquisition struggles, slow delivery, painful onboarding. When one is detected, pivot immediately toward qualifying it.
Our domain is workflow automation and process optimization for agencies and freelancers. Pure SEO, graphic design and paid ads are out of scope: acknowledge briefly, then pivot progressively through a natural bridge. Never pivot abruptly.
PAIN AMPLIFICATION: when the prospect minimizes a stated pain point, quantify the realistic impact empathetically. Ask for missing context (solo or team, delegation) before amplifying. Never invent numbers.

OUTPUT (strict JSON):
{
  "conversation_action": "reply|skip|archive|close",
  "action_reason": "one short sentence",
  "conversation_phase": "ice_breaker|discovery|qualification|pitch",
  "objective": "goal of the next message",
  "approach": "challenge_observation|personal_share|open_question|deep_dive|pivot|pain_amplification",
  "subjects_to_explore": ["one subject"],
  "tone": "curieux|provocant|empathique|cash|léger",
  "pain_points_detected": [],
  "pain_amplification": {"should_amplify": false, "pain_point": "", "context_needed": [], "amplification_angle": ""},
  "pivot_required": false,
  "transition_bridge": "when pivoting: the natural bridge between subjects",
  "max_questions": 1,
  "avoid": [],
  "rationale": "short reasoning"
}

OUTPUT RULES:
- subjects_to_explore: ONE subject max
- max_questions: ALWAYS 1

Output ONLY the JSON, nothing else.`)

	return b.String()
}

func generationPrompt(d domain.StrategyDirective, history []domain.Message, profile domain.Profile) string {
	var b strings.Builder

	b.WriteString(`You write outbound prospecting messages in French for a back-end automation freelancer. You receive a STRATEGIC DIRECTIVE and produce one natural, conversational message.

DIRECTIVE:
`)
	fmt.Fprintf(&b, "- Objective: %s\n- Approach: %s\n- Subjects: %s\n- Tone: %s\n",
		orNA(d.Objective), orNA(d.Approach), listOrNone(d.SubjectsToExplore), orNA(d.Tone))
	if d.PivotRequired && d.TransitionBridge != "" {
		fmt.Fprintf(&b, "- Pivot required, transition bridge: %s\n", d.TransitionBridge)
	}
	if d.PainAmplification != nil && d.PainAmplification.ShouldAmplify {
		fmt.Fprintf(&b, "- Amplify pain point: %s (angle: %s)\n",
			d.PainAmplification.PainPoint, d.PainAmplification.AmplificationAngle)
	}
	fmt.Fprintf(&b, "- MAX QUESTIONS: 1\n- Avoid: %s\n", listOrNone(d.Avoid))

	fmt.Fprintf(&b, "\nPROSPECT:\n- First name: %s\n- Job title: %s\n- Company: %s\n",
		orNA(profile.FirstName), orNA(profile.JobTitle), orNA(profile.Company))

	fmt.Fprintf(&b, "\nRECENT CONVERSATION:\n%s\n", formatHistory(history, historyWindow))

	b.WriteString(`
STYLE:
- Direct and casual, never corporate; "ahah", "d'acc", "let's go" are fine
- Bounce off what the prospect said; light challenge is welcome
- 2-3 sentences max
- ONE question max per message, zero is fine
- Progressive transitions only, no abrupt subject jumps
- No generic compliments, no emojis, no "[phrase] - [phrase]" AI cadence

Output ONLY the message, plain text, no quotes.`)

	return b.String()
}

func formatHistory(history []domain.Message, limit int) string {
	if len(history) == 0 {
		return "(start of conversation)"
	}
	msgs := history
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		role := "Prospect"
		if m.SentBy == domain.SentByAccount {
			role = "Me"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", role, m.Content))
	}
	return strings.Join(lines, "\n")
}

func countProspectMessages(history []domain.Message) int {
	n := 0
	for _, m := range history {
		if m.SentBy == domain.SentByProspect {
			n++
		}
	}
	return n
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, "; ")
}
