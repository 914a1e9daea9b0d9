package composer

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"github.com/prospectra/outreach-orchestrator/internal/domain"
	"github.com/prospectra/outreach-orchestrator/internal/llm"
)

// Composer produces outbound message content for a prospect
type Composer interface {
	// FirstContact writes the opening message sent after a connection
	FirstContact(ctx context.Context, p domain.Profile) (string, error)
	// Followup writes the nth ladder message for an unanswered opener
	Followup(p domain.Profile, step int) string
	// Revival nudges a conversation the prospect stopped answering
	Revival(p domain.Profile) string
}

var greetings = []string{"Salut", "Hey", "Hello", "Bonjour", "Hola"}

const (
	followup1 = "{greeting} {first_name}, j'imagine que tu n'as pas vu mon message alors je me permets de te relancer. Belle journée à toi !"
	followup2 = "{first_name} ?"
	followup3 = `{greeting} {first_name},

Je suis spécialiste en automatisation back-end. J'aide freelances et agences à créer des systèmes qui leur font gagner temps et performance.

Tu serais dispo pour un call d'ici 1-2 jours dans l'après-midi ? On pourrait échanger 15-20 min pour voir concrètement ce que je peux t'apporter.

Qu'est-ce que tu en penses ?`

	revivalTemplate = `Bonjour {first_name},

Avez-vous eu le temps de réfléchir à ma proposition ?

Je reste à votre disposition pour en discuter.

Bien cordialement`
)

const welcomePrompt = `You write the first message after connecting with someone on a professional network. You help freelancers and agencies streamline their processes.

PROFILE:
- Name: %s
- Headline: %s
- Company: %s

MESSAGE STRUCTURE (mandatory):
1. Greeting: Salut/Hey/Hello/Bonjour/Hola plus first name
2. Emotional hook: "je suis tombé sur...", "j'aime bien...", "j'ai vu que..."
3. One specific compliment proving you actually read the profile
4. ONE open but focused question about their work, never about geography

STRICT RULES:
- 1-2 sentences max before the question
- ONE question only
- Never mention AI or automation unless it is in their profile
- No emojis, no corporate phrasing
- Write in French

Output ONLY the message, nothing else.`

// TemplateComposer generates the opener with the LLM and falls back to
// fixed templates when the model is unavailable. Ladder and revival
// messages are always template based.
type TemplateComposer struct {
	llm  Completer
	rand *rand.Rand
}

// Completer is the slice of the llm service the composer needs
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// New creates a composer. completer may be nil; openers then always use
// the fallback template.
func New(completer Completer) *TemplateComposer {
	return &TemplateComposer{llm: completer}
}

// FirstContact generates a personalized opener, falling back to a
// template greeting when generation fails. Never returns an error: an
// opener can always be produced.
func (c *TemplateComposer) FirstContact(ctx context.Context, p domain.Profile) (string, error) {
	if c.llm != nil {
		out, err := c.llm.Complete(ctx, llm.Request{
			Prompt: welcome(p),
		})
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out), nil
		}
		if err != nil {
			log.Printf("composer: opener generation failed, using template: %v", err)
		}
	}

	first := p.FirstName
	if first == "" {
		first = "l'équipe"
	}
	company := p.Company
	if company == "" {
		company = "votre entreprise"
	}
	return c.greeting() + " " + first + ", merci pour la connexion ! Comment ça se passe chez " + company + " ?", nil
}

// Followup renders the ladder template for a step, clamped to [1, 3]
func (c *TemplateComposer) Followup(p domain.Profile, step int) string {
	var tpl string
	switch {
	case step <= 1:
		tpl = followup1
	case step == 2:
		tpl = followup2
	default:
		tpl = followup3
	}
	return c.render(tpl, p)
}

// Revival renders the conversation revival template
func (c *TemplateComposer) Revival(p domain.Profile) string {
	return c.render(revivalTemplate, p)
}

func welcome(p domain.Profile) string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	return fmt.Sprintf(welcomePrompt, orNA(name), orNA(p.Headline), orNA(p.Company))
}

func (c *TemplateComposer) render(tpl string, p domain.Profile) string {
	first := p.FirstName
	if first == "" {
		first = "votre équipe"
	}
	company := p.Company
	if company == "" {
		company = "votre entreprise"
	}
	r := strings.NewReplacer(
		"{greeting}", c.greeting(),
		"{first_name}", first,
		"{company}", company,
	)
	return r.Replace(tpl)
}

func (c *TemplateComposer) greeting() string {
	if c.rand != nil {
		return greetings[c.rand.Intn(len(greetings))]
	}
	return greetings[rand.Intn(len(greetings))]
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
