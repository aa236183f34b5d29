package choices

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/smiyakawa/kiosk-relay/pkg/db/models"
	"github.com/smiyakawa/kiosk-relay/pkg/logger"
)

// TextGenerator is the model surface the generator needs.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

const (
	defaultChoice1 = "Yes"
	defaultChoice2 = "No"
)

// Generator derives a binary reply pair for an inbound message. Failures never
// propagate: a kiosk with Yes/No buttons beats a kiosk with no buttons.
type Generator struct {
	model TextGenerator
	logg  *logger.Logger
}

func NewGenerator(model TextGenerator, logg *logger.Logger) *Generator {
	return &Generator{model: model, logg: logg}
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Generate asks the model for two short reply choices. Any failure, from the
// API call down to unparseable output, falls back to the Yes/No pair.
func (g *Generator) Generate(ctx context.Context, senderName, messageText string) *models.DerivedChoices {
	now := time.Now().UTC()
	fallback := &models.DerivedChoices{
		Choice1:     defaultChoice1,
		Choice2:     defaultChoice2,
		Reasoning:   "fallback",
		GeneratedAt: now,
	}
	if g == nil || g.model == nil {
		return fallback
	}

	raw, err := g.model.GenerateContent(ctx, buildPrompt(senderName, messageText))
	if err != nil {
		if g.logg != nil {
			g.logg.Warn(ctx, fmt.Sprintf("choice generation failed, using defaults: %v", err))
		}
		return fallback
	}

	parsed, ok := parseChoices(raw)
	if !ok {
		if g.logg != nil {
			g.logg.Warn(ctx, "choice generation returned unparseable output, using defaults")
		}
		return fallback
	}
	parsed.GeneratedAt = now
	return parsed
}

func buildPrompt(senderName, messageText string) string {
	sender := senderName
	if sender == "" {
		sender = "someone"
	}
	return fmt.Sprintf(`A family kiosk received this message and offers exactly two one-tap reply buttons.

Message from %s: %q

Propose the two most useful short replies. Keep each under 20 characters, in the language of the message. Respond with JSON only:
{"choice1":"...","choice2":"...","reasoning":"one short sentence"}`, sender, messageText)
}

type choicePayload struct {
	Choice1   string `json:"choice1"`
	Choice2   string `json:"choice2"`
	Reasoning string `json:"reasoning"`
}

// parseChoices tolerates the usual model formatting drift: fenced code blocks,
// prose around the JSON object, or bare JSON.
func parseChoices(raw string) (*models.DerivedChoices, bool) {
	candidate := strings.TrimSpace(raw)
	if match := fencedJSON.FindStringSubmatch(candidate); match != nil {
		candidate = match[1]
	} else if start := strings.Index(candidate, "{"); start >= 0 {
		if end := strings.LastIndex(candidate, "}"); end > start {
			candidate = candidate[start : end+1]
		}
	}

	var payload choicePayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, false
	}

	choice1 := strings.TrimSpace(payload.Choice1)
	choice2 := strings.TrimSpace(payload.Choice2)
	if choice1 == "" || choice2 == "" {
		return nil, false
	}
	return &models.DerivedChoices{
		Choice1:   choice1,
		Choice2:   choice2,
		Reasoning: strings.TrimSpace(payload.Reasoning),
	}, true
}
