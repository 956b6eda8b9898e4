package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"cascade-engine/internal/logging"
	"cascade-engine/internal/metrics"
	"cascade-engine/internal/models"
	"cascade-engine/internal/rules"
)

const (
	// DefaultPromptCandidates bounds how many candidates go into one prompt.
	DefaultPromptCandidates = 75
	DefaultMaxOutputTokens  = 8000
)

// ErrMalformedOutput is returned when the generator's text cannot be parsed
// into a cascade document.
var ErrMalformedOutput = errors.New("malformed generator output")

// TextGenerator is the external text-generation service.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// GeneratedEffect is one effect as emitted by the generator.
type GeneratedEffect struct {
	EventID     string  `json:"event_id" validate:"required"`
	MarketName  string  `json:"market_name" validate:"required"`
	URL         string  `json:"url"`
	Direction   string  `json:"direction" validate:"required,oneof=UP DOWN"`
	Magnitude   float64 `json:"magnitude" validate:"gte=0,lte=100"`
	Timing      string  `json:"timing"`
	Confidence  float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reason      string  `json:"reason"`
	TriggeredBy string  `json:"triggered_by,omitempty"`
}

// GeneratedRelationship is one causal edge as emitted by the generator. An
// empty mechanism passes structural checks and is rejected by the validator.
type GeneratedRelationship struct {
	SourceEventID string  `json:"source_event_id" validate:"required"`
	TargetEventID string  `json:"target_event_id" validate:"required"`
	Type          string  `json:"type"`
	Mechanism     string  `json:"mechanism"`
	Strength      float64 `json:"strength" validate:"gte=0,lte=1"`
	Confidence    float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// GeneratedCascade is the parsed generator document, not yet validated.
type GeneratedCascade struct {
	Name             string                  `json:"name" validate:"required"`
	Description      string                  `json:"description"`
	Domain           string                  `json:"domain" validate:"required"`
	Severity         int                     `json:"severity" validate:"gte=1,lte=10"`
	PrimaryEffects   []GeneratedEffect       `json:"primary_effects" validate:"required,min=1,dive"`
	SecondaryEffects []GeneratedEffect       `json:"secondary_effects" validate:"dive"`
	TertiaryEffects  []GeneratedEffect       `json:"tertiary_effects" validate:"dive"`
	Relationships    []GeneratedRelationship `json:"relationships" validate:"dive"`
	Risks            []string                `json:"risks"`
}

// EffectsAt returns the effect list for a level.
func (g *GeneratedCascade) EffectsAt(level int) []GeneratedEffect {
	switch level {
	case models.LevelPrimary:
		return g.PrimaryEffects
	case models.LevelSecondary:
		return g.SecondaryEffects
	default:
		return g.TertiaryEffects
	}
}

// GenerationRequest is one orchestration attempt.
type GenerationRequest struct {
	Trigger       Candidate
	Candidates    []ScoredCandidate // sorted by descending score
	TargetEffects int
}

// Orchestrator turns a trigger and ranked candidates into a parsed cascade
// document. It does not retry; the caller decides whether to try again.
type Orchestrator struct {
	generator     TextGenerator
	rules         *rules.Rules
	maxCandidates int
	maxTokens     int
	validate      *validator.Validate
	sanitizer     *bluemonday.Policy
	log           zerolog.Logger
}

func NewOrchestrator(generator TextGenerator, r *rules.Rules, maxCandidates, maxTokens int) *Orchestrator {
	if maxCandidates <= 0 {
		maxCandidates = DefaultPromptCandidates
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}
	return &Orchestrator{
		generator:     generator,
		rules:         r,
		maxCandidates: maxCandidates,
		maxTokens:     maxTokens,
		validate:      validator.New(),
		sanitizer:     bluemonday.StrictPolicy(),
		log:           logging.Component("orchestrator"),
	}
}

// PromptCandidates returns the slice of candidates that fits in one prompt.
func (o *Orchestrator) PromptCandidates(all []ScoredCandidate) []ScoredCandidate {
	if len(all) > o.maxCandidates {
		return all[:o.maxCandidates]
	}
	return all
}

// Generate builds the prompt, calls the generator and parses its output.
func (o *Orchestrator) Generate(ctx context.Context, req GenerationRequest) (*GeneratedCascade, error) {
	prompt := o.BuildPrompt(req)

	started := time.Now()
	raw, err := o.generator.Generate(ctx, prompt, o.maxTokens)
	metrics.GenerationDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("text generation failed: %w", err)
	}

	gc, err := o.Parse(raw)
	if err != nil {
		o.log.Warn().Err(err).Str("trigger", req.Trigger.Event.ID).Int("raw_len", len(raw)).Msg("discarding generator output")
		return nil, err
	}
	return gc, nil
}

// BuildPrompt renders the trigger, the capped candidate pool and the
// response schema.
func (o *Orchestrator) BuildPrompt(req GenerationRequest) string {
	candidates := o.PromptCandidates(req.Candidates)
	target := req.TargetEffects
	if target <= 0 {
		target = 6
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are building a causal cascade of prediction-market effects.\n\n")
	fmt.Fprintf(&b, "TRIGGER EVENT\n")
	fmt.Fprintf(&b, "- id: %s\n- title: %s\n- domain: %s\n- url: %s\n\n",
		req.Trigger.Event.ID, req.Trigger.Event.Title, req.Trigger.Domain, o.rules.EventURL(req.Trigger.Event.Slug))

	fmt.Fprintf(&b, "CANDIDATE EVENTS (%d, most relevant first)\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id: %s | title: %s | domain: %s | url: %s | score: %.1f\n",
			c.Event.ID, c.Event.Title, c.Domain, o.rules.EventURL(c.Event.Slug), c.Score)
	}

	fmt.Fprintf(&b, "\nRULES\n")
	fmt.Fprintf(&b, "- Produce about %d effects across three levels (primary, secondary, tertiary).\n", target)
	fmt.Fprintf(&b, "- Use only candidate events. Copy event_id, market_name (the exact title) and url exactly.\n")
	fmt.Fprintf(&b, "- Minimum confidence: primary %.2f, secondary %.2f, tertiary %.2f. Relationship strength at least %.2f.\n",
		o.rules.Floors.Primary, o.rules.Floors.Secondary, o.rules.Floors.Tertiary, o.rules.Floors.Relationship)
	fmt.Fprintf(&b, "- Every reason and mechanism must name a concrete, falsifiable channel. Never use: %s.\n",
		strings.Join(o.rules.ForbiddenPhrases, "; "))
	fmt.Fprintf(&b, "- triggered_by is the event_id of the trigger or of another effect.\n")

	fmt.Fprintf(&b, "\nRespond with a single JSON object of this shape and nothing else:\n")
	b.WriteString(responseSchema)
	return b.String()
}

const responseSchema = `{
  "name": "string",
  "description": "string",
  "domain": "SPORTS|ECONOMIC|TECHNOLOGY|HEALTH|ENTERTAINMENT|GEOPOLITICAL|CLIMATE|POLITICAL|CRYPTO",
  "severity": 1,
  "primary_effects": [{"event_id": "", "market_name": "", "url": "", "direction": "UP|DOWN",
    "magnitude": 0, "timing": "", "confidence": 0.0, "reason": "", "triggered_by": ""}],
  "secondary_effects": [],
  "tertiary_effects": [],
  "relationships": [{"source_event_id": "", "target_event_id": "", "type": "",
    "mechanism": "", "strength": 0.0, "confidence": 0.0}],
  "risks": ["string"]
}
`

// Parse strips code fences, decodes the document and runs structural checks.
func (o *Orchestrator) Parse(raw string) (*GeneratedCascade, error) {
	body := StripCodeFences(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	var gc GeneratedCascade
	if err := json.Unmarshal([]byte(body), &gc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	o.normalize(&gc)

	if err := o.validate.Struct(&gc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &gc, nil
}

// normalize canonicalizes enums and strips markup from free text. Identifier
// and title fields are left untouched so exact matching stays meaningful.
func (o *Orchestrator) normalize(gc *GeneratedCascade) {
	gc.Name = o.clean(gc.Name)
	gc.Description = o.clean(gc.Description)
	gc.Domain = strings.ToUpper(strings.TrimSpace(gc.Domain))
	for i, r := range gc.Risks {
		gc.Risks[i] = o.clean(r)
	}
	for _, effects := range [][]GeneratedEffect{gc.PrimaryEffects, gc.SecondaryEffects, gc.TertiaryEffects} {
		for i := range effects {
			effects[i].Direction = strings.ToUpper(strings.TrimSpace(effects[i].Direction))
			effects[i].Reason = o.clean(effects[i].Reason)
		}
	}
	for i := range gc.Relationships {
		gc.Relationships[i].Mechanism = o.clean(gc.Relationships[i].Mechanism)
	}
}

func (o *Orchestrator) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(o.sanitizer.Sanitize(s)))
}

// StripCodeFences removes a surrounding ``` fence (with optional language tag)
// and any prose outside the outermost JSON object.
func StripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
