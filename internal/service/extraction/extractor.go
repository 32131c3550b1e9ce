// Package extraction turns job descriptions and resumes into validated,
// closed-vocabulary structures using an LLM as a constrained classifier.
// Every response is schema-checked before it is used; nothing the model
// returns is scored directly.
package extraction

import (
	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/pkg/textx"
)

const (
	defaultMaxDimensions = 5
	defaultMaxTokens     = 1200
	defaultPromptBudget  = 6000
	approxCharsPerToken  = 4
)

// Trimmer cuts text to a token budget.
type Trimmer func(text string, maxTokens int) string

// Extractor runs the JD Structure and Resume Evidence extraction calls.
type Extractor struct {
	llm           domain.LLMClient
	lib           *dimension.Library
	maxDimensions int
	maxTokens     int
	promptBudget  int
	trim          Trimmer
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxDimensions caps the selected dimensions, anchors included.
func WithMaxDimensions(n int) Option {
	return func(e *Extractor) {
		if n >= len(domain.AnchorDimensions()) {
			e.maxDimensions = n
		}
	}
}

// WithMaxTokens sets the completion budget of each call.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithPromptBudget bounds the free text embedded in a prompt, in tokens.
func WithPromptBudget(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.promptBudget = n
		}
	}
}

// WithTrimmer replaces the character based trimmer, e.g. with a tokenizer.
func WithTrimmer(t Trimmer) Option {
	return func(e *Extractor) {
		if t != nil {
			e.trim = t
		}
	}
}

// New builds an Extractor over the given client and library.
func New(llm domain.LLMClient, lib *dimension.Library, opts ...Option) *Extractor {
	e := &Extractor{
		llm:           llm,
		lib:           lib,
		maxDimensions: defaultMaxDimensions,
		maxTokens:     defaultMaxTokens,
		promptBudget:  defaultPromptBudget,
		trim: func(text string, maxTokens int) string {
			return textx.Truncate(text, maxTokens*approxCharsPerToken)
		},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Library returns the dimension library the extractor validates against.
func (e *Extractor) Library() *dimension.Library { return e.lib }
