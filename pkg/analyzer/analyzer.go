// Package analyzer is the boundary to the external text-analysis model.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pario-ai/lens/pkg/models"
)

// Dimensions are the score names the model is asked to produce.
var Dimensions = []string{"credibility", "objectivity", "evidence", "clarity", "sourcing", "tone"}

// ErrMalformedResponse is returned when the model output has no scores.
var ErrMalformedResponse = errors.New("malformed analysis response")

// Input is the article handed to the model.
type Input struct {
	URL   string
	Title string
	Text  string
}

// Analyzer produces an AnalysisResult for an article.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (models.AnalysisResult, error)
}

// Func adapts a plain function to Analyzer.
type Func func(ctx context.Context, in Input) (models.AnalysisResult, error)

// Analyze implements Analyzer.
func (f Func) Analyze(ctx context.Context, in Input) (models.AnalysisResult, error) {
	return f(ctx, in)
}

// maxTextRunes bounds how much article text is sent to the model.
const maxTextRunes = 12000

const systemPrompt = `You are a careful media analyst. Rate the article on each dimension from 0 (worst) to 10 (best) and explain briefly.

Respond with ONLY a JSON object of this exact form:
{"scores": {%s}, "rationale": "<2-4 sentences>"}`

const userPrompt = `Title: %s
URL: %s

Article:
%s`

func buildSystemPrompt() string {
	fields := make([]string, len(Dimensions))
	for i, d := range Dimensions {
		fields[i] = fmt.Sprintf("%q: <0-10>", d)
	}
	return fmt.Sprintf(systemPrompt, strings.Join(fields, ", "))
}

func buildUserPrompt(in Input) string {
	text := in.Text
	if r := []rune(text); len(r) > maxTextRunes {
		text = string(r[:maxTextRunes])
	}
	return fmt.Sprintf(userPrompt, in.Title, in.URL, text)
}

// ParseResult extracts scores and rationale from model output. It accepts
// code fences and surrounding prose, and flat score fields when the model
// omits the "scores" object.
func ParseResult(text string) (models.AnalysisResult, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return models.AnalysisResult{}, fmt.Errorf("%w: no JSON object", ErrMalformedResponse)
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return models.AnalysisResult{}, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	doc := gjson.Parse(raw)

	scores := make(map[string]float64)
	collect := func(key, value gjson.Result) bool {
		if value.Type == gjson.Number {
			scores[strings.ToLower(key.Str)] = value.Num
		}
		return true
	}
	if s := doc.Get("scores"); s.IsObject() {
		s.ForEach(collect)
	} else {
		doc.ForEach(collect)
	}
	if len(scores) == 0 {
		return models.AnalysisResult{}, fmt.Errorf("%w: no scores", ErrMalformedResponse)
	}

	rationale := doc.Get("rationale").String()
	if rationale == "" {
		rationale = doc.Get("reasoning").String()
	}

	return models.AnalysisResult{Scores: scores, Rationale: strings.TrimSpace(rationale)}.Normalize(), nil
}
