package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pario-ai/lens/pkg/metrics"
	"github.com/pario-ai/lens/pkg/models"
)

// ErrVideoDisabled is returned by GenerateClip when no operations client is
// configured.
var ErrVideoDisabled = errors.New("video generation is not configured")

const maxExcerptRunes = 500

const clipPrompt = `A short editorial explainer video about the news article %q.
Key passage: %q.
Analyst assessment: %s
Calm documentary style, neutral colour grading, no on-screen text or logos.`

type clipInstance struct {
	Prompt string `json:"prompt"`
}

type clipParameters struct {
	AspectRatio string `json:"aspectRatio"`
}

type clipRequestBody struct {
	Instances  []clipInstance `json:"instances"`
	Parameters clipParameters `json:"parameters"`
}

// ClipPrompt composes the synthesis prompt for req.
func ClipPrompt(req models.ClipRequest) string {
	excerpt := strings.Join(strings.Fields(req.Excerpt), " ")
	if r := []rune(excerpt); len(r) > maxExcerptRunes {
		excerpt = string(r[:maxExcerptRunes])
	}
	rationale := strings.TrimSpace(req.Rationale)
	if rationale == "" {
		rationale = "no assessment available."
	}
	return fmt.Sprintf(clipPrompt, strings.TrimSpace(req.Title), excerpt, rationale)
}

// GenerateClip synthesizes a fresh video for req. There is no cache: every
// call runs start, await, resolve and fetch in order, once.
func (o *Orchestrator) GenerateClip(ctx context.Context, req models.ClipRequest) (models.ClipResponse, error) {
	if o.ops == nil {
		return models.ClipResponse{}, ErrVideoDisabled
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Excerpt) == "" {
		return models.ClipResponse{}, fmt.Errorf("%w: title or excerpt is required", ErrInvalidRequest)
	}

	resp, err := o.generateClip(ctx, req)
	metrics.ClipOutcomesTotal.WithLabelValues(clipOutcome(err)).Inc()
	if err != nil {
		o.log.Error().Err(err).Str("title", req.Title).Msg("clip generation failed")
	}
	return resp, err
}

func (o *Orchestrator) generateClip(ctx context.Context, req models.ClipRequest) (models.ClipResponse, error) {
	body := clipRequestBody{
		Instances:  []clipInstance{{Prompt: ClipPrompt(req)}},
		Parameters: clipParameters{AspectRatio: "16:9"},
	}

	op, err := o.ops.Start(ctx, "models/"+o.videoModel+":predictLongRunning", body)
	if err != nil {
		return models.ClipResponse{}, err
	}

	terminal, err := o.ops.AwaitCompletion(ctx, op)
	if err != nil {
		return models.ClipResponse{}, err
	}

	locator, err := o.ops.Resolve(terminal)
	if err != nil {
		return models.ClipResponse{}, err
	}

	payload, contentType, err := o.ops.FetchPayload(ctx, locator)
	if err != nil {
		return models.ClipResponse{}, err
	}
	return models.ClipResponse{Payload: payload, ContentType: contentType}, nil
}

func clipOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return ErrorCode(err)
}
