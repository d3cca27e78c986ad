// Package pipeline turns one chat message into a canonical record:
// normalize, ask the model candidates, then assemble with local fallbacks.
package pipeline

import (
	"context"
	"fmt"

	"github.com/clypser/finance-bot/internal/domain"
	"github.com/clypser/finance-bot/internal/inference"
)

// Inferrer is the model-backed extraction used by InferStep.
// *inference.Orchestrator implements it.
type Inferrer interface {
	Infer(ctx context.Context, normalizedText, defaultCurrency string, candidates []inference.Candidate) (domain.ExtractedFields, bool)
}

// Extractor runs the extraction pipeline. It is safe for concurrent use.
type Extractor struct {
	pipeline *Pipeline
}

// NewExtractor creates an Extractor. A nil inferrer means local parsing only.
func NewExtractor(inferrer Inferrer) *Extractor {
	return &Extractor{pipeline: NewExtractionPipeline(inferrer)}
}

// Extract converts rawText into a record. candidates are tried in order;
// an empty list skips inference. The only error is domain.ErrNoAmountFound.
func (e *Extractor) Extract(ctx context.Context, rawText, defaultCurrency string, candidates []inference.Candidate) (domain.CanonicalRecord, error) {
	state := &ExtractionState{
		RawText:         rawText,
		DefaultCurrency: defaultCurrency,
		Candidates:      candidates,
	}
	if err := e.pipeline.Execute(ctx, state); err != nil {
		return domain.CanonicalRecord{}, fmt.Errorf("Extract: %w", err)
	}
	return state.Record, nil
}
