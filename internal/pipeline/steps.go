package pipeline

import (
	"context"
	"fmt"

	"github.com/clypser/finance-bot/internal/domain"
	"github.com/clypser/finance-bot/internal/inference"
	"github.com/clypser/finance-bot/internal/logger"
	"github.com/clypser/finance-bot/internal/textnorm"
)

// PipelineStep represents a single step in the extraction pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *ExtractionState) error
}

// ExtractionState holds the shared state across all pipeline steps.
type ExtractionState struct {
	RawText         string
	DefaultCurrency string
	Candidates      []inference.Candidate

	NormalizedText string
	Inferred       *domain.ExtractedFields // nil when no candidate succeeded
	Record         domain.CanonicalRecord
}

// Step 1: NormalizeStep expands numeric shorthand.
type NormalizeStep struct{}

func (s *NormalizeStep) Execute(ctx context.Context, state *ExtractionState) error {
	state.NormalizedText = textnorm.Normalize(state.RawText)
	return nil
}

// Step 2: InferStep asks the model candidates. It never fails.
type InferStep struct {
	Inferrer Inferrer
}

func (s *InferStep) Execute(ctx context.Context, state *ExtractionState) error {
	if s.Inferrer == nil {
		return nil
	}
	fields, ok := s.Inferrer.Infer(ctx, state.NormalizedText, state.DefaultCurrency, state.Candidates)
	if !ok {
		log := logger.FromContext(ctx)
		log.Debug().
			Int("candidates", len(state.Candidates)).
			Msg("no inference result, using local parser")
		return nil
	}
	state.Inferred = &fields
	return nil
}

// Step 3: AssembleStep merges inference output, local parsing and defaults.
type AssembleStep struct{}

func (s *AssembleStep) Execute(ctx context.Context, state *ExtractionState) error {
	rec, err := assemble(state.Inferred, state.RawText, state.NormalizedText, state.DefaultCurrency)
	if err != nil {
		return err
	}
	state.Record = rec
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *ExtractionState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewExtractionPipeline creates the standard 3-step extraction pipeline.
func NewExtractionPipeline(inferrer Inferrer) *Pipeline {
	return NewPipeline(
		&NormalizeStep{},
		&InferStep{Inferrer: inferrer},
		&AssembleStep{},
	)
}
