// Package workflow decides which responder answers each turn.
package workflow

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/agent"
	"github.com/jitinkakkar/dorthy-ai/internal/completeness"
)

// Stage is the phase of the conversation.
type Stage string

const (
	GatheringInfo Stage = agent.StageGatheringInfo
	ProgramTeaser Stage = agent.StageProgramTeaser
	// AskEmail is reserved for the detailed-report hand-off. StageFor never
	// returns it.
	AskEmail Stage = agent.StageAskEmail
)

// StageFor selects the stage from a completeness record.
func StageFor(rec completeness.Record) Stage {
	if rec.CompletedInfo {
		return ProgramTeaser
	}
	return GatheringInfo
}

// Decision is the outcome of routing one turn.
type Decision struct {
	Stage     Stage
	Responder agent.Responder
	Record    completeness.Record
}

// Router evaluates completeness and picks the responder for a turn.
type Router struct {
	extractor completeness.Extractor
	catalog   agent.Catalog
	logger    *zap.Logger
}

// NewRouter fails when a stage StageFor can select has no responder.
func NewRouter(extractor completeness.Extractor, catalog agent.Catalog, logger *zap.Logger) (*Router, error) {
	for _, stage := range []Stage{GatheringInfo, ProgramTeaser} {
		if _, ok := catalog.Lookup(string(stage)); !ok {
			return nil, fmt.Errorf("no responder configured for stage %q", stage)
		}
	}
	return &Router{
		extractor: extractor,
		catalog:   catalog,
		logger:    logger.With(zap.String("component", "workflow")),
	}, nil
}

// Evaluate runs the completeness extraction over the whole history.
func (r *Router) Evaluate(ctx context.Context, history []openai.ChatCompletionMessage) (completeness.Record, error) {
	return r.extractor.Extract(ctx, history)
}

// Route evaluates completeness afresh and returns the responder for the turn.
// Extraction errors are returned as is.
func (r *Router) Route(ctx context.Context, history []openai.ChatCompletionMessage) (Decision, error) {
	rec, err := r.Evaluate(ctx, history)
	if err != nil {
		return Decision{}, err
	}

	stage := StageFor(rec)
	responder, ok := r.catalog.Lookup(string(stage))
	if !ok {
		return Decision{}, fmt.Errorf("no responder configured for stage %q", stage)
	}

	r.logger.Info("Routed turn",
		zap.String("stage", string(stage)),
		zap.String("responder", responder.Name),
		zap.Bool("completed_info", rec.CompletedInfo))
	return Decision{Stage: stage, Responder: responder, Record: rec}, nil
}
