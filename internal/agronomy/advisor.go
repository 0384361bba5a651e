package agronomy

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"

	"cropguide/backend/internal/flow"
)

// Advisor is a typed facade over the agronomy catalog.
type Advisor struct {
	catalog *flow.Catalog
	pool    *ants.Pool
	logger  flow.Logger
}

// NewAdvisor creates an advisor. maxConcurrency bounds the number of flow
// calls a farm analysis runs at once across all callers.
func NewAdvisor(catalog *flow.Catalog, maxConcurrency int, logger flow.Logger) (*Advisor, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	pool, err := ants.NewPool(maxConcurrency, ants.WithPanicHandler(func(p any) {
		logger.Error("farm analysis task panicked", "panic", fmt.Sprint(p))
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Advisor{catalog: catalog, pool: pool, logger: logger}, nil
}

// Catalog returns the underlying flow catalog.
func (a *Advisor) Catalog() *flow.Catalog { return a.catalog }

// Close releases the worker pool.
func (a *Advisor) Close() {
	a.pool.Release()
}

func (a *Advisor) AskGuidance(ctx context.Context, query string) (*Guidance, error) {
	return flow.Invoke[Question, Guidance](ctx, a.catalog, FlowCropGuidance, Question{Query: query})
}

func (a *Advisor) AskQuestion(ctx context.Context, query string) (*Answer, error) {
	return flow.Invoke[Question, Answer](ctx, a.catalog, FlowCropQuestion, Question{Query: query})
}

func (a *Advisor) DetectDisease(ctx context.Context, photoDataURI string) (*Diagnosis, error) {
	return flow.Invoke[Photo, Diagnosis](ctx, a.catalog, FlowDiseaseDetection, Photo{PhotoDataURI: photoDataURI})
}

func (a *Advisor) AnalyzeGrowth(ctx context.Context, photoDataURI string) (*GrowthAnalysis, error) {
	return flow.Invoke[Photo, GrowthAnalysis](ctx, a.catalog, FlowGrowthStage, Photo{PhotoDataURI: photoDataURI})
}

func (a *Advisor) AnalyzeVegetation(ctx context.Context, photoDataURI string) (*VegetationReport, error) {
	return flow.Invoke[Photo, VegetationReport](ctx, a.catalog, FlowVegetationAnalysis, Photo{PhotoDataURI: photoDataURI})
}

func (a *Advisor) SuggestCrops(ctx context.Context, land LandDetails) (*CropSuggestions, error) {
	return flow.Invoke[LandDetails, CropSuggestions](ctx, a.catalog, FlowCropSuggestion, land)
}
