package agronomy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"cropguide/backend/internal/flow"
	"cropguide/backend/internal/schema"
)

// FarmAnalysisName identifies farm analyses in errors, history and routes.
const FarmAnalysisName = "farm-analysis"

// NoCropPhoto is reported for a crop submitted without a photo.
const NoCropPhoto = "no photo provided"

// FarmDetails describes a farm: its land and the crops growing on it.
type FarmDetails struct {
	LandSize         string     `json:"landSize"`
	IrrigationSystem string     `json:"irrigationSystem"`
	LandPhotoDataURI string     `json:"landPhotoDataUri,omitempty"`
	Crops            []FarmCrop `json:"crops"`
}

type FarmCrop struct {
	Name         string `json:"name"`
	PhotoDataURI string `json:"photoDataUri,omitempty"`
}

// FarmReport is the result of AnalyzeFarm. Each crop carries either its
// growth analysis or the error that prevented it.
type FarmReport struct {
	Crops           []CropReport     `json:"crops"`
	Suggestions     *CropSuggestions `json:"suggestions,omitempty"`
	SuggestionError string           `json:"suggestionError,omitempty"`
}

type CropReport struct {
	Name   string          `json:"name"`
	Growth *GrowthAnalysis `json:"growth,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// FarmShape is the input shape of a farm analysis.
var FarmShape = schema.New("farmDetails",
	schema.String("landSize", "The size of the land in acres.").WithMinLength(1),
	schema.String("irrigationSystem", "The irrigation system in use.").WithMinLength(1),
	schema.String("landPhotoDataUri", "An optional photo of the land. "+photoDescription).
		Optional().WithFormat(schema.FormatImage),
	schema.Array("crops", "The crops growing on the farm.",
		schema.Object("", "A crop.",
			schema.String("name", "The crop name.").WithMinLength(1),
			photoField("An optional photo of the crop; crops without one are reported but not analyzed. "+photoDescription).
				Optional(),
		)).WithItems(1, -1),
)

// ValidateFarm checks details against FarmShape.
func ValidateFarm(details FarmDetails) error {
	b, err := json.Marshal(details)
	if err != nil {
		return err
	}
	var record any
	if err := json.Unmarshal(b, &record); err != nil {
		return err
	}
	if _, err := FarmShape.Validate(record); err != nil {
		var verr *schema.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		return &flow.InputValidationError{Flow: FarmAnalysisName, Err: verr}
	}
	return nil
}

// AnalyzeFarm runs the growth-stage flow for every crop on the advisor's
// worker pool and, when a land photo is present, the crop-suggestion flow.
// A failure of one analysis never cancels the others.
func (a *Advisor) AnalyzeFarm(ctx context.Context, details FarmDetails) (*FarmReport, error) {
	if err := ValidateFarm(details); err != nil {
		return nil, err
	}

	report := &FarmReport{Crops: make([]CropReport, len(details.Crops))}
	var wg sync.WaitGroup

	submit := func(task func()) {
		wg.Add(1)
		if err := a.pool.Submit(func() {
			defer wg.Done()
			task()
		}); err != nil {
			wg.Done()
			a.logger.Error("failed to schedule farm analysis task", "error", err)
			// Run inline so the caller still gets a result.
			task()
		}
	}

	for i, crop := range details.Crops {
		report.Crops[i].Name = crop.Name
		if crop.PhotoDataURI == "" {
			report.Crops[i].Error = NoCropPhoto
			continue
		}
		submit(func() {
			growth, err := a.AnalyzeGrowth(ctx, crop.PhotoDataURI)
			if err != nil {
				a.logger.Error("crop analysis failed", "crop", crop.Name, "error", err)
				report.Crops[i].Error = err.Error()
				return
			}
			report.Crops[i].Growth = growth
		})
	}

	if details.LandPhotoDataURI != "" {
		submit(func() {
			suggestions, err := a.SuggestCrops(ctx, LandDetails{
				PhotoDataURI:     details.LandPhotoDataURI,
				LandSize:         details.LandSize,
				IrrigationSystem: details.IrrigationSystem,
			})
			if err != nil {
				a.logger.Error("crop suggestion failed", "error", err)
				report.SuggestionError = err.Error()
				return
			}
			report.Suggestions = suggestions
		})
	}

	wg.Wait()
	return report, nil
}
