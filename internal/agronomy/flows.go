// Package agronomy defines the crop advisory flows and a typed facade over
// them.
package agronomy

import (
	"fmt"

	"cropguide/backend/internal/flow"
	"cropguide/backend/internal/model"
	"cropguide/backend/internal/schema"
)

// Flow names.
const (
	FlowCropGuidance       = "crop-guidance"
	FlowCropQuestion       = "crop-question"
	FlowDiseaseDetection   = "disease-detection"
	FlowGrowthStage        = "growth-stage"
	FlowVegetationAnalysis = "vegetation-analysis"
	FlowCropSuggestion     = "crop-suggestion"
)

const photoDescription = "A photo, as a data URI: data:<mimetype>;base64,<encoded_data>."

func photoField(description string) schema.Field {
	return schema.String("photoDataUri", description).WithFormat(schema.FormatImage)
}

func questionShape(name string) *schema.Shape {
	return schema.New(name,
		schema.String("query", "The farmer's question about crop cultivation.").WithMinLength(1),
	)
}

func recommendationBlock(name, description string) schema.Field {
	return schema.Object(name, description,
		schema.String("summary", "A short summary of the recommendation."),
		schema.Array("recommendations", "Concrete, actionable recommendations.",
			schema.String("", "A single recommendation.")),
	)
}

// Definitions returns every flow definition in catalog order.
func Definitions() []flow.Definition {
	return []flow.Definition{
		{
			Name:        FlowCropGuidance,
			Description: "Structured cultivation guidance for a farmer's question.",
			Input:       questionShape("cropGuidanceInput"),
			Output: schema.New("cropGuidanceOutput",
				schema.String("introduction", "A short introduction to the answer."),
				schema.Array("cultivationSteps", "Ordered cultivation steps.",
					schema.Object("", "A cultivation step.",
						schema.String("title", "The step title."),
						schema.String("description", "An optional explanation of the step.").Optional(),
						schema.Array("points", "The key points of the step.", schema.String("", "A key point.")),
					)),
				recommendationBlock("irrigation", "Irrigation recommendations."),
				recommendationBlock("fertilizers", "Fertilizer recommendations."),
				recommendationBlock("pesticides", "Pesticide and pest control recommendations."),
			),
			System: "You are an agronomist who gives farmers practical, structured cultivation guidance.",
			Prompt: `A farmer asks: {{query}}

Answer with a short introduction, the cultivation steps in the order they
should be carried out (each with a title and its key points), and separate
irrigation, fertilizer and pesticide recommendations. Each recommendation
block needs a summary and a list of concrete recommendations.`,
		},
		{
			Name:        FlowCropQuestion,
			Description: "A free-form answer to a crop cultivation question.",
			Input:       questionShape("cropQuestionInput"),
			Output: schema.New("cropQuestionOutput",
				schema.String("answer", "The answer to the farmer's question."),
			),
			System: "You are an assistant that helps farmers with crop cultivation.",
			Prompt: `A farmer has asked: {{query}}

Give a helpful, informative answer that improves their farming practices and
yields.`,
		},
		{
			Name:        FlowDiseaseDetection,
			Description: "Detects plant disease in a crop photo and suggests remedies.",
			Input: schema.New("diseaseDetectionInput",
				photoField("A photo of the plant. "+photoDescription),
			),
			Output: schema.New("diseaseDetectionOutput",
				schema.Object("diseaseIdentification", "The disease identification.",
					schema.Boolean("diseaseDetected", "Whether a disease is visible in the photo."),
					schema.String("diseaseName", "The name of the disease, empty when none was found."),
					schema.Number("confidenceLevel", "Confidence of the identification, from 0 to 1.").Optional().WithRange(0, 1),
				),
				schema.String("suggestedRemedies", "Remedies for the identified disease."),
			),
			System: "You are a plant pathologist who identifies crop diseases from photos.",
			Prompt: `Inspect the plant in the photo and decide whether it shows signs of
disease. If it does, name the disease, give your confidence from 0 to 1 and
suggest remedies.

Photo: {{media photoDataUri}}`,
		},
		{
			Name:        FlowGrowthStage,
			Description: "Estimates the growth stage and health of a crop from a photo.",
			Input: schema.New("growthStageInput",
				photoField("A photo of the crop. "+photoDescription),
			),
			Output: schema.New("growthStageOutput",
				schema.String("growthStage", "The growth stage, such as germination, vegetative, flowering or harvest-ready."),
				schema.String("analysis", "A brief analysis of the crop's health at this stage."),
			),
			System: "You are an agronomist who assesses crop development from photos.",
			Prompt: `Determine the growth stage of the crop in the photo and give a brief
analysis of its health at that stage.

Photo: {{media photoDataUri}}`,
		},
		{
			Name:        FlowVegetationAnalysis,
			Description: "Estimates vegetation and soil indices from a field photo.",
			Input: schema.New("vegetationAnalysisInput",
				photoField("A photo of the crop field. "+photoDescription),
			),
			Output: schema.New("vegetationAnalysisOutput",
				schema.Object("vegetationIndices", "Estimated vegetation indices.",
					schema.Number("ndvi", "Normalized Difference Vegetation Index, from -1 to 1.").WithRange(-1, 1),
					schema.Number("savi", "Soil-Adjusted Vegetation Index."),
					schema.Number("chlorophyllContent", "Chlorophyll content, as mg/m^2 or an index value."),
					schema.Number("moistureLevel", "Moisture level, as a percentage or relative index."),
				),
				schema.Object("soilIndices", "Estimated soil indices.",
					schema.Number("bi", "Brightness Index of visible soil."),
					schema.Number("ci", "Color Index of visible soil."),
				),
				schema.String("analysis", "A summary of vegetation and soil health."),
				schema.String("noiseRemoval", "How noise such as atmospheric effects was accounted for."),
				schema.String("segmentation", "How vegetation was separated from soil and other objects."),
			),
			System: "You are an expert in agricultural remote sensing and image analysis.",
			Prompt: `Analyze the photo of a crop field:
1. Estimate NDVI and SAVI.
2. Estimate chlorophyll content and moisture level.
3. Estimate the Brightness Index (BI) and Color Index (CI) of visible soil.
4. Describe how you would remove noise such as atmospheric or sensor effects.
5. Describe how you would segment vegetation from soil and other objects.
6. Summarize crop and soil health from these estimates.

Photo: {{media photoDataUri}}`,
		},
		{
			Name:        FlowCropSuggestion,
			Description: "Suggests crops for a piece of land from a photo, its size and irrigation.",
			Input: schema.New("cropSuggestionInput",
				photoField("A photo of the land. "+photoDescription),
				schema.String("landSize", "The size of the land in acres.").WithMinLength(1),
				schema.String("irrigationSystem", "The irrigation system in use.").WithMinLength(1),
			),
			Output: schema.New("cropSuggestionOutput",
				schema.Array("suggestions", "Crop suggestions.",
					schema.Object("", "A crop suggestion.",
						schema.String("cropName", "The crop name."),
						schema.String("reasoning", "Why the crop suits this land."),
						schema.String("estimatedYield", "The estimated yield for the given land size."),
					)),
			),
			System: "You are an expert agronomist.",
			Prompt: `Suggest crops for the land in the photo. Look for terrain, soil color
and texture, water sources and existing vegetation.

Land size: {{landSize}} acres
Irrigation system: {{irrigationSystem}}

Give 3 suggestions, each with the crop name, detailed reasoning and an
estimated yield for this land size.

Photo: {{media photoDataUri}}`,
		},
	}
}

// NewCatalog compiles every flow against client.
func NewCatalog(client model.Client, opts ...flow.Option) (*flow.Catalog, error) {
	catalog, err := flow.NewCatalog()
	if err != nil {
		return nil, err
	}
	for _, def := range Definitions() {
		f, err := flow.New(def, client, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to compile flow %s: %w", def.Name, err)
		}
		if err := catalog.Register(f); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}
