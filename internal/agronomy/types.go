package agronomy

// Question is the input of the crop-guidance and crop-question flows.
type Question struct {
	Query string `json:"query"`
}

// Photo is the input of the single-image flows.
type Photo struct {
	PhotoDataURI string `json:"photoDataUri"`
}

// LandDetails is the input of the crop-suggestion flow.
type LandDetails struct {
	PhotoDataURI     string `json:"photoDataUri"`
	LandSize         string `json:"landSize"`
	IrrigationSystem string `json:"irrigationSystem"`
}

// Guidance is structured cultivation advice.
type Guidance struct {
	Introduction     string            `json:"introduction"`
	CultivationSteps []CultivationStep `json:"cultivationSteps"`
	Irrigation       Recommendation    `json:"irrigation"`
	Fertilizers      Recommendation    `json:"fertilizers"`
	Pesticides       Recommendation    `json:"pesticides"`
}

type CultivationStep struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Points      []string `json:"points"`
}

type Recommendation struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// Answer is a free-form reply to a farmer's question.
type Answer struct {
	Answer string `json:"answer"`
}

// Diagnosis is the result of the disease-detection flow.
type Diagnosis struct {
	DiseaseIdentification DiseaseIdentification `json:"diseaseIdentification"`
	SuggestedRemedies     string                `json:"suggestedRemedies"`
}

type DiseaseIdentification struct {
	DiseaseDetected bool   `json:"diseaseDetected"`
	DiseaseName     string `json:"diseaseName"`
	// ConfidenceLevel is within [0,1] when the model reports one.
	ConfidenceLevel *float64 `json:"confidenceLevel,omitempty"`
}

// GrowthAnalysis is the result of the growth-stage flow.
type GrowthAnalysis struct {
	GrowthStage string `json:"growthStage"`
	Analysis    string `json:"analysis"`
}

// VegetationReport is the result of the vegetation-analysis flow. All
// indices are model estimates, not measurements.
type VegetationReport struct {
	VegetationIndices VegetationIndices `json:"vegetationIndices"`
	SoilIndices       SoilIndices       `json:"soilIndices"`
	Analysis          string            `json:"analysis"`
	NoiseRemoval      string            `json:"noiseRemoval"`
	Segmentation      string            `json:"segmentation"`
}

type VegetationIndices struct {
	NDVI               float64 `json:"ndvi"`
	SAVI               float64 `json:"savi"`
	ChlorophyllContent float64 `json:"chlorophyllContent"`
	MoistureLevel      float64 `json:"moistureLevel"`
}

type SoilIndices struct {
	BI float64 `json:"bi"`
	CI float64 `json:"ci"`
}

// CropSuggestions is the result of the crop-suggestion flow.
type CropSuggestions struct {
	Suggestions []CropSuggestion `json:"suggestions"`
}

type CropSuggestion struct {
	CropName       string `json:"cropName"`
	Reasoning      string `json:"reasoning"`
	EstimatedYield string `json:"estimatedYield"`
}
