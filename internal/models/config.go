package models

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	// OCR config
	OCR OCRConfig `yaml:"ocr"`

	// AI config
	AI AIConfig `yaml:"ai"`

	// Image preprocessing for vision calls
	Vision VisionConfig `yaml:"vision"`

	// Pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Branches (business units) served by this instance
	Branches []BranchConfig `yaml:"branches"`
}

// OCRConfig configures the Document AI collaborator
type OCRConfig struct {
	ProjectID   string `yaml:"project_id"`
	Location    string `yaml:"location"`     // e.g. "us", "asia-southeast1"
	ProcessorID string `yaml:"processor_id"` // pre-trained expense parser processor
}

// AIConfig configures the generative model clients
type AIConfig struct {
	Gemini GeminiConfig `yaml:"gemini"`
	OpenAI OpenAIConfig `yaml:"openai"`

	// Mode selects the initial pipeline strategy: "vision_first" or "ocr_first"
	Mode string `yaml:"mode"`

	// RefineEnabled turns on the OCR text refinement stage
	RefineEnabled bool `yaml:"refine_enabled"`

	VisionTimeoutMS   int `yaml:"vision_timeout_ms"`
	RefineTimeoutMS   int `yaml:"refine_timeout_ms"`
	ClassifyTimeoutMS int `yaml:"classify_timeout_ms"`
	VisionMaxRetry    int `yaml:"vision_max_retry"`

	// Minimum confidence for accepting an AI category suggestion
	ClassifyMinConfidence float64 `yaml:"classify_min_confidence"`
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string   `yaml:"api_key"`
	Models []string `yaml:"models"` // ordered fallback list
}

// OpenAIConfig for OpenAI/Azure OpenAI (pool fallback)
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

// VisionConfig controls image normalization before vision calls
type VisionConfig struct {
	PreprocessEnabled bool `yaml:"preprocess_enabled"`
	MaxImageEdge      int  `yaml:"max_image_edge"`
	JPEGQuality       int  `yaml:"jpeg_quality"`
}

// PipelineConfig holds empirical pipeline constants. The tolerance formula and
// the entity-item bound come from production tuning; they are configurable
// rather than hard-coded.
type PipelineConfig struct {
	ToleranceFloor    float64 `yaml:"tolerance_floor"`     // default 3.0
	TolerancePct      float64 `yaml:"tolerance_pct"`       // default 0.08
	MaxEntityItems    int     `yaml:"max_entity_items"`    // default 20
	MaxCandidateItems int     `yaml:"max_candidate_items"` // default 40
}

// BranchConfig declares a branch and its business type
type BranchConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"` // COFFEE or RESTAURANT
}
