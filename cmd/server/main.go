package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chonlathan-cloud/receipt-ocr-service/api"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/ai"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/auth"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/categorize"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/db"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/ocr"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/pipeline"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/storage"
	"github.com/chonlathan-cloud/receipt-ocr-service/internal/validate"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize JWT
	auth.Init()
	log.Println("JWT authentication initialized")

	// Initialize database connection pool
	if err := db.Init(); err != nil {
		log.Printf("Warning: Database not available: %v", err)
		log.Println("Running in extraction-only mode (no persistence)")
	} else {
		defer db.Close()
		log.Println("Database connection pool initialized")
	}

	// Initialize MinIO storage
	if err := storage.Init(); err != nil {
		log.Printf("Warning: MinIO storage not available: %v", err)
		log.Println("Images will not be stored")
	} else {
		log.Println("MinIO storage initialized")
	}

	ctx := context.Background()

	// Build the ordered model client pool: Gemini models first, OpenAI last
	var providers []ai.Provider
	if config.AI.Gemini.APIKey != "" {
		client, err := ai.NewGeminiClient(ctx, config.AI.Gemini.APIKey)
		if err != nil {
			log.Printf("Warning: Gemini client unavailable: %v", err)
		} else {
			for _, model := range config.AI.Gemini.Models {
				providers = append(providers, ai.NewGeminiProvider(client, model))
			}
		}
	}
	if config.AI.OpenAI.APIKey != "" {
		providers = append(providers, ai.NewOpenAIProvider(config.AI.OpenAI.APIKey, config.AI.OpenAI.BaseURL, config.AI.OpenAI.Model))
	}

	var extractor *ai.Extractor
	if len(providers) > 0 {
		extractor = ai.NewExtractor(ai.NewPool(providers...))
		log.Printf("Model client pool initialized with %d provider(s)", len(providers))
	} else {
		log.Println("Warning: no AI providers configured - vision and refinement stages disabled")
	}

	// OCR collaborator (Document AI)
	var ocrEngine ocr.Engine
	if engine, err := ocr.NewDocumentAI(ctx, config.OCR); err != nil {
		log.Printf("Warning: Document AI not available: %v", err)
	} else {
		ocrEngine = engine
		log.Println("Document AI client initialized")
	}

	// Categorization engine: keyword rules plus optional AI fallback
	var classifier categorize.Classifier
	if extractor != nil {
		classifier = pipeline.NewAIClassifier(extractor, time.Duration(config.AI.ClassifyTimeoutMS)*time.Millisecond)
	}
	engine := categorize.NewEngine(classifier, config.AI.ClassifyMinConfidence)

	validator := validate.New(engine, config.Pipeline)
	preprocessor := ocr.NewPreprocessor(config.Vision)

	var pipelineExtractor pipeline.Extractor
	if extractor != nil {
		pipelineExtractor = extractor
	}
	orchestrator := pipeline.New(pipelineExtractor, ocrEngine, preprocessor, validator, engine, config.AI, config.Pipeline)

	handler := api.NewHandler(config, orchestrator)
	router := handler.SetupRoutes()

	// Wrap router with JWT middleware (skips /health and /api/login)
	protectedRouter := auth.JWTMiddleware(router)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	log.Printf("Starting Receipt OCR Service v%s on %s", api.Version, addr)
	log.Printf("Pipeline mode: %s (refine: %v)", config.AI.Mode, config.AI.RefineEnabled)
	log.Printf("Branches: %d", len(config.Branches))
	log.Printf("Database: %v", db.Pool != nil)
	log.Printf("Storage: %v", storage.Client != nil)
	log.Printf("Endpoints:")
	log.Printf("  POST http://%s/api/login                 - Authenticate", addr)
	log.Printf("  POST http://%s/api/receipts/upload       - Upload and extract a receipt (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/receipts              - List branch receipts (requires JWT)", addr)
	log.Printf("  GET  http://%s/api/receipts/{id}         - Get one receipt (requires JWT)", addr)
	log.Printf("  PUT  http://%s/api/receipts/{id}/verify  - Verify a draft (requires JWT)", addr)
	log.Printf("  GET  http://%s/health                    - Health check", addr)

	if err := http.ListenAndServe(addr, protectedRouter); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config models.Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables if present
	if port := os.Getenv("PORT"); port != "" {
		fmt.Sscanf(port, "%d", &config.Port)
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.Gemini.APIKey = apiKey
	}
	if modelList := os.Getenv("GEMINI_MODELS"); modelList != "" {
		config.AI.Gemini.Models = nil
		for _, model := range strings.Split(modelList, ",") {
			if model = strings.TrimSpace(model); model != "" {
				config.AI.Gemini.Models = append(config.AI.Gemini.Models, model)
			}
		}
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.AI.OpenAI.Model = model
	}
	if mode := os.Getenv("PIPELINE_MODE"); mode != "" {
		config.AI.Mode = mode
	}
	if projectID := os.Getenv("DOCAI_PROJECT_ID"); projectID != "" {
		config.OCR.ProjectID = projectID
	}
	if processorID := os.Getenv("DOCAI_PROCESSOR_ID"); processorID != "" {
		config.OCR.ProcessorID = processorID
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *models.Config) {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.AI.Mode == "" {
		config.AI.Mode = "vision_first"
	}
	if config.AI.VisionTimeoutMS == 0 {
		config.AI.VisionTimeoutMS = 45000
	}
	if config.AI.RefineTimeoutMS == 0 {
		config.AI.RefineTimeoutMS = 30000
	}
	if config.AI.ClassifyTimeoutMS == 0 {
		config.AI.ClassifyTimeoutMS = 10000
	}
	if config.AI.ClassifyMinConfidence == 0 {
		config.AI.ClassifyMinConfidence = 0.5
	}
	if config.Pipeline.ToleranceFloor == 0 {
		config.Pipeline.ToleranceFloor = 3.0
	}
	if config.Pipeline.TolerancePct == 0 {
		config.Pipeline.TolerancePct = 0.08
	}
	if config.Pipeline.MaxEntityItems == 0 {
		config.Pipeline.MaxEntityItems = 20
	}
	if config.Pipeline.MaxCandidateItems == 0 {
		config.Pipeline.MaxCandidateItems = 40
	}
}
