package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	documentai "google.golang.org/api/documentai/v1"
	"google.golang.org/api/option"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

// Engine is the OCR collaborator. The pipeline only needs full text and
// typed entities; everything else Document AI returns is dropped here.
type Engine interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (*models.OCRResult, error)
}

// DocumentAI runs receipts through a Google Document AI processor.
type DocumentAI struct {
	service       *documentai.Service
	processorName string
}

// NewDocumentAI creates the client. Credentials come from the standard
// GOOGLE_APPLICATION_CREDENTIALS chain; the endpoint follows the processor
// location because Document AI is a regional API.
func NewDocumentAI(ctx context.Context, cfg models.OCRConfig) (*DocumentAI, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("documentai: project_id and processor_id are required")
	}
	location := cfg.Location
	if location == "" {
		location = "us"
	}

	endpoint := fmt.Sprintf("https://%s-documentai.googleapis.com/", location)
	service, err := documentai.NewService(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai: failed to create service: %w", err)
	}

	return &DocumentAI{
		service:       service,
		processorName: fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, location, cfg.ProcessorID),
	}, nil
}

// Recognize sends the document inline and maps the response to the internal
// OCR result. Entity properties are flattened one level so that line_item
// children (description, amount) surface as their own entities.
func (d *DocumentAI) Recognize(ctx context.Context, data []byte, mimeType string) (*models.OCRResult, error) {
	request := &documentai.GoogleCloudDocumentaiV1ProcessRequest{
		RawDocument: &documentai.GoogleCloudDocumentaiV1RawDocument{
			Content:  base64.StdEncoding.EncodeToString(data),
			MimeType: mimeType,
		},
	}

	response, err := d.service.Projects.Locations.Processors.Process(d.processorName, request).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("documentai: process failed: %w", err)
	}
	if response.Document == nil {
		return nil, fmt.Errorf("documentai: empty document in response")
	}

	result := &models.OCRResult{Text: response.Document.Text}
	for _, entity := range response.Document.Entities {
		result.Entities = append(result.Entities, mapEntity(entity))
		for _, property := range entity.Properties {
			child := mapEntity(property)
			if !strings.Contains(child.Type, "/") {
				child.Type = entity.Type + "/" + child.Type
			}
			result.Entities = append(result.Entities, child)
		}
	}
	for i, page := range response.Document.Pages {
		p := models.Page{PageNumber: i + 1}
		if page.Dimension != nil {
			p.Width = page.Dimension.Width
			p.Height = page.Dimension.Height
		}
		result.Pages = append(result.Pages, p)
	}
	return result, nil
}

func mapEntity(entity *documentai.GoogleCloudDocumentaiV1DocumentEntity) models.Entity {
	mapped := models.Entity{
		Type:        entity.Type,
		MentionText: entity.MentionText,
		Confidence:  entity.Confidence,
	}
	if entity.NormalizedValue != nil {
		mapped.NormalizedValue = entity.NormalizedValue.Text
	}
	return mapped
}
