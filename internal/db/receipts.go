package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

// SaveReceipt stores a freshly extracted draft. The record's ID must already
// be assigned; structured fields (items, flags, timings) go to JSONB.
func SaveReceipt(ctx context.Context, record *models.ReceiptRecord) error {
	items, err := json.Marshal(record.Draft.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}
	flags, err := json.Marshal(record.Draft.QualityFlags)
	if err != nil {
		return fmt.Errorf("failed to encode quality flags: %w", err)
	}
	timings, err := json.Marshal(record.Draft.Timings)
	if err != nil {
		return fmt.Errorf("failed to encode timings: %w", err)
	}

	query := `
		INSERT INTO receipts (
			id, branch_id, user_id, status, image_url,
			merchant, receipt_date, total, pipeline_path,
			ai_refined, needs_review, quality_flags, items, timings
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`

	return Pool.QueryRow(ctx, query,
		record.ID, record.BranchID, record.UserID, string(record.Status), record.ImageURL,
		record.Draft.Header.Merchant, record.Draft.Header.Date, record.Draft.Header.Total,
		string(record.Draft.PipelinePath),
		record.Draft.AIRefined, record.Draft.NeedsReview, flags, items, timings,
	).Scan(&record.CreatedAt)
}

// GetReceiptByID loads one receipt with its full draft payload.
func GetReceiptByID(ctx context.Context, receiptID string) (*models.ReceiptRecord, error) {
	query := `
		SELECT id, branch_id, user_id, status, COALESCE(image_url, ''),
		       COALESCE(merchant, ''), COALESCE(receipt_date::text, ''), COALESCE(total, 0),
		       COALESCE(pipeline_path, ''), ai_refined, needs_review,
		       COALESCE(quality_flags, '[]'::jsonb), COALESCE(items, '[]'::jsonb),
		       COALESCE(timings, '{}'::jsonb),
		       created_at, verified_at, COALESCE(verified_by, '')
		FROM receipts
		WHERE id = $1
	`

	var record models.ReceiptRecord
	var status, path string
	var flags, items, timings []byte
	err := Pool.QueryRow(ctx, query, receiptID).Scan(
		&record.ID, &record.BranchID, &record.UserID, &status, &record.ImageURL,
		&record.Draft.Header.Merchant, &record.Draft.Header.Date, &record.Draft.Header.Total,
		&path, &record.Draft.AIRefined, &record.Draft.NeedsReview,
		&flags, &items, &timings,
		&record.CreatedAt, &record.VerifiedAt, &record.VerifiedBy,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.ReceiptStatus(status)
	record.Draft.PipelinePath = models.PipelinePath(path)
	if err := json.Unmarshal(flags, &record.Draft.QualityFlags); err != nil {
		return nil, fmt.Errorf("failed to decode quality flags: %w", err)
	}
	if err := json.Unmarshal(items, &record.Draft.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	if err := json.Unmarshal(timings, &record.Draft.Timings); err != nil {
		return nil, fmt.Errorf("failed to decode timings: %w", err)
	}
	return &record, nil
}

// ListReceipts returns recent receipts for a branch, newest first. Items are
// included; list consumers render summaries from the header fields.
func ListReceipts(ctx context.Context, branchID string, limit int) ([]models.ReceiptRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, branch_id, user_id, status, COALESCE(image_url, ''),
		       COALESCE(merchant, ''), COALESCE(receipt_date::text, ''), COALESCE(total, 0),
		       COALESCE(pipeline_path, ''), ai_refined, needs_review,
		       COALESCE(quality_flags, '[]'::jsonb), COALESCE(items, '[]'::jsonb),
		       created_at, verified_at, COALESCE(verified_by, '')
		FROM receipts
		WHERE branch_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := Pool.Query(ctx, query, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ReceiptRecord
	for rows.Next() {
		var record models.ReceiptRecord
		var status, path string
		var flags, items []byte
		err := rows.Scan(
			&record.ID, &record.BranchID, &record.UserID, &status, &record.ImageURL,
			&record.Draft.Header.Merchant, &record.Draft.Header.Date, &record.Draft.Header.Total,
			&path, &record.Draft.AIRefined, &record.Draft.NeedsReview,
			&flags, &items,
			&record.CreatedAt, &record.VerifiedAt, &record.VerifiedBy,
		)
		if err != nil {
			return nil, err
		}
		record.Status = models.ReceiptStatus(status)
		record.Draft.PipelinePath = models.PipelinePath(path)
		if err := json.Unmarshal(flags, &record.Draft.QualityFlags); err != nil {
			return nil, fmt.Errorf("failed to decode quality flags: %w", err)
		}
		if err := json.Unmarshal(items, &record.Draft.Items); err != nil {
			return nil, fmt.Errorf("failed to decode items: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// VerifyReceipt replaces the draft items with the user-confirmed set and
// promotes the receipt to VERIFIED.
func VerifyReceipt(ctx context.Context, receiptID string, items []models.LineItemDraft, total decimal.Decimal, verifiedBy string) error {
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	query := `
		UPDATE receipts
		SET items = $2, total = $3, status = $4,
		    needs_review = false, verified_at = $5, verified_by = $6
		WHERE id = $1 AND status = $7
	`

	tag, err := Pool.Exec(ctx, query,
		receiptID, encoded, total, string(models.StatusVerified),
		time.Now().UTC(), verifiedBy, string(models.StatusDraft),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("receipt %s not found or not in draft status", receiptID)
	}
	return nil
}
