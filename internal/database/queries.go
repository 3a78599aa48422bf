package database

import (
	"context"
	"database/sql"

	"github.com/Miky-131/dXdY-starkex-peripheral/internal/models"
)

// ==================== Deposit Queries ====================

// CreateDeposit records a deposit attempt
func (db *DB) CreateDeposit(ctx context.Context, deposit *models.Deposit) error {
	query := `
		INSERT INTO deposits (
			id, sender, kind, source_token, source_amount, stablecoin_amount,
			stark_key, position_id, status, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.ExecContext(
		ctx, query,
		deposit.ID,
		deposit.Sender,
		deposit.Kind,
		deposit.SourceToken,
		deposit.SourceAmount,
		deposit.StablecoinAmount,
		deposit.StarkKey,
		deposit.PositionID,
		deposit.Status,
		deposit.ErrorMessage,
	)
	return err
}

// GetDeposit retrieves a deposit by ID
func (db *DB) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	var deposit models.Deposit
	query := `
		SELECT id, sender, kind, source_token, source_amount, stablecoin_amount,
		       stark_key, position_id, status, error_message, created_at
		FROM deposits
		WHERE id = $1
	`
	err := db.GetContext(ctx, &deposit, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &deposit, err
}

// GetDepositsBySender retrieves all deposits for a sender
func (db *DB) GetDepositsBySender(ctx context.Context, sender string, limit, offset int) ([]models.Deposit, error) {
	var deposits []models.Deposit
	query := `
		SELECT id, sender, kind, source_token, source_amount, stablecoin_amount,
		       stark_key, position_id, status, error_message, created_at
		FROM deposits
		WHERE sender = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := db.SelectContext(ctx, &deposits, query, sender, limit, offset)
	return deposits, err
}

// GetDepositsByStatus retrieves all deposits with a given status
func (db *DB) GetDepositsByStatus(ctx context.Context, status models.DepositStatus, limit, offset int) ([]models.Deposit, error) {
	var deposits []models.Deposit
	query := `
		SELECT id, sender, kind, source_token, source_amount, stablecoin_amount,
		       stark_key, position_id, status, error_message, created_at
		FROM deposits
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := db.SelectContext(ctx, &deposits, query, status, limit, offset)
	return deposits, err
}

// ==================== Conversion Event Queries ====================

// CreateConversionEvent records a conversion audit event
func (db *DB) CreateConversionEvent(ctx context.Context, event *models.ConversionEvent) error {
	query := `
		INSERT INTO conversion_events (
			id, sender, source_token, source_amount, stablecoin_amount, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := db.ExecContext(
		ctx, query,
		event.ID,
		event.Sender,
		event.SourceToken,
		event.SourceAmount,
		event.StablecoinAmount,
		event.OccurredAt,
	)
	return err
}

// GetConversionEvents retrieves conversion events, newest first
func (db *DB) GetConversionEvents(ctx context.Context, limit, offset int) ([]models.ConversionEvent, error) {
	var events []models.ConversionEvent
	query := `
		SELECT id, sender, source_token, source_amount, stablecoin_amount, occurred_at
		FROM conversion_events
		ORDER BY occurred_at DESC
		LIMIT $1 OFFSET $2
	`
	err := db.SelectContext(ctx, &events, query, limit, offset)
	return events, err
}

// GetConversionEventsBySender retrieves conversion events for a sender
func (db *DB) GetConversionEventsBySender(ctx context.Context, sender string, limit, offset int) ([]models.ConversionEvent, error) {
	var events []models.ConversionEvent
	query := `
		SELECT id, sender, source_token, source_amount, stablecoin_amount, occurred_at
		FROM conversion_events
		WHERE sender = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`
	err := db.SelectContext(ctx, &events, query, sender, limit, offset)
	return events, err
}
