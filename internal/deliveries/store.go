package deliveries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/payhook/internal/database"
)

// Store handles database operations for the delivery audit trail.
type Store struct {
	db *database.DB
}

// NewStore creates a new delivery store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record appends a delivery. ID and ReceivedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, d *Delivery) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (
			id, request_id, provider, event_type, transaction_id,
			succeeded, authenticated, disposition, error, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID,
		d.RequestID,
		d.Provider,
		d.EventType,
		d.TransactionID,
		boolToInt(d.Succeeded),
		boolToInt(d.Authenticated),
		string(d.Disposition),
		d.Error,
		database.FormatTime(d.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}

	return nil
}

// HasConflict reports whether an earlier authenticated delivery for the
// transaction was settled with the opposite outcome. Deliveries the store
// rejected do not count: the purchase may simply not have existed yet.
func (s *Store) HasConflict(ctx context.Context, transactionID string, succeeded bool) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM webhook_deliveries
		WHERE transaction_id = ?
		  AND authenticated = 1
		  AND disposition = ?
		  AND succeeded != ?
	`,
		transactionID,
		string(DispositionSettled),
		boolToInt(succeeded),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking conflicting deliveries: %w", err)
	}

	return n > 0, nil
}

// ListByTransaction returns every delivery for a transaction, oldest first.
func (s *Store) ListByTransaction(ctx context.Context, transactionID string) ([]*Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, provider, event_type, transaction_id,
		       succeeded, authenticated, disposition, error, received_at
		FROM webhook_deliveries
		WHERE transaction_id = ?
		ORDER BY received_at ASC
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// ListRecent returns the most recent deliveries, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, provider, event_type, transaction_id,
		       succeeded, authenticated, disposition, error, received_at
		FROM webhook_deliveries
		ORDER BY received_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// Prune deletes deliveries received before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_deliveries WHERE received_at < ?`,
		database.FormatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning deliveries: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	return n, nil
}

func scanDeliveries(rows *sql.Rows) ([]*Delivery, error) {
	var out []*Delivery

	for rows.Next() {
		var d Delivery
		var succeeded, authenticated int
		var disposition, receivedAt string

		if err := rows.Scan(
			&d.ID,
			&d.RequestID,
			&d.Provider,
			&d.EventType,
			&d.TransactionID,
			&succeeded,
			&authenticated,
			&disposition,
			&d.Error,
			&receivedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}

		d.Succeeded = succeeded == 1
		d.Authenticated = authenticated == 1
		d.Disposition = Disposition(disposition)

		t, err := database.ParseTime(receivedAt)
		if err != nil {
			return nil, err
		}
		d.ReceivedAt = t

		out = append(out, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery rows: %w", err)
	}

	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
