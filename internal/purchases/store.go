// Package purchases implements the purchase state transitions that gateway
// webhooks drive.
package purchases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/learnhub/payhook/internal/database"
)

var (
	// ErrUnknownTransaction is returned when no purchase has the transaction id.
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrConflictingOutcome is returned when a purchase already settled one
	// way is asked to settle the other way.
	ErrConflictingOutcome = errors.New("purchase already settled with a different outcome")

	// ErrDuplicatePurchase is returned by Create for an existing transaction id.
	ErrDuplicatePurchase = errors.New("purchase already exists")
)

// Status is the settlement state of a purchase.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Purchase is a course purchase awaiting or past settlement.
type Purchase struct {
	TransactionID    string
	UserID           string
	CourseID         string
	Amount           string
	Currency         string
	Status           Status
	ProviderResponse map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
	SettledAt        *time.Time
}

// Store is the SQLite purchase store. A purchase moves from pending to
// confirmed or failed exactly once; the first settlement wins.
type Store struct {
	db *database.DB
}

// NewStore creates a new purchase store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a pending purchase.
func (s *Store) Create(ctx context.Context, p *Purchase) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Status = StatusPending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (transaction_id, user_id, course_id, amount, currency, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.TransactionID,
		p.UserID,
		p.CourseID,
		p.Amount,
		p.Currency,
		string(p.Status),
		database.FormatTime(p.CreatedAt),
		database.FormatTime(p.UpdatedAt),
	)
	if err != nil {
		if database.IsUniqueError(database.ClassifyError(err)) {
			return fmt.Errorf("%w: %s", ErrDuplicatePurchase, p.TransactionID)
		}
		return fmt.Errorf("inserting purchase: %w", err)
	}

	return nil
}

// Get retrieves a purchase by transaction id.
func (s *Store) Get(ctx context.Context, transactionID string) (*Purchase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, user_id, course_id, amount, currency, status,
		       provider_response, created_at, updated_at, settled_at
		FROM purchases
		WHERE transaction_id = ?
	`, transactionID)

	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, transactionID)
		}
		return nil, fmt.Errorf("getting purchase: %w", err)
	}

	return p, nil
}

// ConfirmPurchase marks the purchase confirmed and grants the course
// enrollment. Confirming an already confirmed purchase is a no-op.
func (s *Store) ConfirmPurchase(ctx context.Context, transactionID string, providerResponse map[string]any) error {
	return s.settle(ctx, transactionID, StatusConfirmed, providerResponse)
}

// FailPurchase marks the purchase failed. Failing an already failed purchase
// is a no-op.
func (s *Store) FailPurchase(ctx context.Context, transactionID string, providerResponse map[string]any) error {
	return s.settle(ctx, transactionID, StatusFailed, providerResponse)
}

// Enrolled reports whether userID holds an enrollment for courseID.
func (s *Store) Enrolled(ctx context.Context, userID, courseID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE user_id = ? AND course_id = ?`,
		userID, courseID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking enrollment: %w", err)
	}
	return n > 0, nil
}

// CountEnrollments returns the number of enrollments granted by a transaction.
func (s *Store) CountEnrollments(ctx context.Context, transactionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE transaction_id = ?`, transactionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting enrollments: %w", err)
	}
	return n, nil
}

func (s *Store) settle(ctx context.Context, transactionID string, target Status, providerResponse map[string]any) error {
	responseJSON, err := json.Marshal(providerResponse)
	if err != nil {
		return fmt.Errorf("marshaling provider response: %w", err)
	}

	return s.db.Transaction(ctx, func(tx *database.Tx) error {
		var current, userID, courseID string
		err := tx.QueryRowContext(ctx,
			`SELECT status, user_id, course_id FROM purchases WHERE transaction_id = ?`,
			transactionID,
		).Scan(&current, &userID, &courseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrUnknownTransaction, transactionID)
			}
			return fmt.Errorf("reading purchase: %w", err)
		}

		switch Status(current) {
		case target:
			return nil
		case StatusPending:
		default:
			return fmt.Errorf("%w: %s is %s", ErrConflictingOutcome, transactionID, current)
		}

		now := database.Now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE purchases
			SET status = ?, provider_response = ?, updated_at = ?, settled_at = ?
			WHERE transaction_id = ? AND status = ?
		`, string(target), string(responseJSON), now, now, transactionID, string(StatusPending)); err != nil {
			return fmt.Errorf("updating purchase: %w", err)
		}

		if target != StatusConfirmed {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO enrollments (user_id, course_id, transaction_id, granted_at)
			VALUES (?, ?, ?, ?)
		`, userID, courseID, transactionID, now); err != nil {
			return fmt.Errorf("granting enrollment: %w", database.ClassifyError(err))
		}

		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (*Purchase, error) {
	var p Purchase
	var status, createdAt, updatedAt string
	var response, settledAt sql.NullString

	if err := row.Scan(
		&p.TransactionID,
		&p.UserID,
		&p.CourseID,
		&p.Amount,
		&p.Currency,
		&status,
		&response,
		&createdAt,
		&updatedAt,
		&settledAt,
	); err != nil {
		return nil, err
	}

	p.Status = Status(status)

	if response.Valid && response.String != "" {
		if err := json.Unmarshal([]byte(response.String), &p.ProviderResponse); err != nil {
			return nil, fmt.Errorf("unmarshaling provider response: %w", err)
		}
	}

	var err error
	if p.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = database.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if settledAt.Valid {
		t, err := database.ParseTime(settledAt.String)
		if err != nil {
			return nil, err
		}
		p.SettledAt = &t
	}

	return &p, nil
}
