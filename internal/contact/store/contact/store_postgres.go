package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"reconcile/internal/contact/models"
	"reconcile/pkg/platform/sentinel"
	txcontext "reconcile/pkg/platform/tx"
)

// graphLockKey is the advisory lock every identify transaction takes. The
// contact graph has no natural partition: two hints with disjoint values can
// still reach the same cluster, so writers are serialized on one key.
const graphLockKey int64 = 0x636f6e74616374

const defaultMaxAttempts = 3

// PostgreSQL error codes that mean "run the transaction again".
const (
	pqSerializationFailure pq.ErrorCode = "40001"
	pqDeadlockDetected     pq.ErrorCode = "40P01"
)

// PostgresStore persists contacts in PostgreSQL.
type PostgresStore struct {
	db          *sql.DB
	clock       Clock
	maxAttempts int
}

type PostgresOption func(*PostgresStore)

func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMaxAttempts bounds how often RunInTx retries on serialization failure
// or deadlock.
func WithMaxAttempts(n int) PostgresOption {
	return func(s *PostgresStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

const postgresColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

// RunInTx runs fn in a transaction holding the contact graph advisory lock.
// Serialization failures and deadlocks are retried with a fresh transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, graphLockKey); err != nil {
		return fmt.Errorf("acquire contact graph lock: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
}

func (s *PostgresStore) FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	query := `SELECT ` + postgresColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (email = $1 OR phone_number = $2)
		ORDER BY created_at, id`
	contacts, err := s.query(ctx, query, nullString(email), nullString(phone))
	if err != nil {
		return nil, fmt.Errorf("find contacts by email or phone: %w", err)
	}
	return contacts, nil
}

func (s *PostgresStore) FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	query := `SELECT ` + postgresColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND linked_id = $1
		ORDER BY created_at, id`
	contacts, err := s.query(ctx, query, primaryID)
	if err != nil {
		return nil, fmt.Errorf("find contacts by linked id: %w", err)
	}
	return contacts, nil
}

func (s *PostgresStore) FindPrimary(ctx context.Context, id int64) (*models.Contact, error) {
	query := `SELECT ` + postgresColumns + ` FROM contacts
		WHERE id = $1 AND link_precedence = 'primary' AND deleted_at IS NULL`
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query, id)
	c, err := scanPostgresContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find primary contact %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find primary contact %d: %w", id, err)
	}
	return c, nil
}

func (s *PostgresStore) ClusterMembers(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	query := `SELECT ` + postgresColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (id = $1 OR linked_id = $1)
		ORDER BY created_at, id`
	contacts, err := s.query(ctx, query, primaryID)
	if err != nil {
		return nil, fmt.Errorf("list cluster members: %w", err)
	}
	return contacts, nil
}

func (s *PostgresStore) Create(ctx context.Context, contact *models.Contact) (int64, error) {
	if contact == nil {
		return 0, fmt.Errorf("contact is required")
	}
	now := s.now()
	query := `INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`
	var id int64
	err := txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query,
		nullString(contact.Email),
		nullString(contact.Phone),
		nullInt64(contact.LinkedID),
		string(contact.Precedence),
		now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create contact: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, update models.ContactUpdate) error {
	query := `UPDATE contacts SET
			linked_id = COALESCE($1, linked_id),
			link_precedence = COALESCE($2, link_precedence),
			updated_at = $3
		WHERE id = $4 AND deleted_at IS NULL`
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query,
		nullInt64(update.LinkedID),
		nullPrecedence(update.Precedence),
		s.now(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update contact %d: %w", id, err)
	}
	return requireAffected(res, "update contact", id)
}

func (s *PostgresStore) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE contacts SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, s.now(), id)
	if err != nil {
		return fmt.Errorf("delete contact %d: %w", id, err)
	}
	return requireAffected(res, "delete contact", id)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := txcontext.Conn(ctx, s.db).
		QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE deleted_at IS NULL`).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

// now truncates to the column precision so values read back compare equal.
func (s *PostgresStore) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]*models.Contact, 0)
	for rows.Next() {
		c, err := scanPostgresContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contacts, nil
}

func scanPostgresContact(row rowScanner) (*models.Contact, error) {
	var (
		c          models.Contact
		email      sql.NullString
		phone      sql.NullString
		linkedID   sql.NullInt64
		precedence string
		deletedAt  sql.NullTime
	)
	if err := row.Scan(&c.ID, &email, &phone, &linkedID, &precedence, &c.CreatedAt, &c.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Phone = phone.String
	c.Precedence = models.Precedence(precedence)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if linkedID.Valid {
		linked := linkedID.Int64
		c.LinkedID = &linked
	}
	if deletedAt.Valid {
		deleted := deletedAt.Time.UTC()
		c.DeletedAt = &deleted
	}
	return &c, nil
}
