package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reconcile/internal/contact/models"
	"reconcile/pkg/platform/sentinel"
	txcontext "reconcile/pkg/platform/tx"
)

// SQLiteStore persists contacts in SQLite. Timestamps are stored as unix
// nanoseconds so ordering by created_at is exact.
//
// Open the database with database.OpenSQLite: the store relies on its single
// connection pool so RunInTx excludes every other caller until it commits.
type SQLiteStore struct {
	db    *sql.DB
	clock Clock
}

type SQLiteOption func(*SQLiteStore)

func WithSQLiteClock(clock Clock) SQLiteOption {
	return func(s *SQLiteStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewSQLite(db *sql.DB, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

const sqliteColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

// RunInTx runs fn inside a SQL transaction carried in its context. Nested
// calls join the outer transaction.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	query := `SELECT ` + sqliteColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (email = ? OR phone_number = ?)
		ORDER BY created_at, id`
	contacts, err := s.query(ctx, query, nullString(email), nullString(phone))
	if err != nil {
		return nil, fmt.Errorf("find contacts by email or phone: %w", err)
	}
	return contacts, nil
}

func (s *SQLiteStore) FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	query := `SELECT ` + sqliteColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND linked_id = ?
		ORDER BY created_at, id`
	contacts, err := s.query(ctx, query, primaryID)
	if err != nil {
		return nil, fmt.Errorf("find contacts by linked id: %w", err)
	}
	return contacts, nil
}

func (s *SQLiteStore) FindPrimary(ctx context.Context, id int64) (*models.Contact, error) {
	query := `SELECT ` + sqliteColumns + ` FROM contacts
		WHERE id = ? AND link_precedence = 'primary' AND deleted_at IS NULL`
	row := txcontext.Conn(ctx, s.db).QueryRowContext(ctx, query, id)
	c, err := scanSQLiteContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find primary contact %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find primary contact %d: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStore) ClusterMembers(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	query := `SELECT ` + sqliteColumns + ` FROM contacts
		WHERE deleted_at IS NULL AND (id = ? OR linked_id = ?)
		ORDER BY created_at, id`
	contacts, err := s.query(ctx, query, primaryID, primaryID)
	if err != nil {
		return nil, fmt.Errorf("list cluster members: %w", err)
	}
	return contacts, nil
}

func (s *SQLiteStore) Create(ctx context.Context, contact *models.Contact) (int64, error) {
	if contact == nil {
		return 0, fmt.Errorf("contact is required")
	}
	now := s.clock().UnixNano()
	query := `INSERT INTO contacts (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query,
		nullString(contact.Email),
		nullString(contact.Phone),
		nullInt64(contact.LinkedID),
		string(contact.Precedence),
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("create contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create contact: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, update models.ContactUpdate) error {
	query := `UPDATE contacts SET
			linked_id = COALESCE(?, linked_id),
			link_precedence = COALESCE(?, link_precedence),
			updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query,
		nullInt64(update.LinkedID),
		nullPrecedence(update.Precedence),
		s.clock().UnixNano(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update contact %d: %w", id, err)
	}
	return requireAffected(res, "update contact", id)
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, id int64) error {
	now := s.clock().UnixNano()
	query := `UPDATE contacts SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`
	res, err := txcontext.Conn(ctx, s.db).ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("delete contact %d: %w", id, err)
	}
	return requireAffected(res, "delete contact", id)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := txcontext.Conn(ctx, s.db).
		QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE deleted_at IS NULL`).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := txcontext.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]*models.Contact, 0)
	for rows.Next() {
		c, err := scanSQLiteContact(rows)
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

func scanSQLiteContact(row rowScanner) (*models.Contact, error) {
	var (
		c          models.Contact
		email      sql.NullString
		phone      sql.NullString
		linkedID   sql.NullInt64
		precedence string
		createdAt  int64
		updatedAt  int64
		deletedAt  sql.NullInt64
	)
	if err := row.Scan(&c.ID, &email, &phone, &linkedID, &precedence, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	c.Email = email.String
	c.Phone = phone.String
	c.Precedence = models.Precedence(precedence)
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()
	if linkedID.Valid {
		linked := linkedID.Int64
		c.LinkedID = &linked
	}
	if deletedAt.Valid {
		deleted := time.Unix(0, deletedAt.Int64).UTC()
		c.DeletedAt = &deleted
	}
	return &c, nil
}
