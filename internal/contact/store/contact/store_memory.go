package contact

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reconcile/internal/contact/models"
	"reconcile/pkg/platform/sentinel"
)

// Clock returns the current time. Injected for deterministic tests.
type Clock func() time.Time

// InMemoryStore keeps contacts in an id-keyed arena. Links between records are ids,
// never pointers, so a record can be re-pointed without touching its peers.
//
// RunInTx admits one transaction at a time and records an undo journal; a
// failing callback has every create and update it made reverted before the
// next transaction starts.
type InMemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	contacts map[int64]*models.Contact
	nextID   int64
	clock    Clock
}

type InMemoryOption func(*InMemoryStore)

// WithClock sets the clock used for CreatedAt and UpdatedAt.
func WithClock(clock Clock) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		contacts: make(map[int64]*models.Contact),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

type journalKey struct{}

// journal holds what a transaction needs to undo: ids it created and the
// first pre-image of every record it updated.
type journal struct {
	created []int64
	before  map[int64]*models.Contact
}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(journalKey{}).(*journal)
	return j
}

// RunInTx runs fn as one transaction. Nested calls join the outer one.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if journalFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{before: make(map[int64]*models.Contact)}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		s.rollback(j)
		return err
	}
	return nil
}

func (s *InMemoryStore) rollback(j *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range j.created {
		delete(s.contacts, id)
	}
	for id, c := range j.before {
		s.contacts[id] = c
	}
}

func (s *InMemoryStore) FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find contacts by email or phone: %w", err)
	}
	hint := models.Hint{Email: email, Phone: phone}
	return s.collect(func(c *models.Contact) bool {
		return c.MatchesAny(hint)
	}), nil
}

func (s *InMemoryStore) FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find contacts by linked id: %w", err)
	}
	return s.collect(func(c *models.Contact) bool {
		return c.LinkedID != nil && *c.LinkedID == primaryID
	}), nil
}

func (s *InMemoryStore) FindPrimary(ctx context.Context, id int64) (*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find primary contact: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok || c.IsDeleted() || !c.IsPrimary() {
		return nil, fmt.Errorf("find primary contact %d: %w", id, sentinel.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *InMemoryStore) ClusterMembers(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list cluster members: %w", err)
	}
	return s.collect(func(c *models.Contact) bool {
		return c.ID == primaryID || (c.LinkedID != nil && *c.LinkedID == primaryID)
	}), nil
}

func (s *InMemoryStore) Create(ctx context.Context, contact *models.Contact) (int64, error) {
	if contact == nil {
		return 0, fmt.Errorf("contact is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("create contact: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.clock()
	c := contact.Clone()
	c.ID = s.nextID
	c.CreatedAt = now
	c.UpdatedAt = now
	c.DeletedAt = nil
	s.contacts[c.ID] = c

	if j := journalFrom(ctx); j != nil {
		j.created = append(j.created, c.ID)
	}
	return c.ID, nil
}

func (s *InMemoryStore) Update(ctx context.Context, id int64, update models.ContactUpdate) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.IsDeleted() {
		return fmt.Errorf("update contact %d: %w", id, sentinel.ErrNotFound)
	}
	s.remember(ctx, c)
	update.Apply(c, s.clock())
	return nil
}

// SoftDelete stamps DeletedAt. Deleted contacts are invisible to every lookup.
func (s *InMemoryStore) SoftDelete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.IsDeleted() {
		return fmt.Errorf("delete contact %d: %w", id, sentinel.ErrNotFound)
	}
	s.remember(ctx, c)
	now := s.clock()
	c.DeletedAt = &now
	c.UpdatedAt = now
	return nil
}

// Count returns the number of live contacts.
func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.contacts {
		if !c.IsDeleted() {
			n++
		}
	}
	return n, nil
}

// remember saves the pre-image of c in the transaction journal. Caller holds mu.
func (s *InMemoryStore) remember(ctx context.Context, c *models.Contact) {
	j := journalFrom(ctx)
	if j == nil {
		return
	}
	if _, seen := j.before[c.ID]; seen {
		return
	}
	for _, id := range j.created {
		if id == c.ID {
			return
		}
	}
	j.before[c.ID] = c.Clone()
}

func (s *InMemoryStore) collect(match func(*models.Contact) bool) []*models.Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Contact, 0)
	for _, c := range s.contacts {
		if c.IsDeleted() || !match(c) {
			continue
		}
		out = append(out, c.Clone())
	}
	models.SortByCreation(out)
	return out
}
