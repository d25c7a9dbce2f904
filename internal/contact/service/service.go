package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reconcile/internal/contact/events"
	contactmetrics "reconcile/internal/contact/metrics"
	"reconcile/internal/contact/models"
)

// Store is the persistence collaborator. Every lookup excludes soft-deleted
// rows and returns contacts ordered by creation time, oldest first.
type Store interface {
	FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error)
	FindByLinkedID(ctx context.Context, primaryID int64) ([]*models.Contact, error)
	// FindPrimary returns sentinel.ErrNotFound unless id names a live primary.
	FindPrimary(ctx context.Context, id int64) (*models.Contact, error)
	// ClusterMembers returns the primary plus every secondary linked to it.
	ClusterMembers(ctx context.Context, primaryID int64) ([]*models.Contact, error)
	// Create assigns ID, CreatedAt and UpdatedAt and returns the new id.
	Create(ctx context.Context, contact *models.Contact) (int64, error)
	// Update applies a partial update and always refreshes UpdatedAt.
	Update(ctx context.Context, id int64, update models.ContactUpdate) error
}

// StoreTx provides the transactional boundary an identify call runs in. All
// store calls made with the callback's context belong to the transaction; an
// error from the callback discards every write it made.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes identify calls across processes that share a store.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// EventPublisher receives change events after their transaction commits.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// defaultTxTimeout bounds every identify transaction, lock wait included.
const defaultTxTimeout = 5 * time.Second

// Service reconciles identity hints into contact clusters.
type Service struct {
	store     Store
	tx        StoreTx
	locker    Locker
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *contactmetrics.Metrics
	txTimeout time.Duration
}

type Option func(*Service)

// WithTx overrides the transaction runner. By default the store is used when
// it implements StoreTx, otherwise calls are serialized in-process.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithLocker(locker Locker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *contactmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.txTimeout = timeout
		}
	}
}

// New constructs a Service over store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		if tx, ok := store.(StoreTx); ok {
			s.tx = tx
		} else {
			s.tx = &localTx{}
		}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// localTx serializes callbacks behind one mutex. It gives linearizability but
// no rollback, so it is only a fallback for stores without transactions.
type localTx struct {
	mu sync.Mutex
}

func (t *localTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
