package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"reconcile/internal/contact/events"
	"reconcile/internal/contact/models"
	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/platform/sentinel"
	"reconcile/pkg/requestcontext"
)

var tracer = otel.Tracer("reconcile/internal/contact/service")

// Outcome describes what an identify call did to the contact graph.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeLinked  Outcome = "linked"
	OutcomeMerged  Outcome = "merged"
	OutcomeMatched Outcome = "matched"
)

// resolution is the committed result of one identify transaction.
type resolution struct {
	outcome   Outcome
	primaryID int64
	createdID int64
	demoted   []int64
	relinked  []int64
	summary   models.Summary
}

// Identify reconciles hint against the contact graph and returns the settled
// cluster it belongs to. The lookup, every mutation and the final re-read run
// in one transaction; on error nothing is written.
//
// Errors carry domain codes: validation_error for an empty hint,
// invariant_violation when a secondary points at no live primary, and
// unavailable for any store or lock failure.
func (s *Service) Identify(ctx context.Context, hint models.Hint) (*models.Summary, error) {
	start := time.Now()
	if err := hint.Validate(); err != nil {
		s.metrics.IncrementError(string(dErrors.CodeValidation))
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "contact.Identify")
	defer span.End()

	// A shorter parent deadline still applies.
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	res, err := s.identifyLocked(ctx, hint)
	if err != nil {
		err = classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		s.metrics.IncrementError(string(dErrors.CodeOf(err)))
		s.logFailure(ctx, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("contact.outcome", string(res.outcome)),
		attribute.Int64("contact.primary_id", res.primaryID),
	)
	s.metrics.ObserveIdentify(string(res.outcome), start)
	s.metrics.AddDemoted(len(res.demoted))
	if res.outcome == OutcomeMerged {
		s.logger.InfoContext(ctx, "contact clusters merged",
			"request_id", requestcontext.RequestID(ctx),
			"primary_id", res.primaryID,
			"demoted_ids", res.demoted,
			"relinked_count", len(res.relinked),
		)
	}
	s.publish(ctx, res)

	summary := res.summary
	return &summary, nil
}

func (s *Service) identifyLocked(ctx context.Context, hint models.Hint) (*resolution, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to acquire contact graph lock")
		}
		defer unlock()
	}

	var res *resolution
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.resolve(txCtx, hint)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// resolve runs the reconciliation steps against the transaction-scoped store.
func (s *Service) resolve(ctx context.Context, hint models.Hint) (*resolution, error) {
	matches, err := s.store.FindByEmailOrPhone(ctx, hint.Email, hint.Phone)
	if err != nil {
		return nil, storeErr(err, "failed to look up contacts")
	}
	if len(matches) == 0 {
		return s.createPrimary(ctx, hint)
	}

	roots, err := s.clusterRoots(ctx, matches)
	if err != nil {
		return nil, err
	}
	authority := models.Oldest(roots)
	res := &resolution{outcome: OutcomeMatched, primaryID: authority.ID}

	var members []*models.Contact
	if len(roots) > 1 {
		if err := s.merge(ctx, authority, roots, res); err != nil {
			return nil, err
		}
		res.outcome = OutcomeMerged
	} else {
		members, err = s.store.ClusterMembers(ctx, authority.ID)
		if err != nil {
			return nil, storeErr(err, "failed to load cluster")
		}
		if carriesNewInformation(hint, members) {
			id, err := s.store.Create(ctx, models.NewSecondary(hint, authority.ID))
			if err != nil {
				return nil, storeErr(err, "failed to create secondary contact")
			}
			res.outcome = OutcomeLinked
			res.createdID = id
			members = nil
		}
	}

	if members == nil {
		members, err = s.store.ClusterMembers(ctx, authority.ID)
		if err != nil {
			return nil, storeErr(err, "failed to reload cluster")
		}
	}
	res.summary = models.Summarize(members)
	return res, nil
}

func (s *Service) createPrimary(ctx context.Context, hint models.Hint) (*resolution, error) {
	id, err := s.store.Create(ctx, models.NewPrimary(hint))
	if err != nil {
		return nil, storeErr(err, "failed to create primary contact")
	}
	members, err := s.store.ClusterMembers(ctx, id)
	if err != nil {
		return nil, storeErr(err, "failed to reload cluster")
	}
	return &resolution{
		outcome:   OutcomeCreated,
		primaryID: id,
		createdID: id,
		summary:   models.Summarize(members),
	}, nil
}

// clusterRoots maps every matched contact to the primary of its cluster and
// returns the distinct primaries. A matched secondary whose cluster primary
// was not itself matched still contributes that primary, so a hint touching a
// cluster only through a secondary merges it like any other.
func (s *Service) clusterRoots(ctx context.Context, matches []*models.Contact) ([]*models.Contact, error) {
	roots := make(map[int64]*models.Contact, len(matches))
	var ordered []*models.Contact
	for _, c := range matches {
		if c.IsPrimary() {
			if _, seen := roots[c.ID]; !seen {
				roots[c.ID] = c
				ordered = append(ordered, c)
			}
		}
	}
	for _, c := range matches {
		if c.IsPrimary() {
			continue
		}
		if c.LinkedID == nil {
			return nil, inconsistent(c.ID, "secondary contact has no linked primary")
		}
		if _, seen := roots[*c.LinkedID]; seen {
			continue
		}
		primary, err := s.store.FindPrimary(ctx, *c.LinkedID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, inconsistent(c.ID, "secondary contact links to a missing primary")
			}
			return nil, storeErr(err, "failed to load linked primary")
		}
		roots[primary.ID] = primary
		ordered = append(ordered, primary)
	}
	return ordered, nil
}

// merge demotes every root other than authority and re-points the secondaries
// each demoted primary owned, leaving a flat cluster under authority.
func (s *Service) merge(ctx context.Context, authority *models.Contact, roots []*models.Contact, res *resolution) error {
	displaced := make([]*models.Contact, 0, len(roots)-1)
	for _, root := range roots {
		if root.ID != authority.ID {
			displaced = append(displaced, root)
		}
	}
	models.SortByCreation(displaced)

	for _, p := range displaced {
		if err := s.store.Update(ctx, p.ID, models.Demote(authority.ID)); err != nil {
			return storeErr(err, "failed to demote primary contact")
		}
		res.demoted = append(res.demoted, p.ID)

		secondaries, err := s.store.FindByLinkedID(ctx, p.ID)
		if err != nil {
			return storeErr(err, "failed to load linked contacts")
		}
		for _, sec := range secondaries {
			if err := s.store.Update(ctx, sec.ID, models.Relink(authority.ID)); err != nil {
				return storeErr(err, "failed to relink secondary contact")
			}
			res.relinked = append(res.relinked, sec.ID)
		}
	}
	return nil
}

// carriesNewInformation reports whether the hint holds an email or phone the
// cluster does not have yet.
func carriesNewInformation(hint models.Hint, members []*models.Contact) bool {
	emails := make([]string, 0, len(members))
	phones := make([]string, 0, len(members))
	for _, m := range members {
		emails = append(emails, m.Email)
		phones = append(phones, m.Phone)
	}
	if hint.Email != "" && !slices.Contains(emails, hint.Email) {
		return true
	}
	return hint.Phone != "" && !slices.Contains(phones, hint.Phone)
}

func (s *Service) publish(ctx context.Context, res *resolution) {
	if s.publisher == nil {
		return
	}
	var event events.Event
	switch res.outcome {
	case OutcomeCreated:
		event = events.Event{Type: events.TypeCreated, ContactIDs: []int64{res.createdID}}
	case OutcomeLinked:
		event = events.Event{Type: events.TypeLinked, ContactIDs: []int64{res.createdID}}
	case OutcomeMerged:
		ids := append(append([]int64{}, res.demoted...), res.relinked...)
		event = events.Event{Type: events.TypeMerged, ContactIDs: ids}
	default:
		return
	}
	event.ID = uuid.NewString()
	event.PrimaryID = res.primaryID
	event.RequestID = requestcontext.RequestID(ctx)
	event.OccurredAt = requestcontext.Now(ctx).UTC()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.metrics.IncrementPublishFailure()
		s.logger.WarnContext(ctx, "failed to publish contact event",
			"request_id", event.RequestID,
			"event_type", string(event.Type),
			"primary_id", event.PrimaryID,
			"error", err,
		)
	}
}

func (s *Service) logFailure(ctx context.Context, err error) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		s.logger.ErrorContext(ctx, "contact graph inconsistent",
			"request_id", requestID,
			"error", err,
		)
		return
	}
	s.logger.ErrorContext(ctx, "identify failed",
		"request_id", requestID,
		"error", err,
	)
}

func storeErr(err error, msg string) error {
	return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
}

func inconsistent(contactID int64, msg string) error {
	return dErrors.Wrap(&InconsistentStateError{ContactID: contactID}, dErrors.CodeInvariantViolation, msg)
}

// classify gives uncoded failures from the transaction runner (begin, commit,
// deadline) the unavailable code; coded errors pass through.
func classify(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "contact store unavailable")
}
