package contact_test

import (
	"context"
	"errors"

	"github.com/stretchr/testify/suite"

	"reconcile/internal/contact/models"
	"reconcile/internal/contact/service"
	"reconcile/pkg/platform/sentinel"
)

// contactStore is the surface every backend exposes.
type contactStore interface {
	service.Store
	service.StoreTx
	SoftDelete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// StoreContractSuite holds the behavior every contact store must share. Each
// backend embeds it and supplies a fresh, empty store per test.
type StoreContractSuite struct {
	suite.Suite
	newStore func() contactStore
	store    contactStore
	ctx      context.Context
}

func (s *StoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func (s *StoreContractSuite) create(c *models.Contact) int64 {
	id, err := s.store.Create(s.ctx, c)
	s.Require().NoError(err)
	return id
}

func (s *StoreContractSuite) primary(email, phone string) int64 {
	return s.create(models.NewPrimary(models.Hint{Email: email, Phone: phone}))
}

func (s *StoreContractSuite) secondary(email, phone string, primaryID int64) int64 {
	return s.create(models.NewSecondary(models.Hint{Email: email, Phone: phone}, primaryID))
}

func ids(contacts []*models.Contact) []int64 {
	out := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.ID)
	}
	return out
}

func (s *StoreContractSuite) TestCreateAssignsIdentityAndTimestamps() {
	first := s.primary("doc@hillvalley.edu", "111")
	second := s.primary("marty@hillvalley.edu", "")
	s.Greater(second, first)

	got, err := s.store.FindPrimary(s.ctx, first)
	s.Require().NoError(err)
	s.Equal(first, got.ID)
	s.Equal("doc@hillvalley.edu", got.Email)
	s.Equal("111", got.Phone)
	s.Equal(models.PrecedencePrimary, got.Precedence)
	s.Nil(got.LinkedID)
	s.Nil(got.DeletedAt)
	s.False(got.CreatedAt.IsZero())
	s.True(got.CreatedAt.Equal(got.UpdatedAt))

	other, err := s.store.FindPrimary(s.ctx, second)
	s.Require().NoError(err)
	s.Empty(other.Phone, "absent phone stays absent")
}

func (s *StoreContractSuite) TestCreateSecondaryKeepsLink() {
	p := s.primary("doc@hillvalley.edu", "111")
	sec := s.secondary("", "222", p)

	members, err := s.store.ClusterMembers(s.ctx, p)
	s.Require().NoError(err)
	s.Require().Len(members, 2)
	s.Equal([]int64{p, sec}, ids(members))
	s.Require().NotNil(members[1].LinkedID)
	s.Equal(p, *members[1].LinkedID)
	s.Equal(models.PrecedenceSecondary, members[1].Precedence)
	s.Empty(members[1].Email)
}

func (s *StoreContractSuite) TestFindByEmailOrPhone() {
	doc := s.primary("doc@hillvalley.edu", "111")
	marty := s.primary("marty@hillvalley.edu", "222")
	s.primary("", "333")

	tests := []struct {
		name  string
		email string
		phone string
		want  []int64
	}{
		{name: "email only", email: "doc@hillvalley.edu", want: []int64{doc}},
		{name: "phone only", phone: "222", want: []int64{marty}},
		{name: "either key matches", email: "doc@hillvalley.edu", phone: "222", want: []int64{doc, marty}},
		{name: "both keys on one record", email: "marty@hillvalley.edu", phone: "222", want: []int64{marty}},
		{name: "no match", email: "biff@hillvalley.edu", phone: "999", want: []int64{}},
		{name: "absent email never matches records without email", phone: "999", want: []int64{}},
		{name: "nothing to match", want: []int64{}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			got, err := s.store.FindByEmailOrPhone(s.ctx, tt.email, tt.phone)
			s.Require().NoError(err)
			s.NotNil(got)
			s.Equal(tt.want, ids(got))
		})
	}
}

func (s *StoreContractSuite) TestLookupsExcludeDeleted() {
	p := s.primary("jennifer@hillvalley.edu", "111")
	sec := s.secondary("jennifer@hillvalley.edu", "222", p)
	s.Require().NoError(s.store.SoftDelete(s.ctx, sec))

	matches, err := s.store.FindByEmailOrPhone(s.ctx, "jennifer@hillvalley.edu", "222")
	s.Require().NoError(err)
	s.Equal([]int64{p}, ids(matches))

	linked, err := s.store.FindByLinkedID(s.ctx, p)
	s.Require().NoError(err)
	s.Empty(linked)

	members, err := s.store.ClusterMembers(s.ctx, p)
	s.Require().NoError(err)
	s.Equal([]int64{p}, ids(members))

	s.Require().NoError(s.store.SoftDelete(s.ctx, p))
	_, err = s.store.FindPrimary(s.ctx, p)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Update(s.ctx, p, models.Relink(99)), sentinel.ErrNotFound)
	s.ErrorIs(s.store.SoftDelete(s.ctx, p), sentinel.ErrNotFound)

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *StoreContractSuite) TestFindPrimaryOnlyReturnsPrimaries() {
	p := s.primary("doc@hillvalley.edu", "")
	sec := s.secondary("", "111", p)

	_, err := s.store.FindPrimary(s.ctx, sec)
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindPrimary(s.ctx, 9999)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreContractSuite) TestFindByLinkedIDOrdersByCreation() {
	p := s.primary("doc@hillvalley.edu", "")
	a := s.secondary("", "111", p)
	b := s.secondary("", "222", p)
	other := s.primary("biff@hillvalley.edu", "")
	s.secondary("", "333", other)

	linked, err := s.store.FindByLinkedID(s.ctx, p)
	s.Require().NoError(err)
	s.Equal([]int64{a, b}, ids(linked))
}

func (s *StoreContractSuite) TestUpdateDemotesAndRefreshesUpdatedAt() {
	older := s.primary("george@hillvalley.edu", "919191")
	newer := s.primary("biffsucks@hillvalley.edu", "717171")
	before, err := s.store.FindPrimary(s.ctx, newer)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Update(s.ctx, newer, models.Demote(older)))

	members, err := s.store.ClusterMembers(s.ctx, older)
	s.Require().NoError(err)
	s.Require().Equal([]int64{older, newer}, ids(members))
	demoted := members[1]
	s.Equal(models.PrecedenceSecondary, demoted.Precedence)
	s.Require().NotNil(demoted.LinkedID)
	s.Equal(older, *demoted.LinkedID)
	s.True(before.CreatedAt.Equal(demoted.CreatedAt), "createdAt is immutable")
	s.False(demoted.UpdatedAt.Before(before.UpdatedAt))

	_, err = s.store.FindPrimary(s.ctx, newer)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreContractSuite) TestUpdateRelinkKeepsPrecedence() {
	p1 := s.primary("george@hillvalley.edu", "")
	p2 := s.primary("biffsucks@hillvalley.edu", "")
	sec := s.secondary("", "717171", p2)

	s.Require().NoError(s.store.Update(s.ctx, sec, models.Relink(p1)))

	members, err := s.store.ClusterMembers(s.ctx, p1)
	s.Require().NoError(err)
	s.Require().Equal([]int64{p1, sec}, ids(members))
	s.Equal(models.PrecedenceSecondary, members[1].Precedence)

	linked, err := s.store.FindByLinkedID(s.ctx, p2)
	s.Require().NoError(err)
	s.Empty(linked)
}

func (s *StoreContractSuite) TestUpdateMissingContact() {
	err := s.store.Update(s.ctx, 4242, models.Relink(1))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreContractSuite) TestRunInTxCommits() {
	var id int64
	err := s.store.RunInTx(s.ctx, func(txCtx context.Context) error {
		var err error
		id, err = s.store.Create(txCtx, models.NewPrimary(models.Hint{Email: "doc@hillvalley.edu"}))
		if err != nil {
			return err
		}
		found, err := s.store.FindByEmailOrPhone(txCtx, "doc@hillvalley.edu", "")
		if err != nil {
			return err
		}
		s.Equal([]int64{id}, ids(found), "transaction sees its own writes")
		return nil
	})
	s.Require().NoError(err)

	got, err := s.store.FindPrimary(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("doc@hillvalley.edu", got.Email)
}

func (s *StoreContractSuite) TestRunInTxRollsBackOnError() {
	p := s.primary("george@hillvalley.edu", "919191")
	boom := errors.New("boom")

	err := s.store.RunInTx(s.ctx, func(txCtx context.Context) error {
		_, err := s.store.Create(txCtx, models.NewPrimary(models.Hint{Email: "ghost@hillvalley.edu"}))
		s.Require().NoError(err)
		s.Require().NoError(s.store.Update(txCtx, p, models.Demote(4242)))
		return boom
	})
	s.ErrorIs(err, boom)

	found, err := s.store.FindByEmailOrPhone(s.ctx, "ghost@hillvalley.edu", "")
	s.Require().NoError(err)
	s.Empty(found)

	got, err := s.store.FindPrimary(s.ctx, p)
	s.Require().NoError(err)
	s.Nil(got.LinkedID)

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

// TestIdentifyScenarios drives the resolver over the backend end to end.
func (s *StoreContractSuite) TestIdentifyScenarios() {
	svc := service.New(s.store)

	s.Run("new hint creates a primary", func() {
		got, err := svc.Identify(s.ctx, models.Hint{Email: "lorraine@hillvalley.edu", Phone: "123456"})
		s.Require().NoError(err)
		s.Equal(models.Summary{
			PrimaryID:    1,
			Emails:       []string{"lorraine@hillvalley.edu"},
			PhoneNumbers: []string{"123456"},
			SecondaryIDs: []int64{},
		}, *got)
	})

	linked := models.Summary{
		PrimaryID:    1,
		Emails:       []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"},
		PhoneNumbers: []string{"123456"},
		SecondaryIDs: []int64{2},
	}
	s.Run("new email on a known phone links a secondary", func() {
		got, err := svc.Identify(s.ctx, models.Hint{Email: "mcfly@hillvalley.edu", Phone: "123456"})
		s.Require().NoError(err)
		s.Equal(linked, *got)
	})

	s.Run("known values return the cluster without writes", func() {
		for _, hint := range []models.Hint{
			{Phone: "123456"},
			{Email: "lorraine@hillvalley.edu"},
			{Email: "mcfly@hillvalley.edu"},
			{Email: "lorraine@hillvalley.edu", Phone: "123456"},
		} {
			got, err := svc.Identify(s.ctx, hint)
			s.Require().NoError(err)
			s.Equal(linked, *got, "hint %+v", hint)
		}
		count, err := s.store.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, count)
	})

	merged := models.Summary{
		PrimaryID:    3,
		Emails:       []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"},
		PhoneNumbers: []string{"919191", "717171"},
		SecondaryIDs: []int64{4},
	}
	s.Run("hint spanning two primaries merges into the older", func() {
		_, err := svc.Identify(s.ctx, models.Hint{Email: "george@hillvalley.edu", Phone: "919191"})
		s.Require().NoError(err)
		_, err = svc.Identify(s.ctx, models.Hint{Email: "biffsucks@hillvalley.edu", Phone: "717171"})
		s.Require().NoError(err)

		got, err := svc.Identify(s.ctx, models.Hint{Email: "george@hillvalley.edu", Phone: "717171"})
		s.Require().NoError(err)
		s.Equal(merged, *got)

		_, err = s.store.FindPrimary(s.ctx, 4)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("absorbed primary resolves to the merged cluster", func() {
		got, err := svc.Identify(s.ctx, models.Hint{Email: "biffsucks@hillvalley.edu"})
		s.Require().NoError(err)
		s.Equal(merged, *got)

		count, err := s.store.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(4, count)
	})
}
