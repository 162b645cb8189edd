package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	generalDomain "github.com/sakashimaa/groupbuy/pkg/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// seedParticipations creates an open order and n users who each join it
// with one line item.
func seedParticipations(t *testing.T, f *fixture, n int) (*domain.GroupOrder, domain.Product) {
	t.Helper()
	ctx := context.Background()

	product := f.store.AddProduct(domain.Product{Name: "Pod Kit", Price: 9900, Category: "devices"})
	order, err := f.lifecycle.Create(ctx, service.CreateGroupOrderInput{Title: "Seed", Deadline: f.clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		user := f.store.AddUser(domain.User{FullName: "user"})
		_, err := f.participation.Join(ctx, service.JoinInput{
			UserID:       user.ID,
			GroupOrderID: order.ID,
			Selections:   []domain.Selection{{ProductID: product.ID, Quantity: 1}},
		})
		require.NoError(t, err)
	}

	return order, product
}

type ParticipationSuite struct {
	suite.Suite
	f        *fixture
	ctx      context.Context
	order    *domain.GroupOrder
	productX domain.Product
	productY domain.Product
	user     domain.User
}

func (s *ParticipationSuite) SetupTest() {
	s.f = newFixture(service.ParticipationOptions{})
	s.ctx = context.Background()

	s.productX = s.f.store.AddProduct(domain.Product{Name: "Liquid Mint", Price: 10, Category: "liquids"})
	s.productY = s.f.store.AddProduct(domain.Product{Name: "Coil 0.8", Price: 35, Category: "coils"})
	s.user = s.f.store.AddUser(domain.User{FullName: "Avi Levi", Phone: "052-0000000"})

	order, err := s.f.lifecycle.Create(s.ctx, service.CreateGroupOrderInput{
		Title:    "April",
		Deadline: s.f.clock.Now().Add(time.Hour),
	})
	s.Require().NoError(err)
	s.order = order
	s.f.notifier.Reset()
}

func (s *ParticipationSuite) join(selections ...domain.Selection) (*service.JoinResult, error) {
	return s.f.participation.Join(s.ctx, service.JoinInput{
		UserID:       s.user.ID,
		GroupOrderID: s.order.ID,
		Selections:   selections,
	})
}

func (s *ParticipationSuite) TestScenario_JoinRejoinSweepReport() {
	first, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 2})
	s.Require().NoError(err)
	s.Require().True(first.Created)
	s.Require().Equal(int64(20), first.Participation.TotalAmount)

	second, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 1})
	s.Require().NoError(err)
	s.Require().False(second.Created)
	s.Require().Equal(int64(10), second.Participation.TotalAmount)
	s.Require().Equal(first.Participation.ID, second.Participation.ID)

	stored := s.f.store.ParticipationsOf(s.order.ID)
	s.Require().Len(stored, 1)
	s.Require().Len(stored[0].Items, 1)

	_, err = s.f.lifecycle.Sweep(s.ctx, s.f.clock.Now().Add(2*time.Hour))
	s.Require().NoError(err)
	closed, _ := s.f.store.GroupOrder(s.order.ID)
	s.Require().Equal(domain.StatusClosed, closed.Status)

	reports, err := s.f.reports.Build(s.ctx, s.order.ID)
	s.Require().NoError(err)
	s.Require().Len(reports.Supplier.Products, 1)
	s.Require().Equal(s.productX.ID, reports.Supplier.Products[0].ProductID)
	s.Require().Equal(int64(1), reports.Supplier.Products[0].TotalQuantity)
	s.Require().Equal(reports.Participant.GrandTotal, reports.Supplier.TotalValue)
}

func (s *ParticipationSuite) TestJoin_FullReplaceNoMerge() {
	_, err := s.join(
		domain.Selection{ProductID: s.productX.ID, Quantity: 2},
		domain.Selection{ProductID: s.productY.ID, Quantity: 1},
	)
	s.Require().NoError(err)

	_, err = s.join(domain.Selection{ProductID: s.productY.ID, Quantity: 3})
	s.Require().NoError(err)

	view, err := s.f.participation.GetParticipation(s.ctx, s.user.ID, s.order.ID)
	s.Require().NoError(err)
	s.Require().True(view.Participating)
	s.Require().Len(view.Items, 1)
	s.Require().Equal(s.productY.ID, view.Items[0].ProductID)
	s.Require().Equal(int32(3), view.Items[0].Quantity)
	s.Require().Equal(int64(105), view.TotalAmount)
	s.Require().Equal(int64(3), view.ItemCount)
}

func (s *ParticipationSuite) TestJoin_PriceSnapshot() {
	_, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 4})
	s.Require().NoError(err)

	s.f.store.SetPrice(s.productX.ID, 99)

	view, err := s.f.participation.GetParticipation(s.ctx, s.user.ID, s.order.ID)
	s.Require().NoError(err)
	s.Require().Equal(int64(10), view.Items[0].UnitPrice)
	s.Require().Equal(int64(40), view.Items[0].TotalPrice)
	s.Require().Equal(int64(40), view.TotalAmount)
}

func (s *ParticipationSuite) TestJoin_EmitsConfirmation() {
	_, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 2})
	s.Require().NoError(err)
	_, err = s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 1})
	s.Require().NoError(err)

	events := s.f.notifier.Events()
	s.Require().Len(events, 2)

	first := events[0].Payload.(generalDomain.OrderConfirmationEvent)
	second := events[1].Payload.(generalDomain.OrderConfirmationEvent)
	s.Require().False(first.Updated)
	s.Require().True(second.Updated)
	s.Require().Equal("April", second.GroupOrderTitle)
	s.Require().Equal(int64(10), second.TotalAmount)
	s.Require().Len(second.Items, 1)
	s.Require().Equal("Liquid Mint", second.Items[0].ProductName)
}

func (s *ParticipationSuite) TestJoin_NotifierFailureDoesNotFailJoin() {
	s.f.notifier.Err = errors.New("queue down")

	result, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 1})
	s.Require().NoError(err)
	s.Require().NotNil(result.Participation)
	s.Require().Len(s.f.store.ParticipationsOf(s.order.ID), 1)
}

func (s *ParticipationSuite) TestJoin_AfterDeadline() {
	s.f.clock.Advance(time.Hour)

	_, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 1})
	s.Require().ErrorIs(err, service.ErrDeadlinePassed)
	s.Require().ErrorIs(err, service.ErrState)
	s.Require().NotErrorIs(err, service.ErrNotFound)

	s.Require().Empty(s.f.store.ParticipationsOf(s.order.ID))
	s.Require().Empty(s.f.notifier.Events())
}

func (s *ParticipationSuite) TestJoin_Scheduled() {
	now := s.f.clock.Now()
	scheduled, err := s.f.lifecycle.Create(s.ctx, service.CreateGroupOrderInput{
		Title:       "May",
		OpeningTime: ptr(now.Add(time.Hour)),
		Deadline:    now.Add(2 * time.Hour),
	})
	s.Require().NoError(err)

	_, err = s.f.participation.Join(s.ctx, service.JoinInput{
		UserID:       s.user.ID,
		GroupOrderID: scheduled.ID,
		Selections:   []domain.Selection{{ProductID: s.productX.ID, Quantity: 1}},
	})
	s.Require().ErrorIs(err, service.ErrOrderNotOpen)
}

func (s *ParticipationSuite) TestJoin_ForceClosed() {
	closed := domain.StatusClosed
	_, err := s.f.lifecycle.Update(s.ctx, s.order.ID, service.GroupOrderPatch{Status: &closed})
	s.Require().NoError(err)

	_, err = s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 1})
	s.Require().ErrorIs(err, service.ErrOrderClosed)
}

func (s *ParticipationSuite) TestJoin_StaleStoredStatusIgnored() {
	// stored status still says open but the deadline has passed and no
	// sweep has run yet
	s.f.clock.Advance(90 * time.Minute)
	stored, _ := s.f.store.GroupOrder(s.order.ID)
	s.Require().Equal(domain.StatusOpen, stored.Status)

	_, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 1})
	s.Require().ErrorIs(err, service.ErrDeadlinePassed)
}

func (s *ParticipationSuite) TestJoin_OrderNotFound() {
	_, err := s.f.participation.Join(s.ctx, service.JoinInput{
		UserID:       s.user.ID,
		GroupOrderID: 12345,
		Selections:   []domain.Selection{{ProductID: s.productX.ID, Quantity: 1}},
	})
	s.Require().ErrorIs(err, service.ErrGroupOrderNotFound)
	s.Require().ErrorIs(err, service.ErrNotFound)
}

func (s *ParticipationSuite) TestJoin_ValidationErrors() {
	cases := []struct {
		name       string
		selections []domain.Selection
		want       error
	}{
		{"empty", nil, service.ErrEmptySelection},
		{"zero quantity", []domain.Selection{{ProductID: s.productX.ID, Quantity: 0}}, service.ErrInvalidQuantity},
		{"negative quantity", []domain.Selection{{ProductID: s.productX.ID, Quantity: -2}}, service.ErrInvalidQuantity},
		{
			"duplicate product",
			[]domain.Selection{{ProductID: s.productX.ID, Quantity: 1}, {ProductID: s.productX.ID, Quantity: 2}},
			service.ErrDuplicateProduct,
		},
		{"bad product id", []domain.Selection{{ProductID: 0, Quantity: 1}}, service.ErrInvalidProduct},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.join(tc.selections...)
			s.Require().ErrorIs(err, tc.want)
			s.Require().ErrorIs(err, service.ErrValidation)
		})
	}

	s.Require().Empty(s.f.store.ParticipationsOf(s.order.ID))
}

func (s *ParticipationSuite) TestJoin_UnknownProductNamed() {
	_, err := s.join(
		domain.Selection{ProductID: s.productX.ID, Quantity: 1},
		domain.Selection{ProductID: 4242, Quantity: 1},
	)

	var notFound *service.ProductNotFoundError
	s.Require().ErrorAs(err, &notFound)
	s.Require().Equal(int64(4242), notFound.ProductID)
	s.Require().ErrorIs(err, service.ErrValidation)
	s.Require().Contains(err.Error(), "4242")
	s.Require().Empty(s.f.store.ParticipationsOf(s.order.ID))
}

func (s *ParticipationSuite) TestJoin_DeletedProductRejected() {
	s.Require().NoError(s.f.catalog.Delete(s.ctx, s.productY.ID))

	_, err := s.join(domain.Selection{ProductID: s.productY.ID, Quantity: 1})
	var notFound *service.ProductNotFoundError
	s.Require().ErrorAs(err, &notFound)
}

func (s *ParticipationSuite) TestJoin_PersistenceFailureRollsBack() {
	_, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 2})
	s.Require().NoError(err)
	s.f.notifier.Reset()

	s.f.store.FailOn("Participations.ReplaceItems", errors.New("connection reset"))
	_, err = s.join(domain.Selection{ProductID: s.productY.ID, Quantity: 5})
	s.Require().Error(err)
	s.Require().Empty(service.Code(err))

	stored := s.f.store.ParticipationsOf(s.order.ID)
	s.Require().Len(stored, 1)
	s.Require().Equal(int64(20), stored[0].TotalAmount)
	s.Require().Len(stored[0].Items, 1)
	s.Require().Equal(s.productX.ID, stored[0].Items[0].ProductID)
	s.Require().Empty(s.f.notifier.Events())
}

func (s *ParticipationSuite) TestLeave_Idempotent() {
	_, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 1})
	s.Require().NoError(err)

	removed, err := s.f.participation.Leave(s.ctx, s.user.ID, s.order.ID)
	s.Require().NoError(err)
	s.Require().True(removed)

	removed, err = s.f.participation.Leave(s.ctx, s.user.ID, s.order.ID)
	s.Require().NoError(err)
	s.Require().False(removed)

	s.Require().Empty(s.f.store.ParticipationsOf(s.order.ID))
	s.Require().Zero(s.f.store.LineItemCount())
}

func (s *ParticipationSuite) TestLeave_BlockedAfterCloseByDefault() {
	_, err := s.join(domain.Selection{ProductID: s.productX.ID, Quantity: 1})
	s.Require().NoError(err)

	s.f.clock.Advance(2 * time.Hour)

	_, err = s.f.participation.Leave(s.ctx, s.user.ID, s.order.ID)
	s.Require().ErrorIs(err, service.ErrOrderClosed)
	s.Require().Len(s.f.store.ParticipationsOf(s.order.ID), 1)
}

func (s *ParticipationSuite) TestGetParticipation_None() {
	view, err := s.f.participation.GetParticipation(s.ctx, s.user.ID, s.order.ID)
	s.Require().NoError(err)
	s.Require().False(view.Participating)
	s.Require().Empty(view.Items)
}

func (s *ParticipationSuite) TestGetParticipation_OrderNotFound() {
	_, err := s.f.participation.GetParticipation(s.ctx, s.user.ID, 12345)
	s.Require().ErrorIs(err, service.ErrGroupOrderNotFound)
}

func TestParticipationSuite(t *testing.T) {
	suite.Run(t, new(ParticipationSuite))
}

func TestLeave_AllowedAfterCloseWhenConfigured(t *testing.T) {
	f := newFixture(service.ParticipationOptions{AllowLeaveAfterClose: true})
	ctx := context.Background()

	order, _ := seedParticipations(t, f, 1)
	userID := f.store.ParticipationsOf(order.ID)[0].UserID

	f.clock.Advance(2 * time.Hour)

	removed, err := f.participation.Leave(ctx, userID, order.ID)
	require.NoError(t, err)
	require.True(t, removed)
}

func TestJoin_DistinctUsersAreIndependent(t *testing.T) {
	f := newFixture(service.ParticipationOptions{})

	order, _ := seedParticipations(t, f, 4)

	stored := f.store.ParticipationsOf(order.ID)
	require.Len(t, stored, 4)

	users := make(map[int64]struct{})
	for _, p := range stored {
		users[p.UserID] = struct{}{}
		require.Len(t, p.Items, 1)
	}
	require.Len(t, users, 4)
}
