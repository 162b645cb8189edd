package repository_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	outboxRepository "github.com/sakashimaa/groupbuy/pkg/outbox/repository"
	"github.com/sakashimaa/groupbuy/pkg/testsuite"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/notify"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type RepositorySuite struct {
	testsuite.BaseSuite
	orders         repository.GroupOrderRepository
	participations repository.ParticipationRepository
	products       repository.ProductRepository
	users          repository.UserRepository
	tx             db.Transactor
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.SetupInfrastructure("../../../../migrations", testsuite.Infra{})

	logger := zap.NewNop()
	s.orders = repository.NewGroupOrderRepository(logger)
	s.participations = repository.NewParticipationRepository(logger)
	s.products = repository.NewProductRepository(logger)
	s.users = repository.NewUserRepository(logger)
	s.tx = db.NewTransactor(s.DbPool, logger)
}

func (s *RepositorySuite) TearDownSuite() {
	s.TearDownInfrastructure()
}

func (s *RepositorySuite) SetupTest() {
	s.TruncateTable("order_items", "orders", "general_orders", "products", "users", "activity_logs", "outbox")
}

func (s *RepositorySuite) addUser(name, email string) int64 {
	var id int64
	err := s.DbPool.QueryRow(s.Ctx,
		`INSERT INTO users (full_name, email, role) VALUES ($1, $2, 'user') RETURNING id`,
		name, email,
	).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *RepositorySuite) addProduct(name string, price int64) int64 {
	id, err := s.products.Create(s.Ctx, s.DbPool, &domain.Product{Name: name, Price: price, Category: "liquids"})
	s.Require().NoError(err)
	return id
}

func (s *RepositorySuite) addOrder(deadline time.Time, status domain.Status) *domain.GroupOrder {
	order := &domain.GroupOrder{Title: "Weekly", Deadline: deadline, Status: status}
	s.Require().NoError(s.orders.Create(s.Ctx, s.DbPool, order))
	return order
}

func (s *RepositorySuite) countRows(table string) int {
	var n int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func (s *RepositorySuite) TestGroupOrderRoundTrip() {
	opening := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	order := &domain.GroupOrder{
		Title:       "June",
		Description: "monthly",
		OpeningTime: &opening,
		Deadline:    opening.Add(24 * time.Hour),
		Status:      domain.StatusScheduled,
	}
	s.Require().NoError(s.orders.Create(s.Ctx, s.DbPool, order))
	s.NotZero(order.ID)

	got, err := s.orders.GetByID(s.Ctx, s.DbPool, order.ID)
	s.Require().NoError(err)
	s.Equal("June", got.Title)
	s.Equal(domain.StatusScheduled, got.Status)
	s.Require().NotNil(got.OpeningTime)
	s.True(opening.Equal(*got.OpeningTime))
	s.Zero(got.CreatedBy)

	_, err = s.orders.GetByID(s.Ctx, s.DbPool, order.ID+1000)
	s.ErrorIs(err, repository.ErrGroupOrderNotFound)
}

func (s *RepositorySuite) TestUpsertKeepsOneRowPerUser() {
	userID := s.addUser("Dana", "dana@example.com")
	productID := s.addProduct("Mint", 1000)
	order := s.addOrder(time.Now().Add(time.Hour), domain.StatusOpen)

	first := &domain.Participation{UserID: userID, GroupOrderID: order.ID, TotalAmount: 1000}
	inserted, err := s.participations.Upsert(s.Ctx, s.DbPool, first)
	s.Require().NoError(err)
	s.True(inserted)

	second := &domain.Participation{UserID: userID, GroupOrderID: order.ID, TotalAmount: 3000}
	inserted, err = s.participations.Upsert(s.Ctx, s.DbPool, second)
	s.Require().NoError(err)
	s.False(inserted)
	s.Equal(first.ID, second.ID)

	s.Require().NoError(s.participations.ReplaceItems(s.Ctx, s.DbPool, first.ID, []domain.LineItem{
		{ProductID: productID, Quantity: 3, UnitPrice: 1000, TotalPrice: 3000},
	}))

	got, err := s.participations.Get(s.Ctx, s.DbPool, userID, order.ID)
	s.Require().NoError(err)
	s.Equal(int64(3000), got.TotalAmount)
	s.Require().Len(got.Items, 1)
	s.Equal("Mint", got.Items[0].ProductName)
	s.Equal(1, s.countRows("orders"))
}

func (s *RepositorySuite) TestDeleteGroupOrderCascades() {
	userID := s.addUser("Dana", "dana@example.com")
	productID := s.addProduct("Mint", 1000)
	order := s.addOrder(time.Now().Add(time.Hour), domain.StatusOpen)

	p := &domain.Participation{UserID: userID, GroupOrderID: order.ID, TotalAmount: 1000}
	_, err := s.participations.Upsert(s.Ctx, s.DbPool, p)
	s.Require().NoError(err)
	s.Require().NoError(s.participations.ReplaceItems(s.Ctx, s.DbPool, p.ID, []domain.LineItem{
		{ProductID: productID, Quantity: 1, UnitPrice: 1000, TotalPrice: 1000},
	}))

	s.Require().NoError(s.orders.Delete(s.Ctx, s.DbPool, order.ID))

	s.Equal(0, s.countRows("orders"))
	s.Equal(0, s.countRows("order_items"))
	s.ErrorIs(s.orders.Delete(s.Ctx, s.DbPool, order.ID), repository.ErrGroupOrderNotFound)
}

func (s *RepositorySuite) TestSweepTransitionsOnce() {
	now := time.Now()
	expired := s.addOrder(now.Add(-time.Minute), domain.StatusOpen)
	opening := now.Add(-time.Minute)
	due := &domain.GroupOrder{Title: "Due", OpeningTime: &opening, Deadline: now.Add(time.Hour), Status: domain.StatusScheduled}
	s.Require().NoError(s.orders.Create(s.Ctx, s.DbPool, due))
	s.addOrder(now.Add(time.Hour), domain.StatusOpen)

	closed, err := s.orders.CloseExpired(s.Ctx, s.DbPool, now)
	s.Require().NoError(err)
	s.Require().Len(closed, 1)
	s.Equal(expired.ID, closed[0].ID)
	s.Equal(domain.StatusClosed, closed[0].Status)

	opened, err := s.orders.OpenDue(s.Ctx, s.DbPool, now)
	s.Require().NoError(err)
	s.Require().Len(opened, 1)
	s.Equal(due.ID, opened[0].ID)

	closed, err = s.orders.CloseExpired(s.Ctx, s.DbPool, now)
	s.Require().NoError(err)
	s.Empty(closed)

	opened, err = s.orders.OpenDue(s.Ctx, s.DbPool, now)
	s.Require().NoError(err)
	s.Empty(opened)
}

func (s *RepositorySuite) TestLegacyCompletedReadsAsClosed() {
	order := s.addOrder(time.Now().Add(-time.Hour), domain.StatusClosed)
	_, err := s.DbPool.Exec(s.Ctx, `UPDATE general_orders SET status = 'completed' WHERE id = $1`, order.ID)
	s.Require().NoError(err)

	got, err := s.orders.GetByID(s.Ctx, s.DbPool, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusClosed, got.Status)
}

func (s *RepositorySuite) TestRollbackLeavesNoParticipation() {
	userID := s.addUser("Dana", "dana@example.com")
	order := s.addOrder(time.Now().Add(time.Hour), domain.StatusOpen)

	err := s.tx.InTx(s.Ctx, pgx.TxOptions{}, func(q db.Querier) error {
		p := &domain.Participation{UserID: userID, GroupOrderID: order.ID}
		if _, err := s.participations.Upsert(s.Ctx, q, p); err != nil {
			return err
		}
		// product 999 does not exist, so the item insert violates the FK
		return s.participations.ReplaceItems(s.Ctx, q, p.ID, []domain.LineItem{
			{ProductID: 999, Quantity: 1, UnitPrice: 1, TotalPrice: 1},
		})
	})
	s.Require().Error(err)

	_, err = s.participations.Get(s.Ctx, s.DbPool, userID, order.ID)
	s.ErrorIs(err, repository.ErrParticipationNotFound)
}

func (s *RepositorySuite) newServices() (service.LifecycleService, service.ParticipationService, service.ReportService) {
	logger := zap.NewNop()
	outbox := outboxRepository.NewOutboxRepository(logger)
	notifier := notify.NewOutboxNotifier(outbox, s.DbPool, "group_order_events")
	activity := repository.NewActivityRepository()

	lifecycle := service.NewLifecycleService(s.orders, s.participations, activity, s.DbPool, s.tx, notifier, nil, logger)
	participation := service.NewParticipationService(
		s.orders, s.participations, s.products, s.DbPool, s.tx, notifier, nil, service.ParticipationOptions{}, logger,
	)
	reports := service.NewReportService(s.orders, s.participations, s.users, s.tx, logger)
	return lifecycle, participation, reports
}

func (s *RepositorySuite) TestConcurrentJoinsBySameUserSerialize() {
	_, participation, _ := s.newServices()

	userID := s.addUser("Dana", "dana@example.com")
	mint := s.addProduct("Mint", 1000)
	coil := s.addProduct("Coil", 2500)
	order := s.addOrder(time.Now().Add(time.Hour), domain.StatusOpen)

	selections := [][]domain.Selection{
		{{ProductID: mint, Quantity: 2}},
		{{ProductID: coil, Quantity: 1}, {ProductID: mint, Quantity: 5}},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(selections))
	for i, sel := range selections {
		wg.Add(1)
		go func(i int, sel []domain.Selection) {
			defer wg.Done()
			_, errs[i] = participation.Join(context.Background(), service.JoinInput{
				UserID:       userID,
				GroupOrderID: order.ID,
				Selections:   sel,
			})
		}(i, sel)
	}
	wg.Wait()

	for _, err := range errs {
		s.Require().NoError(err)
	}
	s.Equal(1, s.countRows("orders"))

	got, err := s.participations.Get(s.Ctx, s.DbPool, userID, order.ID)
	s.Require().NoError(err)

	stored := make(map[int64]int, len(got.Items))
	for _, item := range got.Items {
		stored[item.ProductID] = int(item.Quantity)
	}

	matches := 0
	for _, sel := range selections {
		want := make(map[int64]int, len(sel))
		for _, item := range sel {
			want[item.ProductID] = int(item.Quantity)
		}
		if sameQuantities(want, stored) {
			matches++
		}
	}
	s.Equal(1, matches, "stored items %v must equal exactly one join's selection", stored)
	s.Equal(len(got.Items), s.countRows("order_items"))
}

func sameQuantities(a, b map[int64]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (s *RepositorySuite) TestConcurrentSweepsCloseOnce() {
	lifecycle, _, _ := s.newServices()
	expired := s.addOrder(time.Now().Add(-time.Minute), domain.StatusOpen)

	const sweepers = 2
	var wg sync.WaitGroup
	results := make([]*service.SweepResult, sweepers)
	errs := make([]error, sweepers)
	for i := 0; i < sweepers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = lifecycle.Sweep(context.Background(), time.Now())
		}(i)
	}
	wg.Wait()

	closed := 0
	for i := range results {
		s.Require().NoError(errs[i])
		closed += len(results[i].Closed)
	}
	s.Equal(1, closed)

	var events int
	s.Require().NoError(s.DbPool.QueryRow(s.Ctx,
		`SELECT COUNT(*) FROM outbox WHERE event_type = 'order_closed' AND aggregate_id = $1`,
		strconv.FormatInt(expired.ID, 10),
	).Scan(&events))
	s.Equal(1, events)
}

func (s *RepositorySuite) TestServicesEndToEnd() {
	lifecycle, participation, reports := s.newServices()

	ctx := service.WithActor(context.Background(), 0)
	order, err := lifecycle.Create(ctx, service.CreateGroupOrderInput{Title: "July", Deadline: time.Now().Add(time.Hour)})
	s.Require().NoError(err)
	s.Equal(domain.StatusOpen, order.Status)

	mint := s.addProduct("Mint", 1205)
	coil := s.addProduct("Coil", 3500)
	dana := s.addUser("Dana", "dana@example.com")
	avi := s.addUser("Avi", "avi@example.com")

	for _, userID := range []int64{dana, avi} {
		_, err := participation.Join(ctx, service.JoinInput{
			UserID:       userID,
			GroupOrderID: order.ID,
			Selections: []domain.Selection{
				{ProductID: mint, Quantity: 2},
				{ProductID: coil, Quantity: 1},
			},
		})
		s.Require().NoError(err)
	}

	_, err = participation.Join(ctx, service.JoinInput{
		UserID:       dana,
		GroupOrderID: order.ID,
		Selections:   []domain.Selection{{ProductID: mint, Quantity: 1}},
	})
	s.Require().NoError(err)

	built, err := reports.Build(ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(2, built.Participant.ParticipantCount)
	s.Equal(int64(1205+2*1205+3500), built.Participant.GrandTotal)
	s.Equal(built.Participant.GrandTotal, built.Supplier.TotalValue)
	s.Equal(2, built.Supplier.DistinctProducts)

	// one order_opened plus a confirmation per join
	s.Equal(4, s.countRows("outbox"))

	removed, err := lifecycle.Delete(ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), removed)
	s.Equal(0, s.countRows("order_items"))
}
