package service_test

import (
	"sync"
	"time"

	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/testutil"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store         *testutil.Store
	notifier      *testutil.RecordingNotifier
	clock         *fakeClock
	lifecycle     service.LifecycleService
	participation service.ParticipationService
	reports       service.ReportService
	catalog       service.CatalogService
}

func newFixture(opts service.ParticipationOptions) *fixture {
	logger := zap.NewNop()
	store := testutil.NewStore()
	notifier := &testutil.RecordingNotifier{}
	clock := &fakeClock{now: time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)}

	return &fixture{
		store:    store,
		notifier: notifier,
		clock:    clock,
		lifecycle: service.NewLifecycleService(
			store.GroupOrders(),
			store.Participations(),
			store.Activity(),
			nil,
			store.Transactor(),
			notifier,
			clock.Now,
			logger,
		),
		participation: service.NewParticipationService(
			store.GroupOrders(),
			store.Participations(),
			store.Products(),
			nil,
			store.Transactor(),
			notifier,
			clock.Now,
			opts,
			logger,
		),
		reports: service.NewReportService(
			store.GroupOrders(),
			store.Participations(),
			store.Users(),
			store.Transactor(),
			logger,
		),
		catalog: service.NewCatalogService(store.Products(), store.Activity(), nil, logger),
	}
}

func ptr[T any](v T) *T { return &v }
