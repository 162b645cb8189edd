// Package testutil provides an in-memory implementation of every groupbuy
// repository plus a transactor that rolls the store back when fn fails.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sakashimaa/groupbuy/pkg/db"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/repository"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	orders         map[int64]domain.GroupOrder
	participations map[int64]domain.Participation
	products       map[int64]domain.Product
	users          map[int64]domain.User
	activity       []domain.ActivityLog

	nextID   int64
	failures map[string]error
	calls    map[string]int
	clock    time.Time
}

func NewStore() *Store {
	return &Store{
		orders:         make(map[int64]domain.GroupOrder),
		participations: make(map[int64]domain.Participation),
		products:       make(map[int64]domain.Product),
		users:          make(map[int64]domain.User),
		failures:       make(map[string]error),
		calls:          make(map[string]int),
		clock:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FailOn makes the named operation (for example "GroupOrders.Delete")
// return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls reports how many times the named operation ran.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[op]
}

func (s *Store) enter(op string) error {
	s.mu.Lock()
	s.calls[op]++
	return s.failures[op]
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// tick returns strictly increasing timestamps so creation order is total.
func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Store) GroupOrders() repository.GroupOrderRepository       { return groupOrders{s} }
func (s *Store) Participations() repository.ParticipationRepository { return participations{s} }
func (s *Store) Products() repository.ProductRepository             { return products{s} }
func (s *Store) Users() repository.UserRepository                   { return users{s} }
func (s *Store) Activity() repository.ActivityRepository            { return activity{s} }

// Transactor serializes transactions and restores the previous state when
// fn returns an error.
func (s *Store) Transactor() db.Transactor { return transactor{s} }

type transactor struct{ s *Store }

func (t transactor) InTx(_ context.Context, _ pgx.TxOptions, fn func(q db.Querier) error) error {
	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	saved := t.s.snapshot()
	if err := fn(nil); err != nil {
		t.s.restore(saved)
		return err
	}

	return nil
}

type state struct {
	orders         map[int64]domain.GroupOrder
	participations map[int64]domain.Participation
	products       map[int64]domain.Product
	activity       []domain.ActivityLog
}

func (s *Store) snapshot() state {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := state{
		orders:         make(map[int64]domain.GroupOrder, len(s.orders)),
		participations: make(map[int64]domain.Participation, len(s.participations)),
		products:       make(map[int64]domain.Product, len(s.products)),
		activity:       append([]domain.ActivityLog(nil), s.activity...),
	}
	for k, v := range s.orders {
		st.orders[k] = v
	}
	for k, v := range s.participations {
		st.participations[k] = cloneParticipation(v)
	}
	for k, v := range s.products {
		st.products[k] = v
	}

	return st
}

func (s *Store) restore(st state) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = st.orders
	s.participations = st.participations
	s.products = st.products
	s.activity = st.activity
}

func cloneParticipation(p domain.Participation) domain.Participation {
	p.Items = append([]domain.LineItem(nil), p.Items...)
	return p
}

// Seed helpers.

func (s *Store) AddUser(u domain.User) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == 0 {
		u.ID = s.id()
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) AddProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = s.id()
	}
	p.CreatedAt = s.tick()
	p.UpdatedAt = p.CreatedAt
	s.products[p.ID] = p
	return p
}

func (s *Store) AddGroupOrder(o domain.GroupOrder) domain.GroupOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == 0 {
		o.ID = s.id()
	}
	o.CreatedAt = s.tick()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = o
	return o
}

func (s *Store) SetPrice(productID, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.products[productID]
	p.Price = price
	s.products[productID] = p
}

// Inspection helpers.

func (s *Store) GroupOrder(id int64) (domain.GroupOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	return o, ok
}

func (s *Store) ParticipationsOf(groupOrderID int64) []domain.Participation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Participation
	for _, p := range s.participations {
		if p.GroupOrderID == groupOrderID {
			out = append(out, cloneParticipation(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) LineItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range s.participations {
		n += len(p.Items)
	}
	return n
}

func (s *Store) ActivityLog() []domain.ActivityLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.ActivityLog(nil), s.activity...)
}

type groupOrders struct{ s *Store }

func (r groupOrders) Create(_ context.Context, _ db.Querier, order *domain.GroupOrder) error {
	s := r.s
	if err := s.enter("GroupOrders.Create"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	order.ID = s.id()
	order.CreatedAt = s.tick()
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = *order
	return nil
}

func (r groupOrders) GetByID(_ context.Context, _ db.Querier, id int64) (*domain.GroupOrder, error) {
	return r.get("GroupOrders.GetByID", id)
}

func (r groupOrders) GetForShare(_ context.Context, _ db.Querier, id int64) (*domain.GroupOrder, error) {
	return r.get("GroupOrders.GetForShare", id)
}

func (r groupOrders) GetForUpdate(_ context.Context, _ db.Querier, id int64) (*domain.GroupOrder, error) {
	return r.get("GroupOrders.GetForUpdate", id)
}

func (r groupOrders) get(op string, id int64) (*domain.GroupOrder, error) {
	s := r.s
	if err := s.enter(op); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrGroupOrderNotFound
	}
	return &o, nil
}

func (r groupOrders) List(_ context.Context, _ db.Querier, filter repository.GroupOrderFilter) ([]domain.GroupOrder, error) {
	s := r.s
	if err := s.enter("GroupOrders.List"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	var out []domain.GroupOrder
	for _, o := range s.orders {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, o.Status) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].ID < out[j].ID
	})

	return paginate(out, filter.Limit, filter.Offset), nil
}

func (r groupOrders) Update(_ context.Context, _ db.Querier, order *domain.GroupOrder) error {
	s := r.s
	if err := s.enter("GroupOrders.Update"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	existing, ok := s.orders[order.ID]
	if !ok {
		return repository.ErrGroupOrderNotFound
	}
	if order.OpeningTime != nil && !order.OpeningTime.Before(order.Deadline) {
		return fmt.Errorf("check constraint general_orders_window violated")
	}

	order.CreatedAt = existing.CreatedAt
	order.UpdatedAt = s.tick()
	s.orders[order.ID] = *order
	return nil
}

func (r groupOrders) Delete(_ context.Context, _ db.Querier, id int64) error {
	s := r.s
	if err := s.enter("GroupOrders.Delete"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return repository.ErrGroupOrderNotFound
	}
	for _, p := range s.participations {
		if p.GroupOrderID == id {
			return fmt.Errorf("foreign key violation: participation %d references group order %d", p.ID, id)
		}
	}
	delete(s.orders, id)
	return nil
}

func (r groupOrders) CloseExpired(_ context.Context, _ db.Querier, now time.Time) ([]domain.GroupOrder, error) {
	return r.transition("GroupOrders.CloseExpired", domain.StatusClosed, func(o domain.GroupOrder) bool {
		return o.Status != domain.StatusClosed && !now.Before(o.Deadline)
	})
}

func (r groupOrders) OpenDue(_ context.Context, _ db.Querier, now time.Time) ([]domain.GroupOrder, error) {
	return r.transition("GroupOrders.OpenDue", domain.StatusOpen, func(o domain.GroupOrder) bool {
		return o.Status == domain.StatusScheduled &&
			(o.OpeningTime == nil || !now.Before(*o.OpeningTime)) &&
			now.Before(o.Deadline)
	})
}

func (r groupOrders) transition(op string, to domain.Status, match func(domain.GroupOrder) bool) ([]domain.GroupOrder, error) {
	s := r.s
	if err := s.enter(op); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	var out []domain.GroupOrder
	for id, o := range s.orders {
		if !match(o) {
			continue
		}
		o.Status = to
		o.UpdatedAt = s.tick()
		s.orders[id] = o
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type participations struct{ s *Store }

func (r participations) Upsert(_ context.Context, _ db.Querier, p *domain.Participation) (bool, error) {
	s := r.s
	if err := s.enter("Participations.Upsert"); err != nil {
		s.mu.Unlock()
		return false, err
	}
	defer s.mu.Unlock()

	if p.Status == "" {
		p.Status = domain.ParticipationPending
	}

	for id, existing := range s.participations {
		if existing.UserID == p.UserID && existing.GroupOrderID == p.GroupOrderID {
			existing.TotalAmount = p.TotalAmount
			existing.UpdatedAt = s.tick()
			s.participations[id] = existing

			p.ID = existing.ID
			p.Status = existing.Status
			p.CreatedAt = existing.CreatedAt
			p.UpdatedAt = existing.UpdatedAt
			return false, nil
		}
	}

	p.ID = s.id()
	p.CreatedAt = s.tick()
	p.UpdatedAt = p.CreatedAt
	stored := *p
	stored.Items = nil
	s.participations[p.ID] = stored
	return true, nil
}

func (r participations) ReplaceItems(_ context.Context, _ db.Querier, participationID int64, items []domain.LineItem) error {
	s := r.s
	if err := s.enter("Participations.ReplaceItems"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	p, ok := s.participations[participationID]
	if !ok {
		return repository.ErrParticipationNotFound
	}

	p.Items = make([]domain.LineItem, 0, len(items))
	for i := range items {
		if _, ok := s.products[items[i].ProductID]; !ok {
			return fmt.Errorf("foreign key violation: product %d", items[i].ProductID)
		}
		items[i].ID = s.id()
		items[i].ParticipationID = participationID
		p.Items = append(p.Items, items[i])
	}
	s.participations[participationID] = p
	return nil
}

func (r participations) Get(_ context.Context, _ db.Querier, userID, groupOrderID int64) (*domain.Participation, error) {
	s := r.s
	if err := s.enter("Participations.Get"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	for _, p := range s.participations {
		if p.UserID == userID && p.GroupOrderID == groupOrderID {
			c := cloneParticipation(p)
			return &c, nil
		}
	}
	return nil, repository.ErrParticipationNotFound
}

func (r participations) ListByGroupOrder(_ context.Context, _ db.Querier, groupOrderID int64) ([]domain.Participation, error) {
	s := r.s
	if err := s.enter("Participations.ListByGroupOrder"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	var out []domain.Participation
	for _, p := range s.participations {
		if p.GroupOrderID == groupOrderID {
			out = append(out, cloneParticipation(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r participations) Delete(_ context.Context, _ db.Querier, userID, groupOrderID int64) (bool, error) {
	s := r.s
	if err := s.enter("Participations.Delete"); err != nil {
		s.mu.Unlock()
		return false, err
	}
	defer s.mu.Unlock()

	for id, p := range s.participations {
		if p.UserID == userID && p.GroupOrderID == groupOrderID {
			delete(s.participations, id)
			return true, nil
		}
	}
	return false, nil
}

func (r participations) DeleteByGroupOrder(_ context.Context, _ db.Querier, groupOrderID int64) (int64, error) {
	s := r.s
	if err := s.enter("Participations.DeleteByGroupOrder"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	var removed int64
	for id, p := range s.participations {
		if p.GroupOrderID == groupOrderID {
			delete(s.participations, id)
			removed++
		}
	}
	return removed, nil
}

type products struct{ s *Store }

func (r products) Create(_ context.Context, _ db.Querier, product *domain.Product) (int64, error) {
	s := r.s
	if err := s.enter("Products.Create"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	defer s.mu.Unlock()

	product.ID = s.id()
	product.CreatedAt = s.tick()
	product.UpdatedAt = product.CreatedAt
	s.products[product.ID] = *product
	return product.ID, nil
}

func (r products) GetByID(_ context.Context, _ db.Querier, id int64) (*domain.Product, error) {
	s := r.s
	if err := s.enter("Products.GetByID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.DeletedAt != nil {
		return nil, repository.ErrProductNotFound
	}
	return &p, nil
}

func (r products) GetByIDs(_ context.Context, _ db.Querier, ids []int64) (map[int64]domain.Product, error) {
	s := r.s
	if err := s.enter("Products.GetByIDs"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	out := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok && p.DeletedAt == nil {
			out[id] = p
		}
	}
	return out, nil
}

func (r products) List(_ context.Context, _ db.Querier, limit, offset int64, search string) ([]domain.Product, int64, error) {
	s := r.s
	if err := s.enter("Products.List"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()

	needle := strings.ToLower(search)
	var out []domain.Product
	for _, p := range s.products {
		if p.DeletedAt != nil {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Category), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})

	return paginate(out, limit, offset), int64(len(out)), nil
}

func (r products) DeleteByID(_ context.Context, _ db.Querier, id int64) error {
	s := r.s
	if err := s.enter("Products.DeleteByID"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.DeletedAt != nil {
		return repository.ErrProductNotFound
	}
	now := s.tick()
	p.DeletedAt = &now
	s.products[id] = p
	return nil
}

func (r products) Update(_ context.Context, _ db.Querier, id int64, input *domain.UpdateProductInput) error {
	s := r.s
	if err := s.enter("Products.Update"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.DeletedAt != nil {
		return repository.ErrProductNotFound
	}
	if input.Name != nil {
		p.Name = *input.Name
	}
	if input.Description != nil {
		p.Description = *input.Description
	}
	if input.Price != nil {
		p.Price = *input.Price
	}
	if input.ImageUrl != nil {
		p.ImageUrl = *input.ImageUrl
	}
	if input.Category != nil {
		p.Category = *input.Category
	}
	p.UpdatedAt = s.tick()
	s.products[id] = p
	return nil
}

type users struct{ s *Store }

func (r users) GetByID(_ context.Context, _ db.Querier, id int64) (*domain.User, error) {
	s := r.s
	if err := s.enter("Users.GetByID"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r users) GetByIDs(_ context.Context, _ db.Querier, ids []int64) (map[int64]domain.User, error) {
	s := r.s
	if err := s.enter("Users.GetByIDs"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	defer s.mu.Unlock()

	out := make(map[int64]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (r users) List(_ context.Context, _ db.Querier, limit, offset int64) ([]domain.User, int64, error) {
	s := r.s
	if err := s.enter("Users.List"); err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}
	defer s.mu.Unlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].ID < out[j].ID
	})

	return paginate(out, limit, offset), int64(len(out)), nil
}

type activity struct{ s *Store }

func (r activity) Record(_ context.Context, _ db.Querier, entry *domain.ActivityLog) error {
	s := r.s
	if err := s.enter("Activity.Record"); err != nil {
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	entry.ID = s.id()
	entry.CreatedAt = s.tick()
	s.activity = append(s.activity, *entry)
	return nil
}

func containsStatus(statuses []domain.Status, s domain.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset int64) []T {
	if offset >= int64(len(items)) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}
