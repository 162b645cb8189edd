package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"github.com/stretchr/testify/require"
)

func TestReportService_Build(t *testing.T) {
	f := newFixture(service.ParticipationOptions{})
	ctx := context.Background()

	liquid := f.store.AddProduct(domain.Product{Name: "Liquid Mint", Price: 2500, Category: "liquids"})
	coil := f.store.AddProduct(domain.Product{Name: "Coil 0.8", Price: 1200, Category: "coils"})
	dana := f.store.AddUser(domain.User{FullName: "Dana", Phone: "050-1"})
	avi := f.store.AddUser(domain.User{FullName: "Avi", Phone: "050-2"})

	order, err := f.lifecycle.Create(ctx, service.CreateGroupOrderInput{Title: "April", Deadline: f.clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	_, err = f.participation.Join(ctx, service.JoinInput{
		UserID:       dana.ID,
		GroupOrderID: order.ID,
		Selections:   []domain.Selection{{ProductID: liquid.ID, Quantity: 2}, {ProductID: coil.ID, Quantity: 5}},
	})
	require.NoError(t, err)
	_, err = f.participation.Join(ctx, service.JoinInput{
		UserID:       avi.ID,
		GroupOrderID: order.ID,
		Selections:   []domain.Selection{{ProductID: liquid.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	// catalog changes after joining must not move report totals
	f.store.SetPrice(liquid.ID, 1)

	reports, err := f.reports.Build(ctx, order.ID)
	require.NoError(t, err)

	require.Equal(t, 2, reports.Participant.ParticipantCount)
	require.Equal(t, "Dana", reports.Participant.Participants[0].FullName)
	require.Equal(t, "Avi", reports.Participant.Participants[1].FullName)
	require.Equal(t, int64(3*2500+5*1200), reports.Participant.GrandTotal)

	require.Equal(t, 2, reports.Supplier.DistinctProducts)
	require.Equal(t, int64(8), reports.Supplier.TotalItems)
	require.Equal(t, reports.Participant.GrandTotal, reports.Supplier.TotalValue)
}

func TestReportService_NotFound(t *testing.T) {
	f := newFixture(service.ParticipationOptions{})

	_, err := f.reports.Build(context.Background(), 31337)
	require.ErrorIs(t, err, service.ErrGroupOrderNotFound)
}
