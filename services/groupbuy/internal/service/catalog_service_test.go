package service_test

import (
	"context"
	"testing"

	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
	"github.com/stretchr/testify/require"
)

func TestCatalog_CreateUpdateDelete(t *testing.T) {
	f := newFixture(service.ParticipationOptions{})
	ctx := service.WithActor(context.Background(), 1)

	id, err := f.catalog.Create(ctx, &domain.Product{Name: " Pod Kit ", Price: 9900, Category: "devices"})
	require.NoError(t, err)

	product, err := f.catalog.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Pod Kit", product.Name)

	updated, err := f.catalog.Update(ctx, id, &domain.UpdateProductInput{Price: ptr(int64(8900))})
	require.NoError(t, err)
	require.Equal(t, int64(8900), updated.Price)

	require.NoError(t, f.catalog.Delete(ctx, id))

	_, err = f.catalog.FindByID(ctx, id)
	require.ErrorIs(t, err, service.ErrCatalogNotFound)
	require.ErrorIs(t, err, service.ErrNotFound)

	err = f.catalog.Delete(ctx, id)
	require.ErrorIs(t, err, service.ErrCatalogNotFound)

	require.Len(t, f.store.ActivityLog(), 3)
}

func TestCatalog_Validation(t *testing.T) {
	f := newFixture(service.ParticipationOptions{})
	ctx := context.Background()

	_, err := f.catalog.Create(ctx, &domain.Product{Name: "", Price: 100})
	require.ErrorIs(t, err, service.ErrProductNameRequired)

	_, err = f.catalog.Create(ctx, &domain.Product{Name: "x", Price: -1})
	require.ErrorIs(t, err, service.ErrNegativePrice)

	_, err = f.catalog.Update(ctx, 1, &domain.UpdateProductInput{})
	require.ErrorIs(t, err, service.ErrEmptyPatch)
}

func TestCatalog_ListSearchAndPaging(t *testing.T) {
	f := newFixture(service.ParticipationOptions{})
	ctx := context.Background()

	f.store.AddProduct(domain.Product{Name: "Liquid Mint", Price: 10, Category: "liquids"})
	f.store.AddProduct(domain.Product{Name: "Liquid Berry", Price: 10, Category: "liquids"})
	f.store.AddProduct(domain.Product{Name: "Coil 0.8", Price: 10, Category: "coils"})

	products, total, err := f.catalog.List(ctx, 10, 0, "liquid")
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Equal(t, "Liquid Berry", products[0].Name)

	products, total, err = f.catalog.List(ctx, 1, 1, "")
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, products, 1)
	require.Equal(t, "Liquid Berry", products[0].Name)
}
