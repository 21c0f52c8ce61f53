package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmarket/marketplace-api/internal/dto"
	"github.com/oakmarket/marketplace-api/internal/model"
	"github.com/oakmarket/marketplace-api/internal/repository"
)

func newProductService(store *repository.MemoryStore) *ProductService {
	return NewProductService(store.Products(), store.Categories(), store.Reviews(), nil)
}

func newTestCategory(t *testing.T, store *repository.MemoryStore) *model.Category {
	t.Helper()
	c := &model.Category{Name: "Electronics", Slug: "electronics"}
	require.NoError(t, store.Categories().Create(context.Background(), c))
	return c
}

func createProductReq(categoryID uuid.UUID) dto.CreateProductRequest {
	return dto.CreateProductRequest{
		Name:        "Wireless Headphones Pro 2",
		Description: "Over-ear, noise cancelling",
		Price:       decimal.RequireFromString("199.99"),
		CategoryID:  categoryID,
		Stock:       25,
	}
}

func TestProductService_Create(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newProductService(store)
	ctx := context.Background()
	category := newTestCategory(t, store)
	sellerID := uuid.New()

	resp, err := svc.Create(ctx, sellerID, model.RoleSeller, createProductReq(category.ID))
	require.NoError(t, err)
	assert.Equal(t, "wireless-headphones-pro-2", resp.Slug)
	assert.Equal(t, sellerID, resp.SellerID)
	assert.Equal(t, 0.0, resp.Rating)
	assert.Equal(t, 0, resp.ReviewCount)
}

func TestProductService_Create_BuyerForbidden(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newProductService(store)
	category := newTestCategory(t, store)

	_, err := svc.Create(context.Background(), uuid.New(), model.RoleBuyer, createProductReq(category.ID))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestProductService_Create_UnknownCategory(t *testing.T) {
	svc := newProductService(repository.NewMemoryStore())
	_, err := svc.Create(context.Background(), uuid.New(), model.RoleSeller, createProductReq(uuid.New()))
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestProductService_GetByID_NotFound(t *testing.T) {
	svc := newProductService(repository.NewMemoryStore())
	_, err := svc.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestProductService_List_Pagination(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newProductService(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		newTestProduct(t, store, "10.00", 1)
	}

	page, err := svc.List(ctx, dto.ListProductsRequest{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Products, 2)
	assert.Equal(t, 2, page.Pagination.Page)
	assert.Equal(t, 5, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.Pages)

	last, err := svc.List(ctx, dto.ListProductsRequest{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, last.Products, 1)

	empty, err := svc.List(ctx, dto.ListProductsRequest{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, empty.Products)
	assert.Equal(t, 3, empty.Pagination.Pages)
}

func TestProductService_List_PriceFilter(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newProductService(store)
	ctx := context.Background()
	newTestProduct(t, store, "5.00", 1)
	boundary := newTestProduct(t, store, "10.00", 1)
	newTestProduct(t, store, "20.00", 1)

	page, err := svc.List(ctx, dto.ListProductsRequest{MinPrice: "10.00", MaxPrice: "10.00", Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Products, 1, "price bounds are inclusive")
	assert.Equal(t, boundary.ID, page.Products[0].ID)
}

func TestProductService_Update_OwnerOrAdmin(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newProductService(store)
	ctx := context.Background()
	category := newTestCategory(t, store)
	sellerID := uuid.New()

	created, err := svc.Create(ctx, sellerID, model.RoleSeller, createProductReq(category.ID))
	require.NoError(t, err)

	name := "Renamed Headphones"
	_, err = svc.Update(ctx, created.ID, uuid.New(), model.RoleSeller, dto.UpdateProductRequest{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden, "another seller may not edit")

	updated, err := svc.Update(ctx, created.ID, sellerID, model.RoleSeller, dto.UpdateProductRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Headphones", updated.Name)
	assert.Equal(t, "renamed-headphones", updated.Slug, "slug follows the name")

	featured := true
	asAdmin, err := svc.Update(ctx, created.ID, uuid.New(), model.RoleAdmin, dto.UpdateProductRequest{Featured: &featured})
	require.NoError(t, err)
	assert.True(t, asAdmin.Featured)
}

func TestProductService_Delete(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newProductService(store)
	ctx := context.Background()
	category := newTestCategory(t, store)
	sellerID := uuid.New()

	created, err := svc.Create(ctx, sellerID, model.RoleSeller, createProductReq(category.ID))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, created.ID, uuid.New(), model.RoleSeller), ErrForbidden)
	assert.NoError(t, svc.Delete(ctx, created.ID, sellerID, model.RoleSeller))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID, sellerID, model.RoleSeller), ErrProductNotFound)
}

func TestProductService_GetDetail_IncludesReviews(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newProductService(store)
	reviews := newReviewService(store)
	ctx := context.Background()
	p := newTestProduct(t, store, "10.00", 5)

	_, err := reviews.Create(ctx, uuid.New(), reviewReq(p.ID, 4))
	require.NoError(t, err)

	detail, err := svc.GetDetail(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Reviews, 1)
	assert.Equal(t, 4.0, detail.Rating)
	assert.Equal(t, 1, detail.ReviewCount)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Wireless Headphones": "wireless-headphones",
		"  Spaced   Out  ":    "spaced-out",
		"USB-C Hub (2nd ed.)": "usb-c-hub-2nd-ed",
		"already-a-slug":      "already-a-slug",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugify(in), in)
	}
}
