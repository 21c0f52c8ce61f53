package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmarket/marketplace-api/internal/dto"
	"github.com/oakmarket/marketplace-api/internal/model"
	"github.com/oakmarket/marketplace-api/internal/repository"
)

func newReviewService(store *repository.MemoryStore) *ReviewService {
	return NewReviewService(store.Reviews(), store.Products(), store.Orders(), nil, nil)
}

func reviewReq(productID uuid.UUID, rating int) dto.CreateReviewRequest {
	return dto.CreateReviewRequest{ProductID: productID, Rating: rating, Title: "review"}
}

func productRating(t *testing.T, store *repository.MemoryStore, id uuid.UUID) (float64, int) {
	t.Helper()
	p, err := store.Products().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Rating, p.ReviewCount
}

func TestReviewService_Create_ProductNotFound(t *testing.T) {
	svc := newReviewService(repository.NewMemoryStore())
	_, err := svc.Create(context.Background(), uuid.New(), reviewReq(uuid.New(), 5))
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestReviewService_Create_OnePerUserPerProduct(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newReviewService(store)
	ctx := context.Background()
	userID := uuid.New()
	p := newTestProduct(t, store, "10.00", 5)

	_, err := svc.Create(ctx, userID, reviewReq(p.ID, 4))
	require.NoError(t, err)

	_, err = svc.Create(ctx, userID, reviewReq(p.ID, 5))
	assert.ErrorIs(t, err, ErrDuplicateReview)

	// a different user may still review
	_, err = svc.Create(ctx, uuid.New(), reviewReq(p.ID, 5))
	assert.NoError(t, err)
}

func TestReviewService_RatingAggregate(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newReviewService(store)
	ctx := context.Background()
	p := newTestProduct(t, store, "10.00", 5)

	first, err := svc.Create(ctx, uuid.New(), reviewReq(p.ID, 4))
	require.NoError(t, err)
	_, err = svc.Create(ctx, uuid.New(), reviewReq(p.ID, 5))
	require.NoError(t, err)
	_, err = svc.Create(ctx, uuid.New(), reviewReq(p.ID, 5))
	require.NoError(t, err)

	// mean of 4,5,5 = 4.666..., rounded to one decimal
	rating, count := productRating(t, store, p.ID)
	assert.Equal(t, 4.7, rating)
	assert.Equal(t, 3, count)

	two := 2
	_, err = svc.Update(ctx, first.ID, first.UserID, model.RoleBuyer, dto.UpdateReviewRequest{Rating: &two})
	require.NoError(t, err)

	rating, count = productRating(t, store, p.ID)
	assert.Equal(t, 4.0, rating)
	assert.Equal(t, 3, count)

	require.NoError(t, svc.Delete(ctx, first.ID, first.UserID, model.RoleBuyer))
	rating, count = productRating(t, store, p.ID)
	assert.Equal(t, 5.0, rating)
	assert.Equal(t, 2, count)
}

func TestReviewService_LastDeleteResetsAggregate(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newReviewService(store)
	ctx := context.Background()
	userID := uuid.New()
	p := newTestProduct(t, store, "10.00", 5)

	review, err := svc.Create(ctx, userID, reviewReq(p.ID, 3))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, review.ID, userID, model.RoleBuyer))

	rating, count := productRating(t, store, p.ID)
	assert.Equal(t, 0.0, rating)
	assert.Equal(t, 0, count)
}

func TestReviewService_VerifiedPurchase(t *testing.T) {
	store := repository.NewMemoryStore()
	reviews := newReviewService(store)
	orders := newOrderService(t, store)
	ctx := context.Background()
	buyer := uuid.New()
	p := newTestProduct(t, store, "10.00", 10)

	// no delivered order yet
	r1, err := reviews.Create(ctx, uuid.New(), reviewReq(p.ID, 4))
	require.NoError(t, err)
	assert.False(t, r1.VerifiedPurchase)

	order, err := orders.Create(ctx, buyer, dto.CreateOrderRequest{
		Items:           []dto.OrderLineRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	})
	require.NoError(t, err)

	// order exists but is not delivered: still unverified
	r2, err := reviews.Create(ctx, buyer, reviewReq(p.ID, 5))
	require.NoError(t, err)
	assert.False(t, r2.VerifiedPurchase)

	for _, status := range []string{"processing", "shipped", "delivered"} {
		_, err := orders.UpdateStatus(ctx, order.ID, model.RoleAdmin, status)
		require.NoError(t, err)
	}

	verified := uuid.New()
	vOrder, err := orders.Create(ctx, verified, dto.CreateOrderRequest{
		Items:           []dto.OrderLineRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	})
	require.NoError(t, err)
	for _, status := range []string{"processing", "shipped", "delivered"} {
		_, err := orders.UpdateStatus(ctx, vOrder.ID, model.RoleAdmin, status)
		require.NoError(t, err)
	}

	r3, err := reviews.Create(ctx, verified, reviewReq(p.ID, 5))
	require.NoError(t, err)
	assert.True(t, r3.VerifiedPurchase)

	// the flag is decided at creation and not revisited
	got, err := reviews.GetByID(ctx, r2.ID)
	require.NoError(t, err)
	assert.False(t, got.VerifiedPurchase)
}

func TestReviewService_Create_ConcurrentSubmissions(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newReviewService(store)
	ctx := context.Background()
	userID := uuid.New()
	p := newTestProduct(t, store, "10.00", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, userID, reviewReq(p.ID, 4))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateReview)
		}
	}
	assert.Equal(t, 1, succeeded)

	reviews, err := store.Reviews().ListByProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
}

func TestReviewService_Update_OwnerOrAdmin(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newReviewService(store)
	ctx := context.Background()
	owner := uuid.New()
	p := newTestProduct(t, store, "10.00", 5)

	review, err := svc.Create(ctx, owner, reviewReq(p.ID, 4))
	require.NoError(t, err)

	title := "updated"
	_, err = svc.Update(ctx, review.ID, uuid.New(), model.RoleBuyer, dto.UpdateReviewRequest{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.Update(ctx, review.ID, owner, model.RoleBuyer, dto.UpdateReviewRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Title)

	moderated := "moderated"
	got, err = svc.Update(ctx, review.ID, uuid.New(), model.RoleAdmin, dto.UpdateReviewRequest{Title: &moderated})
	require.NoError(t, err)
	assert.Equal(t, "moderated", got.Title)
}

func TestReviewService_Delete_OwnerOrAdmin(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newReviewService(store)
	ctx := context.Background()
	owner := uuid.New()
	p := newTestProduct(t, store, "10.00", 5)

	review, err := svc.Create(ctx, owner, reviewReq(p.ID, 4))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, review.ID, uuid.New(), model.RoleBuyer), ErrForbidden)
	assert.NoError(t, svc.Delete(ctx, review.ID, uuid.New(), model.RoleAdmin))
	assert.ErrorIs(t, svc.Delete(ctx, review.ID, owner, model.RoleBuyer), ErrReviewNotFound)
}

func TestReviewService_List(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newReviewService(store)
	ctx := context.Background()
	userID := uuid.New()
	p1 := newTestProduct(t, store, "10.00", 5)
	p2 := newTestProduct(t, store, "20.00", 5)

	_, err := svc.Create(ctx, userID, reviewReq(p1.ID, 4))
	require.NoError(t, err)
	_, err = svc.Create(ctx, userID, reviewReq(p2.ID, 5))
	require.NoError(t, err)
	_, err = svc.Create(ctx, uuid.New(), reviewReq(p1.ID, 3))
	require.NoError(t, err)

	byProduct, err := svc.List(ctx, &p1.ID, nil)
	require.NoError(t, err)
	assert.Len(t, byProduct, 2)

	byUser, err := svc.List(ctx, nil, &userID)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	all, err := svc.List(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
