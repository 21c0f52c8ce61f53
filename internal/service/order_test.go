package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakmarket/marketplace-api/internal/dto"
	"github.com/oakmarket/marketplace-api/internal/model"
	"github.com/oakmarket/marketplace-api/internal/pricing"
	"github.com/oakmarket/marketplace-api/internal/repository"
)

func testCalculator(t *testing.T) *pricing.Calculator {
	t.Helper()
	calc, err := pricing.NewCalculator("0.08", "15.99")
	require.NoError(t, err)
	return calc
}

func newOrderService(t *testing.T, store *repository.MemoryStore) *OrderService {
	t.Helper()
	return NewOrderService(store.Orders(), store.Cart(), store.Products(), testCalculator(t), nil, nil, nil)
}

func testAddress() dto.AddressRequest {
	return dto.AddressRequest{
		Street:  "1 Main St",
		City:    "Portland",
		State:   "OR",
		ZipCode: "97201",
		Country: "US",
	}
}

func TestOrderService_Create_EmptyOrder(t *testing.T) {
	svc := newOrderService(t, repository.NewMemoryStore())
	_, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	})
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestOrderService_Create_TotalsAndSnapshot(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()
	userID := uuid.New()
	p := newTestProduct(t, store, "10.00", 10)

	order, err := svc.Create(ctx, userID, dto.CreateOrderRequest{
		Items:           []dto.OrderLineRequest{{ProductID: p.ID, Quantity: 4}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	})
	require.NoError(t, err)

	assert.Equal(t, "40.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "3.20", order.Tax.StringFixed(2))
	assert.Equal(t, "15.99", order.Shipping.StringFixed(2))
	assert.Equal(t, "59.19", order.Total.StringFixed(2))
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)

	// Stock was reserved.
	got, err := store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)

	// A later catalog price change must not touch the snapshot.
	got.Price = got.Price.Mul(decimal.NewFromInt(2))
	require.NoError(t, store.Products().Update(ctx, got))

	fetched, err := svc.GetByID(ctx, order.ID, userID, model.RoleBuyer)
	require.NoError(t, err)
	assert.Equal(t, "10.00", fetched.Items[0].Price.StringFixed(2))
	assert.Equal(t, "59.19", fetched.Total.StringFixed(2))
}

func TestOrderService_Create_ClearsCart(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	cart := newCartService(store)
	ctx := context.Background()
	userID := uuid.New()
	p := newTestProduct(t, store, "10.00", 10)

	require.NoError(t, cart.AddItem(ctx, userID, p.ID, 2))

	_, err := svc.Create(ctx, userID, dto.CreateOrderRequest{
		Items:           []dto.OrderLineRequest{{ProductID: p.ID, Quantity: 2}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "paypal",
	})
	require.NoError(t, err)

	got, err := cart.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestOrderService_Create_AllOrNothing(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()
	ok := newTestProduct(t, store, "10.00", 10)
	scarce := newTestProduct(t, store, "5.00", 1)

	_, err := svc.Create(ctx, uuid.New(), dto.CreateOrderRequest{
		Items: []dto.OrderLineRequest{
			{ProductID: ok.ID, Quantity: 2},
			{ProductID: scarce.ID, Quantity: 3},
		},
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// The satisfiable line must not have been reserved.
	got, err := store.Products().GetByID(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
}

func TestOrderService_Create_UnknownProduct(t *testing.T) {
	svc := newOrderService(t, repository.NewMemoryStore())
	_, err := svc.Create(context.Background(), uuid.New(), dto.CreateOrderRequest{
		Items:           []dto.OrderLineRequest{{ProductID: uuid.New(), Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestOrderService_Create_ConcurrentLastUnit(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()
	p := newTestProduct(t, store, "10.00", 1)

	req := dto.CreateOrderRequest{
		Items:           []dto.OrderLineRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(ctx, uuid.New(), req)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one order may take the last unit")

	got, err := store.Products().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func createTestOrder(t *testing.T, svc *OrderService, store *repository.MemoryStore, userID uuid.UUID) *dto.OrderResponse {
	t.Helper()
	p := newTestProduct(t, store, "10.00", 10)
	order, err := svc.Create(context.Background(), userID, dto.CreateOrderRequest{
		Items:           []dto.OrderLineRequest{{ProductID: p.ID, Quantity: 1}},
		ShippingAddress: testAddress(),
		PaymentMethod:   "credit_card",
	})
	require.NoError(t, err)
	return order
}

func TestOrderService_GetByID_Ownership(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()
	owner := uuid.New()
	order := createTestOrder(t, svc, store, owner)

	_, err := svc.GetByID(ctx, order.ID, owner, model.RoleBuyer)
	assert.NoError(t, err)

	_, err = svc.GetByID(ctx, order.ID, uuid.New(), model.RoleBuyer)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.GetByID(ctx, order.ID, uuid.New(), model.RoleAdmin)
	assert.NoError(t, err)

	_, err = svc.GetByID(ctx, uuid.New(), owner, model.RoleBuyer)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderService_UpdateStatus_ForwardProgression(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()
	order := createTestOrder(t, svc, store, uuid.New())

	for _, status := range []string{"processing", "shipped", "delivered"} {
		got, err := svc.UpdateStatus(ctx, order.ID, model.RoleAdmin, status)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatus(status), got.Status)
	}

	// delivered stamps the timestamp and settles payment
	got, err := svc.GetByID(ctx, order.ID, uuid.New(), model.RoleAdmin)
	require.NoError(t, err)
	assert.NotNil(t, got.ShippedAt)
	assert.NotNil(t, got.DeliveredAt)
	assert.Equal(t, model.PaymentStatusPaid, got.PaymentStatus)
}

func TestOrderService_UpdateStatus_Rejections(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()
	order := createTestOrder(t, svc, store, uuid.New())

	_, err := svc.UpdateStatus(ctx, order.ID, model.RoleAdmin, "teleported")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.UpdateStatus(ctx, order.ID, model.RoleBuyer, "processing")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.UpdateStatus(ctx, order.ID, model.RoleSeller, "shipped")
	require.NoError(t, err)

	// backward move
	_, err = svc.UpdateStatus(ctx, order.ID, model.RoleAdmin, "pending")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// same status is accepted and idempotent
	got, err := svc.UpdateStatus(ctx, order.ID, model.RoleAdmin, "shipped")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, got.Status)
}

func TestOrderService_UpdateStatus_TerminalIsFrozen(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()

	delivered := createTestOrder(t, svc, store, uuid.New())
	for _, status := range []string{"processing", "shipped", "delivered"} {
		_, err := svc.UpdateStatus(ctx, delivered.ID, model.RoleAdmin, status)
		require.NoError(t, err)
	}
	_, err := svc.UpdateStatus(ctx, delivered.ID, model.RoleAdmin, "cancelled")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	cancelled := createTestOrder(t, svc, store, uuid.New())
	_, err = svc.UpdateStatus(ctx, cancelled.ID, model.RoleAdmin, "cancelled")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, cancelled.ID, model.RoleAdmin, "processing")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrderService_UpdateStatus_CancelFromNonTerminal(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()

	order := createTestOrder(t, svc, store, uuid.New())
	_, err := svc.UpdateStatus(ctx, order.ID, model.RoleAdmin, "shipped")
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, order.ID, model.RoleAdmin, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, got.Status)
}

func TestOrderService_MarkProcessing(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()
	order := createTestOrder(t, svc, store, uuid.New())

	require.NoError(t, svc.MarkProcessing(ctx, order.ID))
	got, err := svc.GetByID(ctx, order.ID, uuid.New(), model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, got.Status)

	// already past pending: no-op, not an error
	_, err = svc.UpdateStatus(ctx, order.ID, model.RoleAdmin, "shipped")
	require.NoError(t, err)
	require.NoError(t, svc.MarkProcessing(ctx, order.ID))
	got, err = svc.GetByID(ctx, order.ID, uuid.New(), model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, got.Status)

	assert.ErrorIs(t, svc.MarkProcessing(ctx, uuid.New()), ErrOrderNotFound)
}

func TestOrderService_List(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newOrderService(t, store)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()
	createTestOrder(t, svc, store, alice)
	createTestOrder(t, svc, store, alice)
	createTestOrder(t, svc, store, bob)

	mine, err := svc.List(ctx, alice, model.RoleBuyer)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := svc.List(ctx, alice, model.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
