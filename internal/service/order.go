package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/oakmarket/marketplace-api/internal/dto"
	"github.com/oakmarket/marketplace-api/internal/metrics"
	"github.com/oakmarket/marketplace-api/internal/model"
	"github.com/oakmarket/marketplace-api/internal/pricing"
	"github.com/oakmarket/marketplace-api/internal/repository"
)

var (
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// statusRank orders the forward progression; cancelled sits outside it.
var statusRank = map[model.OrderStatus]int{
	model.OrderStatusPending:    0,
	model.OrderStatusProcessing: 1,
	model.OrderStatusShipped:    2,
	model.OrderStatusDelivered:  3,
}

type OrderService struct {
	orderRepo   repository.OrderRepository
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	calculator  *pricing.Calculator
	redisClient *redis.Client
	amqpCh      *amqp.Channel
	metrics     *metrics.Metrics
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	calculator *pricing.Calculator,
	redisClient *redis.Client,
	amqpCh *amqp.Channel,
	m *metrics.Metrics,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		calculator:  calculator,
		redisClient: redisClient,
		amqpCh:      amqpCh,
		metrics:     m,
	}
}

// Create assembles an order from the requested lines. Validation runs before
// any mutation: the first failing line aborts the whole operation and no
// stock moves. On success stock is reserved atomically for all lines, totals
// are computed from current catalog prices and snapshotted into immutable
// order items, and the user's cart is cleared.
func (s *OrderService) Create(ctx context.Context, userID uuid.UUID, req dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	stock := make([]repository.StockLine, 0, len(req.Items))
	lines := make([]pricing.Line, 0, len(req.Items))
	for _, line := range req.Items {
		product, err := s.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, ErrProductNotFound)
		}
		if product.Stock < line.Quantity {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, ErrInsufficientStock)
		}

		items = append(items, model.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			Price:     product.Price,
		})
		stock = append(stock, repository.StockLine{ProductID: product.ID, Quantity: line.Quantity})
		lines = append(lines, pricing.Line{UnitPrice: product.Price, Quantity: line.Quantity})
	}

	// The batch re-checks under the store's own atomicity; a concurrent
	// order may have taken the last unit since the read above.
	if err := s.productRepo.DecrementStockBatch(ctx, stock); err != nil {
		return nil, err
	}
	reserved := make([]uuid.UUID, len(stock))
	for i, line := range stock {
		reserved[i] = line.ProductID
	}
	invalidateProductCache(ctx, s.redisClient, reserved...)

	totals := s.calculator.Totals(lines)
	order := &model.Order{
		UserID:          userID,
		Items:           items,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Shipping:        totals.Shipping,
		Total:           totals.Total,
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress.Model(),
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.cartRepo.Clear(ctx, userID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	s.publishCreated(ctx, order)
	s.metrics.OrderCreated()

	resp := toOrderResponse(order)
	return &resp, nil
}

// publishCreated hands the order to the fulfillment queue. Best effort: the
// order is already persisted and a lost message only delays processing.
func (s *OrderService) publishCreated(ctx context.Context, order *model.Order) {
	if s.amqpCh == nil {
		return
	}
	msg, _ := json.Marshal(model.OrderMessage{OrderID: order.ID, UserID: order.UserID})
	_ = s.amqpCh.PublishWithContext(ctx, "", "orders", false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
}

func (s *OrderService) GetByID(ctx context.Context, orderID, userID uuid.UUID, role model.Role) (*dto.OrderResponse, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.UserID != userID && role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	resp := toOrderResponse(order)
	return &resp, nil
}

// List returns the caller's orders; admins see everyone's.
func (s *OrderService) List(ctx context.Context, userID uuid.UUID, role model.Role) ([]dto.OrderResponse, error) {
	var (
		orders []model.Order
		err    error
	)
	if role == model.RoleAdmin {
		orders, err = s.orderRepo.List(ctx)
	} else {
		orders, err = s.orderRepo.ListByUser(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		items = append(items, toOrderResponse(&o))
	}
	return items, nil
}

// UpdateStatus moves the order along the pending → processing → shipped →
// delivered progression. Cancelled is reachable from any non-terminal
// status; backward moves and moves out of a terminal status are rejected.
// Only admins and sellers may transition orders.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, role model.Role, newStatus string) (*dto.OrderResponse, error) {
	status := model.OrderStatus(newStatus)
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if role != model.RoleAdmin && role != model.RoleSeller {
		return nil, ErrForbidden
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if err := validateTransition(order.Status, status); err != nil {
		return nil, err
	}

	now := time.Now()
	order.Status = status
	switch status {
	case model.OrderStatusShipped:
		order.ShippedAt = &now
	case model.OrderStatusDelivered:
		order.DeliveredAt = &now
		order.PaymentStatus = model.PaymentStatusPaid
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	s.metrics.StatusTransition(string(status))
	resp := toOrderResponse(order)
	return &resp, nil
}

func validateTransition(from, to model.OrderStatus) error {
	if from == to {
		return nil
	}
	if from.Terminal() {
		return fmt.Errorf("order is %s: %w", from, ErrInvalidTransition)
	}
	if to == model.OrderStatusCancelled {
		return nil
	}
	if statusRank[to] < statusRank[from] {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// MarkProcessing is the worker-side transition for freshly created orders.
// Orders that already moved past pending are left alone.
func (s *OrderService) MarkProcessing(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.Status != model.OrderStatusPending {
		return nil
	}

	order.Status = model.OrderStatusProcessing
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	s.metrics.StatusTransition(string(model.OrderStatusProcessing))
	return nil
}

func toOrderResponse(order *model.Order) dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, dto.OrderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return dto.OrderResponse{
		ID:              order.ID,
		UserID:          order.UserID,
		Items:           items,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		Shipping:        order.Shipping,
		Total:           order.Total,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		ShippingAddress: order.ShippingAddress,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}
