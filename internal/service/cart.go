package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/oakmarket/marketplace-api/internal/dto"
	"github.com/oakmarket/marketplace-api/internal/metrics"
	"github.com/oakmarket/marketplace-api/internal/model"
	"github.com/oakmarket/marketplace-api/internal/pricing"
	"github.com/oakmarket/marketplace-api/internal/repository"
)

var (
	ErrCartItemNotFound = errors.New("cart item not found")

	// ErrInsufficientStock aliases the repository sentinel so callers match
	// stock failures from either layer with one errors.Is check.
	ErrInsufficientStock = repository.ErrInsufficientStock
)

type CartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	metrics     *metrics.Metrics
}

func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, m *metrics.Metrics) *CartService {
	return &CartService{cartRepo: cartRepo, productRepo: productRepo, metrics: m}
}

// Get returns the user's cart enriched with product snapshots. Lines whose
// product has been removed from the catalog keep a nil product; they carry
// no price and do not count toward the subtotal.
func (s *CartService) Get(ctx context.Context, userID uuid.UUID) (*dto.CartResponse, error) {
	items, err := s.cartRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}
	return s.enrich(ctx, items)
}

func (s *CartService) enrich(ctx context.Context, items []model.CartItem) (*dto.CartResponse, error) {
	lines := make([]dto.CartLineResponse, 0, len(items))
	var priced []pricing.Line
	for _, item := range items {
		line := dto.CartLineResponse{ProductID: item.ProductID, Quantity: item.Quantity}
		product, err := s.productRepo.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if product != nil {
			line.Product = &dto.CartProductSnapshot{
				ID:     product.ID,
				Name:   product.Name,
				Price:  product.Price,
				Images: product.Images,
				Stock:  product.Stock,
			}
			priced = append(priced, pricing.Line{UnitPrice: product.Price, Quantity: item.Quantity})
		}
		lines = append(lines, line)
	}

	return &dto.CartResponse{
		Items:     lines,
		Subtotal:  pricing.Subtotal(priced).Round(2),
		ItemCount: len(lines),
	}, nil
}

// AddItem adds quantity to the user's line for the product, creating the
// line on first add. The combined quantity may not exceed current stock; on
// violation neither server nor caller state changes. The increment and the
// stock cap are applied in a single repository step so concurrent adds for
// the same line never lose each other's updates.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return ErrProductNotFound
	}

	return s.cartRepo.Add(ctx, &model.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	}, product.Stock)
}

// UpdateItem sets the line quantity outright.
func (s *CartService) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return ErrProductNotFound
	}

	existing, err := s.cartRepo.Get(ctx, userID, productID)
	if err != nil {
		return fmt.Errorf("get cart item: %w", err)
	}
	if existing == nil {
		return ErrCartItemNotFound
	}

	if quantity > product.Stock {
		return ErrInsufficientStock
	}

	return s.cartRepo.Upsert(ctx, &model.CartItem{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	removed, err := s.cartRepo.Remove(ctx, userID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if !removed {
		return ErrCartItemNotFound
	}
	return nil
}

// Clear empties the cart. Clearing an already empty cart is a no-op.
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.cartRepo.Clear(ctx, userID)
}

// Sync reconciles a client-held cart with the server cart and returns the
// merged view, which becomes the client's new offline snapshot.
//
// Server lines are taken first and their quantities always win for products
// present on both sides. Local-only lines are pushed to the server cart
// best-effort: a line whose product is gone or out of stock is dropped
// without surfacing an error, because the sync is advisory, not
// transactional.
func (s *CartService) Sync(ctx context.Context, userID uuid.UUID, local []dto.ClientCartLine) (*dto.CartResponse, error) {
	s.metrics.CartSyncRun()

	server, err := s.cartRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart: %w", err)
	}

	merged := make([]model.CartItem, 0, len(server)+len(local))
	seen := make(map[uuid.UUID]bool, len(server))
	for _, item := range server {
		product, err := s.productRepo.GetByID(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			// Product vanished since the line was added; drop silently.
			s.metrics.CartSyncDroppedLine()
			continue
		}
		merged = append(merged, item)
		seen[item.ProductID] = true
	}

	for _, line := range local {
		if seen[line.ProductID] {
			continue
		}
		if err := s.AddItem(ctx, userID, line.ProductID, line.Quantity); err != nil {
			s.metrics.CartSyncDroppedLine()
			continue
		}
		merged = append(merged, model.CartItem{
			UserID:    userID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
		seen[line.ProductID] = true
	}

	return s.enrich(ctx, merged)
}
