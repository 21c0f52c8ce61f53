package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oakmarket/marketplace-api/internal/dto"
	"github.com/oakmarket/marketplace-api/internal/metrics"
	"github.com/oakmarket/marketplace-api/internal/model"
	"github.com/oakmarket/marketplace-api/internal/repository"
)

var (
	ErrReviewNotFound = errors.New("review not found")

	// ErrDuplicateReview aliases the repository sentinel; the store enforces
	// the one-review-per-product-per-user rule atomically, so the service
	// just surfaces it.
	ErrDuplicateReview = repository.ErrDuplicateReview
)

type ReviewService struct {
	reviewRepo  repository.ReviewRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	redisClient *redis.Client
	metrics     *metrics.Metrics
}

func NewReviewService(
	reviewRepo repository.ReviewRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	redisClient *redis.Client,
	m *metrics.Metrics,
) *ReviewService {
	return &ReviewService{
		reviewRepo:  reviewRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		redisClient: redisClient,
		metrics:     m,
	}
}

// Create persists a review and recomputes the product's rating aggregate.
// A user gets one review per product. The verified-purchase flag is decided
// once here, from the user's delivered orders, and never recomputed.
func (s *ReviewService) Create(ctx context.Context, userID uuid.UUID, req dto.CreateReviewRequest) (*dto.ReviewResponse, error) {
	product, err := s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	existing, err := s.reviewRepo.GetByProductAndUser(ctx, req.ProductID, userID)
	if err != nil {
		return nil, fmt.Errorf("check existing review: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateReview
	}

	verified, err := s.hasDeliveredOrder(ctx, userID, req.ProductID)
	if err != nil {
		return nil, err
	}

	review := &model.Review{
		ProductID:        req.ProductID,
		UserID:           userID,
		Rating:           req.Rating,
		Title:            req.Title,
		Comment:          req.Comment,
		VerifiedPurchase: verified,
	}
	// The pre-check above rejects the common case early; the repository
	// still enforces the pair uniqueness atomically, so a concurrent
	// submission that slipped past it loses here.
	if err := s.reviewRepo.Create(ctx, review); err != nil {
		if errors.Is(err, ErrDuplicateReview) {
			return nil, ErrDuplicateReview
		}
		return nil, fmt.Errorf("create review: %w", err)
	}

	if err := s.recomputeRating(ctx, req.ProductID); err != nil {
		return nil, err
	}

	s.metrics.ReviewCreated()
	resp := toReviewResponse(review)
	return &resp, nil
}

func (s *ReviewService) hasDeliveredOrder(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	orders, err := s.orderRepo.ListByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list orders: %w", err)
	}
	for _, order := range orders {
		if order.Status != model.OrderStatusDelivered {
			continue
		}
		for _, item := range order.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *ReviewService) GetByID(ctx context.Context, id uuid.UUID) (*dto.ReviewResponse, error) {
	review, err := s.reviewRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if review == nil {
		return nil, ErrReviewNotFound
	}
	resp := toReviewResponse(review)
	return &resp, nil
}

// List returns reviews filtered by product, by user, or everything when
// both IDs are nil.
func (s *ReviewService) List(ctx context.Context, productID, userID *uuid.UUID) ([]dto.ReviewResponse, error) {
	var (
		reviews []model.Review
		err     error
	)
	switch {
	case productID != nil:
		reviews, err = s.reviewRepo.ListByProduct(ctx, *productID)
	case userID != nil:
		reviews, err = s.reviewRepo.ListByUser(ctx, *userID)
	default:
		reviews, err = s.reviewRepo.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	items := make([]dto.ReviewResponse, 0, len(reviews))
	for _, r := range reviews {
		items = append(items, toReviewResponse(&r))
	}
	return items, nil
}

// Update lets the review's owner or an admin change rating, title or
// comment, then recomputes the product aggregate.
func (s *ReviewService) Update(ctx context.Context, id, userID uuid.UUID, role model.Role, req dto.UpdateReviewRequest) (*dto.ReviewResponse, error) {
	review, err := s.reviewRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if review == nil {
		return nil, ErrReviewNotFound
	}
	if review.UserID != userID && role != model.RoleAdmin {
		return nil, ErrForbidden
	}

	if req.Rating != nil {
		review.Rating = *req.Rating
	}
	if req.Title != nil {
		review.Title = *req.Title
	}
	if req.Comment != nil {
		review.Comment = *req.Comment
	}

	if err := s.reviewRepo.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	if err := s.recomputeRating(ctx, review.ProductID); err != nil {
		return nil, err
	}

	resp := toReviewResponse(review)
	return &resp, nil
}

// Delete removes a review (owner or admin) and recomputes the aggregate;
// the last review's removal resets the product to rating 0, count 0.
func (s *ReviewService) Delete(ctx context.Context, id, userID uuid.UUID, role model.Role) error {
	review, err := s.reviewRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get review: %w", err)
	}
	if review == nil {
		return ErrReviewNotFound
	}
	if review.UserID != userID && role != model.RoleAdmin {
		return ErrForbidden
	}

	if _, err := s.reviewRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return s.recomputeRating(ctx, review.ProductID)
}

func (s *ReviewService) recomputeRating(ctx context.Context, productID uuid.UUID) error {
	reviews, err := s.reviewRepo.ListByProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("list reviews: %w", err)
	}

	rating := 0.0
	if len(reviews) > 0 {
		sum := 0
		for _, r := range reviews {
			sum += r.Rating
		}
		rating = math.Round(float64(sum)/float64(len(reviews))*10) / 10
	}

	if err := s.productRepo.SetRating(ctx, productID, rating, len(reviews)); err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	invalidateProductCache(ctx, s.redisClient, productID)
	return nil
}

func toReviewResponse(r *model.Review) dto.ReviewResponse {
	return dto.ReviewResponse{
		ID:               r.ID,
		ProductID:        r.ProductID,
		UserID:           r.UserID,
		Rating:           r.Rating,
		Title:            r.Title,
		Comment:          r.Comment,
		VerifiedPurchase: r.VerifiedPurchase,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
