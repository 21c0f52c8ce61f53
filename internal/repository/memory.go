package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakmarket/marketplace-api/internal/model"
)

// MemoryStore backs every repository interface with in-process maps guarded
// by a single mutex. Each repository call is one critical section, so the
// check-then-mutate sequences (stock reservation, cart upsert) are atomic
// without any further coordination. It is the storage used in tests and in
// DB_IN_MEMORY demo mode.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*model.User
	categories map[uuid.UUID]*model.Category
	products   map[uuid.UUID]*model.Product
	cartItems  map[uuid.UUID]*model.CartItem
	orders     map[uuid.UUID]*model.Order
	reviews    map[uuid.UUID]*model.Review
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[uuid.UUID]*model.User),
		categories: make(map[uuid.UUID]*model.Category),
		products:   make(map[uuid.UUID]*model.Product),
		cartItems:  make(map[uuid.UUID]*model.CartItem),
		orders:     make(map[uuid.UUID]*model.Order),
		reviews:    make(map[uuid.UUID]*model.Review),
	}
}

func (s *MemoryStore) Users() UserRepository          { return &memUserRepo{s} }
func (s *MemoryStore) Categories() CategoryRepository { return &memCategoryRepo{s} }
func (s *MemoryStore) Products() ProductRepository    { return &memProductRepo{s} }
func (s *MemoryStore) Cart() CartRepository           { return &memCartRepo{s} }
func (s *MemoryStore) Orders() OrderRepository        { return &memOrderRepo{s} }
func (s *MemoryStore) Reviews() ReviewRepository      { return &memReviewRepo{s} }

// --- users ---

type memUserRepo struct{ s *MemoryStore }

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Update(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return nil
	}
	user.UpdatedAt = time.Now()
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

// --- categories ---

type memCategoryRepo struct{ s *MemoryStore }

func (r *memCategoryRepo) Create(_ context.Context, category *model.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	category.ID = uuid.New()
	category.CreatedAt = time.Now()
	cp := *category
	r.s.categories[category.ID] = &cp
	return nil
}

func (r *memCategoryRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.categories[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *memCategoryRepo) List(_ context.Context) ([]model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var categories []model.Category
	for _, c := range r.s.categories {
		categories = append(categories, *c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (r *memCategoryRepo) ListByParent(_ context.Context, parentID uuid.UUID) ([]model.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var categories []model.Category
	for _, c := range r.s.categories {
		if c.ParentID != nil && *c.ParentID == parentID {
			categories = append(categories, *c)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (r *memCategoryRepo) Update(_ context.Context, category *model.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[category.ID]; !ok {
		return nil
	}
	cp := *category
	r.s.categories[category.ID] = &cp
	return nil
}

func (r *memCategoryRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[id]; !ok {
		return false, nil
	}
	delete(r.s.categories, id)
	return true, nil
}

// --- products ---

type memProductRepo struct{ s *MemoryStore }

func (r *memProductRepo) Create(_ context.Context, product *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product.ID = uuid.New()
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	cp := *product
	r.s.products[product.ID] = &cp
	return nil
}

func (r *memProductRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (r *memProductRepo) List(_ context.Context, filter ProductFilter) ([]model.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []model.Product
	for _, p := range r.s.products {
		if filter.CategoryID != nil && p.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.SellerID != nil && p.SellerID != *filter.SellerID {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(p.Name), needle) &&
				!strings.Contains(strings.ToLower(p.Description), needle) {
				continue
			}
		}
		if filter.Featured != nil && p.Featured != *filter.Featured {
			continue
		}
		if filter.MinPrice != nil && p.Price.LessThan(*filter.MinPrice) {
			continue
		}
		if filter.MaxPrice != nil && p.Price.GreaterThan(*filter.MaxPrice) {
			continue
		}
		matched = append(matched, *p)
	}

	switch filter.Sort {
	case SortPriceAsc:
		sort.Slice(matched, func(i, j int) bool { return matched[i].Price.LessThan(matched[j].Price) })
	case SortPriceDesc:
		sort.Slice(matched, func(i, j int) bool { return matched[j].Price.LessThan(matched[i].Price) })
	case SortRating:
		sort.Slice(matched, func(i, j int) bool { return matched[i].Rating > matched[j].Rating })
	default:
		sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	}

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func (r *memProductRepo) Update(_ context.Context, product *model.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[product.ID]; !ok {
		return nil
	}
	product.UpdatedAt = time.Now()
	cp := *product
	r.s.products[product.ID] = &cp
	return nil
}

func (r *memProductRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return false, nil
	}
	delete(r.s.products, id)
	return true, nil
}

func (r *memProductRepo) CountByCategory(_ context.Context, categoryID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, p := range r.s.products {
		if p.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

func (r *memProductRepo) AdjustStock(_ context.Context, id uuid.UUID, delta int) (*model.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	if p.Stock+delta < 0 {
		return nil, fmt.Errorf("adjust stock for product %s: %w", id, ErrInsufficientStock)
	}
	p.Stock += delta
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (r *memProductRepo) DecrementStockBatch(_ context.Context, lines []StockLine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// Validate everything before touching anything.
	for _, line := range lines {
		p, ok := r.s.products[line.ProductID]
		if !ok || p.Stock < line.Quantity {
			return fmt.Errorf("product %s: %w", line.ProductID, ErrInsufficientStock)
		}
	}
	for _, line := range lines {
		p := r.s.products[line.ProductID]
		p.Stock -= line.Quantity
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (r *memProductRepo) SetRating(_ context.Context, id uuid.UUID, rating float64, reviewCount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.products[id]; ok {
		p.Rating = rating
		p.ReviewCount = reviewCount
		p.UpdatedAt = time.Now()
	}
	return nil
}

// --- cart ---

type memCartRepo struct{ s *MemoryStore }

func (r *memCartRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []model.CartItem
	for _, item := range r.s.cartItems {
		if item.UserID == userID {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

func (r *memCartRepo) Get(_ context.Context, userID, productID uuid.UUID) (*model.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if item := r.s.findCartItem(userID, productID); item != nil {
		cp := *item
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) findCartItem(userID, productID uuid.UUID) *model.CartItem {
	for _, item := range s.cartItems {
		if item.UserID == userID && item.ProductID == productID {
			return item
		}
	}
	return nil
}

func (r *memCartRepo) Upsert(_ context.Context, item *model.CartItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.findCartItem(item.UserID, item.ProductID); existing != nil {
		existing.Quantity = item.Quantity
		existing.UpdatedAt = time.Now()
		*item = *existing
		return nil
	}
	item.ID = uuid.New()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	cp := *item
	r.s.cartItems[item.ID] = &cp
	return nil
}

func (r *memCartRepo) Add(_ context.Context, item *model.CartItem, max int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.findCartItem(item.UserID, item.ProductID); existing != nil {
		if existing.Quantity+item.Quantity > max {
			return ErrInsufficientStock
		}
		existing.Quantity += item.Quantity
		existing.UpdatedAt = time.Now()
		*item = *existing
		return nil
	}
	if item.Quantity > max {
		return ErrInsufficientStock
	}
	item.ID = uuid.New()
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	cp := *item
	r.s.cartItems[item.ID] = &cp
	return nil
}

func (r *memCartRepo) Remove(_ context.Context, userID, productID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if item := r.s.findCartItem(userID, productID); item != nil {
		delete(r.s.cartItems, item.ID)
		return true, nil
	}
	return false, nil
}

func (r *memCartRepo) Clear(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, item := range r.s.cartItems {
		if item.UserID == userID {
			delete(r.s.cartItems, id)
		}
	}
	return nil
}

// --- orders ---

type memOrderRepo struct{ s *MemoryStore }

func copyOrder(o *model.Order) model.Order {
	cp := *o
	cp.Items = make([]model.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return cp
}

func (r *memOrderRepo) Create(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	cp := copyOrder(order)
	r.s.orders[order.ID] = &cp
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if o, ok := r.s.orders[id]; ok {
		cp := copyOrder(o)
		return &cp, nil
	}
	return nil, nil
}

func (r *memOrderRepo) List(_ context.Context) ([]model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var orders []model.Order
	for _, o := range r.s.orders {
		orders = append(orders, copyOrder(o))
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (r *memOrderRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var orders []model.Order
	for _, o := range r.s.orders {
		if o.UserID == userID {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (r *memOrderRepo) Update(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.orders[order.ID]
	if !ok {
		return nil
	}
	existing.Status = order.Status
	existing.PaymentStatus = order.PaymentStatus
	existing.ShippedAt = order.ShippedAt
	existing.DeliveredAt = order.DeliveredAt
	existing.UpdatedAt = time.Now()
	order.UpdatedAt = existing.UpdatedAt
	return nil
}

// --- reviews ---

type memReviewRepo struct{ s *MemoryStore }

func (r *memReviewRepo) Create(_ context.Context, review *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rev := range r.s.reviews {
		if rev.ProductID == review.ProductID && rev.UserID == review.UserID {
			return ErrDuplicateReview
		}
	}
	review.ID = uuid.New()
	review.CreatedAt = time.Now()
	review.UpdatedAt = review.CreatedAt
	cp := *review
	r.s.reviews[review.ID] = &cp
	return nil
}

func (r *memReviewRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rev, ok := r.s.reviews[id]; ok {
		cp := *rev
		return &cp, nil
	}
	return nil, nil
}

func (r *memReviewRepo) GetByProductAndUser(_ context.Context, productID, userID uuid.UUID) (*model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rev := range r.s.reviews {
		if rev.ProductID == productID && rev.UserID == userID {
			cp := *rev
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memReviewRepo) ListByProduct(_ context.Context, productID uuid.UUID) ([]model.Review, error) {
	return r.listWhere(func(rev *model.Review) bool { return rev.ProductID == productID })
}

func (r *memReviewRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Review, error) {
	return r.listWhere(func(rev *model.Review) bool { return rev.UserID == userID })
}

func (r *memReviewRepo) List(_ context.Context) ([]model.Review, error) {
	return r.listWhere(func(*model.Review) bool { return true })
}

func (r *memReviewRepo) listWhere(keep func(*model.Review) bool) ([]model.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var reviews []model.Review
	for _, rev := range r.s.reviews {
		if keep(rev) {
			reviews = append(reviews, *rev)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.After(reviews[j].CreatedAt) })
	return reviews, nil
}

func (r *memReviewRepo) Update(_ context.Context, review *model.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[review.ID]; !ok {
		return nil
	}
	review.UpdatedAt = time.Now()
	cp := *review
	r.s.reviews[review.ID] = &cp
	return nil
}

func (r *memReviewRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[id]; !ok {
		return false, nil
	}
	delete(r.s.reviews, id)
	return true, nil
}
