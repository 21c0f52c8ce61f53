package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oakmarket/marketplace-api/internal/model"
)

// ErrInsufficientStock is returned by stock mutations that would drive a
// product's stock below zero. The store state is unchanged when it is
// returned.
var ErrInsufficientStock = errors.New("insufficient stock")

const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
	SortNewest    = "newest"
)

type ProductFilter struct {
	CategoryID *uuid.UUID
	SellerID   *uuid.UUID
	Search     string
	Featured   *bool
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Sort       string
	Limit      int
	Offset     int
}

// StockLine pairs a product with the quantity to reserve for it.
type StockLine struct {
	ProductID uuid.UUID
	Quantity  int
}

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]model.Product, int, error)
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error)
	// AdjustStock applies delta (possibly negative) to the product's stock.
	// Returns (nil, nil) if the product does not exist and
	// ErrInsufficientStock if the resulting stock would be negative.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*model.Product, error)
	// DecrementStockBatch atomically reserves stock for every line or none
	// of them.
	DecrementStockBatch(ctx context.Context, lines []StockLine) error
	SetRating(ctx context.Context, id uuid.UUID, rating float64, reviewCount int) error
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	query := `INSERT INTO products (id, name, slug, description, price, compare_at_price, stock,
				category_id, seller_id, images, featured, rating, review_count, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 0, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Slug, product.Description, product.Price,
		product.CompareAtPrice, product.Stock, product.CategoryID, product.SellerID,
		product.Images, product.Featured,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

const productColumns = `id, name, slug, description, price, compare_at_price, stock,
	category_id, seller_id, images, featured, rating, review_count, created_at, updated_at`

func scanProduct(row pgx.Row, p *model.Product) error {
	return row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.CompareAtPrice, &p.Stock,
		&p.CategoryID, &p.SellerID, &p.Images, &p.Featured, &p.Rating, &p.ReviewCount,
		&p.CreatedAt, &p.UpdatedAt,
	)
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p := &model.Product{}
	err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id), p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) List(ctx context.Context, filter ProductFilter) ([]model.Product, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CategoryID != nil {
		conds = append(conds, "category_id = "+arg(*filter.CategoryID))
	}
	if filter.SellerID != nil {
		conds = append(conds, "seller_id = "+arg(*filter.SellerID))
	}
	if filter.Search != "" {
		n := arg(filter.Search)
		conds = append(conds, fmt.Sprintf("(name ILIKE '%%' || %s || '%%' OR description ILIKE '%%' || %s || '%%')", n, n))
	}
	if filter.Featured != nil {
		conds = append(conds, "featured = "+arg(*filter.Featured))
	}
	if filter.MinPrice != nil {
		conds = append(conds, "price >= "+arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		conds = append(conds, "price <= "+arg(*filter.MaxPrice))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	orderBy := "created_at DESC"
	switch filter.Sort {
	case SortPriceAsc:
		orderBy = "price ASC"
	case SortPriceDesc:
		orderBy = "price DESC"
	case SortRating:
		orderBy = "rating DESC"
	case SortNewest:
		orderBy = "created_at DESC"
	}

	// Limit 0 means unbounded.
	page := ""
	if filter.Limit > 0 {
		page = fmt.Sprintf(" LIMIT %s OFFSET %s", arg(filter.Limit), arg(filter.Offset))
	}
	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY %s%s",
		productColumns, where, orderBy, page)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, total, nil
}

func (r *pgProductRepo) Update(ctx context.Context, product *model.Product) error {
	query := `UPDATE products SET name=$2, slug=$3, description=$4, price=$5, compare_at_price=$6,
				stock=$7, category_id=$8, images=$9, featured=$10, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Slug, product.Description, product.Price,
		product.CompareAtPrice, product.Stock, product.CategoryID, product.Images, product.Featured,
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *pgProductRepo) CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE category_id = $1`, categoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count products by category: %w", err)
	}
	return count, nil
}

func (r *pgProductRepo) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*model.Product, error) {
	p := &model.Product{}
	err := scanProduct(r.pool.QueryRow(ctx,
		`UPDATE products SET stock = stock + $2, updated_at = NOW()
		 WHERE id = $1 AND stock + $2 >= 0 RETURNING `+productColumns, id, delta), p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("adjust stock: %w", err)
	}

	// Guarded update matched nothing: either the product is gone or the
	// delta would go negative.
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	return nil, fmt.Errorf("adjust stock for product %s: %w", id, ErrInsufficientStock)
}

func (r *pgProductRepo) DecrementStockBatch(ctx context.Context, lines []StockLine) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, line := range lines {
		ct, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`,
			line.ProductID, line.Quantity,
		)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("product %s: %w", line.ProductID, ErrInsufficientStock)
		}
	}
	return tx.Commit(ctx)
}

func (r *pgProductRepo) SetRating(ctx context.Context, id uuid.UUID, rating float64, reviewCount int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE products SET rating = $2, review_count = $3, updated_at = NOW() WHERE id = $1`,
		id, rating, reviewCount,
	)
	if err != nil {
		return fmt.Errorf("set rating: %w", err)
	}
	return nil
}
