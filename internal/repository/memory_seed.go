package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/oakmarket/marketplace-api/internal/model"
)

// Seed loads a small demo catalog: one admin, one seller, one buyer
// (password "password123" for all three), two categories and a handful of
// products. Only used in DB_IN_MEMORY mode.
func (s *MemoryStore) Seed(ctx context.Context) error {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	users := s.Users()
	admin := &model.User{Email: "admin@oakmarket.dev", Password: string(hash), FirstName: "Ada", LastName: "Admin", Role: model.RoleAdmin}
	seller := &model.User{
		Email: "seller@oakmarket.dev", Password: string(hash), FirstName: "Sam", LastName: "Seller",
		Role:    model.RoleSeller,
		Address: model.Address{Street: "456 Oak Ave", City: "Los Angeles", State: "CA", ZipCode: "90001", Country: "USA"},
	}
	buyer := &model.User{
		Email: "buyer@oakmarket.dev", Password: string(hash), FirstName: "Bea", LastName: "Buyer",
		Role:    model.RoleBuyer,
		Address: model.Address{Street: "123 Main St", City: "New York", State: "NY", ZipCode: "10001", Country: "USA"},
	}
	for _, u := range []*model.User{admin, seller, buyer} {
		if err := users.Create(ctx, u); err != nil {
			return err
		}
	}

	categories := s.Categories()
	electronics := &model.Category{Name: "Electronics", Slug: "electronics", Description: "Devices and accessories"}
	books := &model.Category{Name: "Books", Slug: "books", Description: "Print and audiobooks"}
	for _, c := range []*model.Category{electronics, books} {
		if err := categories.Create(ctx, c); err != nil {
			return err
		}
	}

	compare := decimal.RequireFromString("249.99")
	products := []*model.Product{
		{
			Name: "Wireless Headphones", Slug: "wireless-headphones",
			Description: "Over-ear noise cancelling headphones",
			Price:       decimal.RequireFromString("199.99"), CompareAtPrice: &compare,
			Stock: 25, CategoryID: electronics.ID, SellerID: seller.ID, Featured: true,
		},
		{
			Name: "Mechanical Keyboard", Slug: "mechanical-keyboard",
			Description: "Tenkeyless board with hot-swappable switches",
			Price:       decimal.RequireFromString("89.50"),
			Stock:       40, CategoryID: electronics.ID, SellerID: seller.ID,
		},
		{
			Name: "The Go Programming Language", Slug: "the-go-programming-language",
			Description: "Donovan and Kernighan's reference",
			Price:       decimal.RequireFromString("39.99"),
			Stock:       120, CategoryID: books.ID, SellerID: seller.ID, Featured: true,
		},
	}
	repo := s.Products()
	for _, p := range products {
		if err := repo.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
