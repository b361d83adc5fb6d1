package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

// CategoryService manages the category taxonomy.
type CategoryService struct {
	store storage.CategoryStore
}

func NewCategoryService(store storage.CategoryStore) *CategoryService {
	return &CategoryService{store: store}
}

// AddCategory creates name, or returns the existing category unchanged.
func (s *CategoryService) AddCategory(ctx context.Context, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyCategory
	}

	existing, found, err := s.store.FindCategory(ctx, name)
	if err != nil {
		return core.Category{}, err
	}
	if found {
		return existing, nil
	}

	c := core.Category{Name: name, SubCategories: []string{}}
	if err := s.store.SaveCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("save category %q: %w", name, err)
	}
	return c, nil
}

// AddSubCategory appends sub to category, creating the category if needed.
// Adding a sub-category that already exists is a no-op.
func (s *CategoryService) AddSubCategory(ctx context.Context, category, sub string) (core.Category, error) {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return core.Category{}, fmt.Errorf("sub-category: %w", core.ErrEmptyCategory)
	}

	c, err := s.AddCategory(ctx, category)
	if err != nil {
		return core.Category{}, err
	}
	if slices.Contains(c.SubCategories, sub) {
		return c, nil
	}

	c.SubCategories = append(c.SubCategories, sub)
	if err := s.store.SaveCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("save category %q: %w", c.Name, err)
	}
	return c, nil
}

func (s *CategoryService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *CategoryService) DeleteCategory(ctx context.Context, name string) error {
	return s.store.DeleteCategory(ctx, strings.TrimSpace(name))
}
