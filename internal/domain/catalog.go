package domain

import "strings"

// AllCategories is the category value that disables category filtering.
const AllCategories = "all"

// ProductFilter narrows a product listing. The zero value matches every product.
type ProductFilter struct {
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
}

// matchesCategory reports whether p passes the category filter.
func (f ProductFilter) matchesCategory(p Product) bool {
	if f.Category == "" || f.Category == AllCategories {
		return true
	}
	return p.Category == f.Category
}

// matchesSearch reports whether p passes the search filter. A blank term
// matches everything; otherwise the term, surrounding spaces included, is
// matched case-insensitively as a substring of title, description or category.
func (f ProductFilter) matchesSearch(p Product) bool {
	if strings.TrimSpace(f.Search) == "" {
		return true
	}
	term := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(p.Title), term) ||
		strings.Contains(strings.ToLower(p.Description), term) ||
		strings.Contains(strings.ToLower(p.Category), term)
}

// Matches reports whether p passes both the category and the search filter.
func (f ProductFilter) Matches(p Product) bool {
	return f.matchesCategory(p) && f.matchesSearch(p)
}

// FilterProducts returns the products that match the filter, in their
// original order. The input slice is not modified.
func FilterProducts(products []Product, filter ProductFilter) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// Categories lists "all" followed by every distinct product category in the
// order it first appears. Products without a category are skipped.
func Categories(products []Product) []string {
	seen := map[string]struct{}{AllCategories: {}}
	out := []string{AllCategories}
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

// FindProduct returns the product with the given id.
func FindProduct(products []Product, id int64) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
