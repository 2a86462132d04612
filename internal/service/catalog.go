package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/enginerror/Shopping-Cart/internal/catalog"
	"github.com/enginerror/Shopping-Cart/internal/domain"
	apperrors "github.com/enginerror/Shopping-Cart/pkg/errors"
	"github.com/enginerror/Shopping-Cart/pkg/pagination"
)

const catalogUnavailableCode = "CATALOG_UNAVAILABLE"

// CatalogService serves the product catalog. The first successful load is
// kept for the life of the process; a failed load is not, so the next
// request tries again.
type CatalogService struct {
	provider catalog.Provider
	logger   *slog.Logger
	group    singleflight.Group

	mu       sync.RWMutex
	products []domain.Product
	loaded   bool
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(provider catalog.Provider, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		provider: provider,
		logger:   logger,
	}
}

// Products returns the full catalog, loading it on first use. Concurrent
// first calls share one fetch.
func (s *CatalogService) Products(ctx context.Context) ([]domain.Product, error) {
	if products, ok := s.cached(); ok {
		return products, nil
	}

	ch := s.group.DoChan("catalog", func() (any, error) {
		if products, ok := s.cached(); ok {
			return products, nil
		}
		// Waiters other than the first caller must not fail because the
		// first caller went away.
		return s.load(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load catalog: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Product), nil
	}
}

// Preload fetches the catalog ahead of the first request.
func (s *CatalogService) Preload(ctx context.Context) error {
	_, err := s.Products(ctx)
	return err
}

// Loaded reports whether the catalog has been fetched successfully.
func (s *CatalogService) Loaded() bool {
	_, ok := s.cached()
	return ok
}

func (s *CatalogService) cached() ([]domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products, s.loaded
}

func (s *CatalogService) load(ctx context.Context) ([]domain.Product, error) {
	products, err := s.provider.FetchProducts(ctx)
	if err != nil {
		catalogLoads.WithLabelValues("error").Inc()
		var fe *catalog.FetchError
		if errors.As(err, &fe) {
			return nil, apperrors.UpstreamUnavailable(catalogUnavailableCode, fe.Message, err)
		}
		return nil, apperrors.UpstreamUnavailable(catalogUnavailableCode, err.Error(), err)
	}

	s.mu.Lock()
	s.products = products
	s.loaded = true
	s.mu.Unlock()

	catalogLoads.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "catalog loaded", slog.Int("products", len(products)))
	return products, nil
}

// ListProducts filters the catalog and returns one page of the result.
func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter, params pagination.Params) (pagination.Result[domain.Product], error) {
	products, err := s.Products(ctx)
	if err != nil {
		return pagination.Result[domain.Product]{}, err
	}
	return pagination.Slice(domain.FilterProducts(products, filter), params), nil
}

// GetProduct returns a single product by id.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	p, ok := domain.FindProduct(products, id)
	if !ok {
		return domain.Product{}, apperrors.NotFound("product", strconv.FormatInt(id, 10))
	}
	return p, nil
}

// Categories lists "all" followed by the catalog categories.
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	return domain.Categories(products), nil
}

// HealthCheck reports the catalog as ready once it has been loaded, trying a
// load if it has not.
func (s *CatalogService) HealthCheck(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}
	return s.Preload(ctx)
}
