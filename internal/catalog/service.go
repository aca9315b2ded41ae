package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shelfd.org/internal/ids"
)

// Service defines catalog operations. Implementations are safe for
// concurrent use.
type Service interface {
	List(ctx context.Context) ([]Product, error)
	ListPage(ctx context.Context, page, size int) (Page, error)
	Get(ctx context.Context, id string) (Product, error)
	ListActive(ctx context.Context) ([]Product, error)
	ListByCategory(ctx context.Context, category string) ([]Product, error)
	SearchByName(ctx context.Context, name string) ([]Product, error)
	ListByPriceRange(ctx context.Context, minPrice, maxPrice int64) ([]Product, error)
	ListAvailable(ctx context.Context, minStock int) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
	ListFiltered(ctx context.Context, f Filter, page, size int) (Page, error)
	Create(ctx context.Context, in ProductInput) (Product, error)
	CreateBulk(ctx context.Context, ins []ProductInput) ([]Product, error)
	Update(ctx context.Context, id string, in ProductInput) (Product, error)
	Delete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	SearchByEmbedding(ctx context.Context, query []float64, threshold float64, limit int) ([]Match, error)
}

// InMemory implements Service with in-process concurrency safety. It backs
// development mode and tests; production deployments use the Postgres store.
type InMemory struct {
	mu       sync.RWMutex
	products map[string]*Product
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty catalog.
func NewInMemory() *InMemory {
	return &InMemory{products: make(map[string]*Product)}
}

func validateInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if in.StockQuantity < 0 {
		return fmt.Errorf("%w: stock quantity must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *InMemory) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(*Product) bool { return true }), nil
}

func (s *InMemory) ListPage(ctx context.Context, page, size int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.collect(func(*Product) bool { return true }), page, size), nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *InMemory) ListActive(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(p *Product) bool { return p.Active }), nil
}

func (s *InMemory) ListByCategory(ctx context.Context, category string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(p *Product) bool {
		return strings.EqualFold(p.Category, category)
	}), nil
}

func (s *InMemory) SearchByName(ctx context.Context, name string) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(name))
	return s.collect(func(p *Product) bool {
		return strings.Contains(strings.ToLower(p.Name), needle)
	}), nil
}

func (s *InMemory) ListByPriceRange(ctx context.Context, minPrice, maxPrice int64) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(p *Product) bool {
		return p.Price >= minPrice && p.Price <= maxPrice
	}), nil
}

func (s *InMemory) ListAvailable(ctx context.Context, minStock int) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(p *Product) bool {
		return p.Active && p.StockQuantity > minStock
	}), nil
}

func (s *InMemory) Categories(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, p := range s.products {
		if !p.Active || p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemory) ListFiltered(ctx context.Context, f Filter, page, size int) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.collect(func(p *Product) bool {
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			return false
		}
		if f.MinPrice > 0 && p.Price < f.MinPrice {
			return false
		}
		if f.MaxPrice > 0 && p.Price > f.MaxPrice {
			return false
		}
		return true
	})
	return paginate(items, page, size), nil
}

func (s *InMemory) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := validateInput(in); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(in), nil
}

func (s *InMemory) CreateBulk(ctx context.Context, ins []ProductInput) ([]Product, error) {
	for _, in := range ins {
		if err := validateInput(in); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, 0, len(ins))
	for _, in := range ins {
		out = append(out, s.insert(in))
	}
	return out, nil
}

// insert assumes the caller holds the write lock and input is validated.
func (s *InMemory) insert(in ProductInput) Product {
	now := time.Now().UTC()
	p := &Product{
		ID:            ids.New(),
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		Category:      in.Category,
		StockQuantity: in.StockQuantity,
		Active:        true,
		Embedding:     append([]float64(nil), in.Embedding...),
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.products[p.ID] = p
	return cloneProduct(p)
}

func (s *InMemory) Update(ctx context.Context, id string, in ProductInput) (Product, error) {
	if err := validateInput(in); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Category = in.Category
	p.StockQuantity = in.StockQuantity
	if in.Embedding != nil {
		p.Embedding = append([]float64(nil), in.Embedding...)
	}
	p.UpdatedAt = time.Now().UTC()
	return cloneProduct(p), nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *InMemory) Restore(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = true
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) SearchByEmbedding(ctx context.Context, query []float64, threshold float64, limit int) ([]Match, error) {
	s.mu.RLock()
	candidates := s.collect(func(p *Product) bool { return len(p.Embedding) > 0 })
	s.mu.RUnlock()
	return RankByEmbedding(candidates, query, threshold, limit), nil
}

// collect returns matching products ordered by creation time. Callers hold
// the lock.
func (s *InMemory) collect(match func(*Product) bool) []Product {
	var out []Product
	for _, p := range s.products {
		if match(p) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneProduct(p *Product) Product {
	cp := *p
	cp.Embedding = append([]float64(nil), p.Embedding...)
	return cp
}

func paginate(items []Product, page, size int) Page {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	total := len(items)
	totalPages := (total + size - 1) / size
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	window := items[start:end]
	if window == nil {
		window = []Product{}
	}
	return Page{
		Items:      window,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: totalPages,
	}
}
