package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shelfd.org/internal/audit"
	"shelfd.org/internal/auth"
	"shelfd.org/internal/catalog"
	"shelfd.org/internal/obs"
)

type productRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         int64  `json:"price"`
	Category      string `json:"category"`
	StockQuantity int    `json:"stockQuantity"`
}

type semanticSearchRequest struct {
	Query string `json:"query"`
}

func (a *API) handleProductsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listProducts(w, r)
	case http.MethodPost:
		a.createProduct(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 0, 0, 1<<20)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}
	size, err := parsePositiveInt(q.Get("size"), 20, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "size must be between 1 and 100")
		return
	}

	f := catalog.Filter{Category: strings.TrimSpace(q.Get("category"))}
	if raw := q.Get("minPrice"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, r, http.StatusBadRequest, "minPrice must be a non-negative integer")
			return
		}
		f.MinPrice = v
	}
	if raw := q.Get("maxPrice"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, r, http.StatusBadRequest, "maxPrice must be a non-negative integer")
			return
		}
		f.MaxPrice = v
	}

	result, err := a.catalog.ListFiltered(r.Context(), f, page, size)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RoleUser, auth.RoleAdmin)
	if !ok {
		return
	}
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	in := catalog.ProductInput{
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		Price:         req.Price,
		Category:      strings.TrimSpace(req.Category),
		StockQuantity: req.StockQuantity,
		CreatedBy:     p.Username,
	}
	in.Embedding = a.embedProduct(r, in)

	created, err := a.catalog.Create(r.Context(), in)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "catalog.product.create", map[string]any{
		"product_id": created.ID,
		"name":       created.Name,
	})
	w.Header().Set("Location", "/products/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleProductsBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.requireRole(w, r, auth.RoleUser, auth.RoleAdmin)
	if !ok {
		return
	}
	var reqs []productRequest
	if err := decodeJSON(w, r, &reqs); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(reqs) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one product is required")
		return
	}
	if len(reqs) > 100 {
		writeError(w, r, http.StatusBadRequest, "at most 100 products per request")
		return
	}

	ins := make([]catalog.ProductInput, 0, len(reqs))
	for _, req := range reqs {
		in := catalog.ProductInput{
			Name:          strings.TrimSpace(req.Name),
			Description:   strings.TrimSpace(req.Description),
			Price:         req.Price,
			Category:      strings.TrimSpace(req.Category),
			StockQuantity: req.StockQuantity,
			CreatedBy:     p.Username,
		}
		in.Embedding = a.embedProduct(r, in)
		ins = append(ins, in)
	}

	created, err := a.catalog.CreateBulk(r.Context(), ins)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "catalog.product.bulk_create", map[string]any{
		"count": len(created),
	})
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleProductResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/products/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/restore") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/restore"), "/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.restoreProduct(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getProduct(w, r, path)
	case http.MethodPut:
		a.updateProduct(w, r, path)
	case http.MethodDelete:
		a.deleteProduct(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request, id string) {
	p, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireRole(w, r, auth.RoleUser, auth.RoleAdmin); !ok {
		return
	}
	current, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if !auth.AuthorizeOwner(r.Context(), current.CreatedBy, auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "only the creator or an admin may modify this product")
		return
	}

	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := catalog.ProductInput{
		Name:          strings.TrimSpace(req.Name),
		Description:   strings.TrimSpace(req.Description),
		Price:         req.Price,
		Category:      strings.TrimSpace(req.Category),
		StockQuantity: req.StockQuantity,
	}
	if in.Name != current.Name || in.Description != current.Description {
		in.Embedding = a.embedProduct(r, in)
	}

	updated, err := a.catalog.Update(r.Context(), id, in)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "catalog.product.update", map[string]any{
		"product_id": id,
	})
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteProduct(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireRole(w, r, auth.RoleUser, auth.RoleAdmin); !ok {
		return
	}
	current, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if !auth.AuthorizeOwner(r.Context(), current.CreatedBy, auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "only the creator or an admin may delete this product")
		return
	}

	if err := a.catalog.Delete(r.Context(), id); err != nil {
		handleCatalogError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "catalog.product.delete", map[string]any{
		"product_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) restoreProduct(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, http.MethodPatch)
		return
	}
	if _, ok := a.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	if err := a.catalog.Restore(r.Context(), id); err != nil {
		handleCatalogError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "catalog.product.restore", map[string]any{
		"product_id": id,
	})
	p, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleProductsActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.catalog.ListActive(r.Context())
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleProductsSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "name query parameter is required")
		return
	}
	items, err := a.catalog.SearchByName(r.Context(), name)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleProductCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	cats, err := a.catalog.Categories(r.Context())
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (a *API) handleProductsByCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	category := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/products/category/"))
	if category == "" || strings.Contains(category, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	items, err := a.catalog.ListByCategory(r.Context(), category)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleProductsAvailable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	minStock, err := parsePositiveInt(r.URL.Query().Get("minStock"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "minStock must be a non-negative integer")
		return
	}
	items, err := a.catalog.ListAvailable(r.Context(), minStock)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleProductsPriceRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	min, err := strconv.ParseInt(q.Get("min"), 10, 64)
	if err != nil || min < 0 {
		writeError(w, r, http.StatusBadRequest, "min must be a non-negative integer")
		return
	}
	max, err := strconv.ParseInt(q.Get("max"), 10, 64)
	if err != nil || max < min {
		writeError(w, r, http.StatusBadRequest, "max must be an integer >= min")
		return
	}
	items, err := a.catalog.ListByPriceRange(r.Context(), min, max)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.embedder == nil {
		writeError(w, r, http.StatusServiceUnavailable, "semantic search is not configured")
		return
	}
	var req semanticSearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	vec, err := a.embedder.Embed(r.Context(), query)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "embedding service unavailable")
		return
	}
	matches, err := a.catalog.SearchByEmbedding(r.Context(), vec, catalog.DefaultSimilarityThreshold, catalog.DefaultSearchLimit)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if matches == nil {
		matches = []catalog.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// embedProduct computes a vector from the product's text, best effort: a
// missing embedder or an upstream failure leaves the product unembedded
// rather than failing the write.
func (a *API) embedProduct(r *http.Request, in catalog.ProductInput) []float64 {
	if a.embedder == nil {
		return nil
	}
	text := strings.TrimSpace(in.Name + " " + in.Description)
	vec, err := a.embedder.Embed(r.Context(), text)
	if err != nil {
		obs.LogRequest(map[string]any{
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
			"level":      "warn",
			"msg":        "embedding_failed",
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		return nil
	}
	return vec
}

func handleCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
