package catalog

import "time"

// Product is a catalog entry. Price is in minor currency units (cents).
// Embedding is an opaque similarity vector produced by the remote embedding
// service; nil when the product was stored without one.
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         int64     `json:"price"`
	Category      string    `json:"category"`
	StockQuantity int       `json:"stockQuantity"`
	Active        bool      `json:"active"`
	Embedding     []float64 `json:"-"`
	CreatedBy     string    `json:"createdBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ProductInput carries the writable product fields.
type ProductInput struct {
	Name          string
	Description   string
	Price         int64
	Category      string
	StockQuantity int
	Embedding     []float64
	CreatedBy     string
}

// Filter narrows product listings; zero values mean "no constraint".
type Filter struct {
	Category string
	MinPrice int64
	MaxPrice int64
}

// Page is a window into an ordered product listing.
type Page struct {
	Items      []Product `json:"items"`
	Page       int       `json:"page"`
	Size       int       `json:"size"`
	TotalItems int       `json:"totalItems"`
	TotalPages int       `json:"totalPages"`
}

// Match is a semantic search hit.
type Match struct {
	Product    Product `json:"product"`
	Similarity float64 `json:"similarity"`
}
