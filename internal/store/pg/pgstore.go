package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"shelfd.org/internal/catalog"
	"shelfd.org/internal/ids"
)

// Store implements catalog.Service over Postgres. Embeddings are stored as
// jsonb arrays alongside the product row.
type Store struct {
	db *sql.DB
}

var _ catalog.Service = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing connection, used by tests.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const productColumns = `id, name, description, price, category, stock_quantity, active, embedding, created_by, created_at, updated_at`

func (s *Store) List(ctx context.Context) ([]catalog.Product, error) {
	return s.query(ctx, `select `+productColumns+` from products order by created_at, id`)
}

func (s *Store) ListPage(ctx context.Context, page, size int) (catalog.Page, error) {
	return s.page(ctx, `from products`, nil, page, size)
}

func (s *Store) Get(ctx context.Context, id string) (catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `select `+productColumns+` from products where id=$1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, err
}

func (s *Store) ListActive(ctx context.Context) ([]catalog.Product, error) {
	return s.query(ctx, `select `+productColumns+` from products where active order by created_at, id`)
}

func (s *Store) ListByCategory(ctx context.Context, category string) ([]catalog.Product, error) {
	return s.query(ctx, `select `+productColumns+` from products where lower(category)=lower($1) order by created_at, id`, category)
}

func (s *Store) SearchByName(ctx context.Context, name string) ([]catalog.Product, error) {
	pattern := "%" + strings.TrimSpace(name) + "%"
	return s.query(ctx, `select `+productColumns+` from products where name ilike $1 order by created_at, id`, pattern)
}

func (s *Store) ListByPriceRange(ctx context.Context, minPrice, maxPrice int64) ([]catalog.Product, error) {
	return s.query(ctx, `select `+productColumns+` from products where price between $1 and $2 order by created_at, id`, minPrice, maxPrice)
}

func (s *Store) ListAvailable(ctx context.Context, minStock int) ([]catalog.Product, error) {
	return s.query(ctx, `select `+productColumns+` from products where active and stock_quantity > $1 order by created_at, id`, minStock)
}

func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select distinct category from products where active and category <> '' order by category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListFiltered(ctx context.Context, f catalog.Filter, page, size int) (catalog.Page, error) {
	var conds []string
	var args []any
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("lower(category)=lower($%d)", len(args)))
	}
	if f.MinPrice > 0 {
		args = append(args, f.MinPrice)
		conds = append(conds, fmt.Sprintf("price >= $%d", len(args)))
	}
	if f.MaxPrice > 0 {
		args = append(args, f.MaxPrice)
		conds = append(conds, fmt.Sprintf("price <= $%d", len(args)))
	}
	where := "from products"
	if len(conds) > 0 {
		where += " where " + strings.Join(conds, " and ")
	}
	return s.page(ctx, where, args, page, size)
}

func (s *Store) Create(ctx context.Context, in catalog.ProductInput) (catalog.Product, error) {
	if err := validate(in); err != nil {
		return catalog.Product{}, err
	}
	now := time.Now().UTC()
	p := catalog.Product{
		ID:            ids.New(),
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		Category:      in.Category,
		StockQuantity: in.StockQuantity,
		Active:        true,
		Embedding:     in.Embedding,
		CreatedBy:     in.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	emb, err := encodeEmbedding(p.Embedding)
	if err != nil {
		return catalog.Product{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into products(id, name, description, price, category, stock_quantity, active, embedding, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, p.ID, p.Name, p.Description, p.Price, p.Category, p.StockQuantity, p.Active, emb, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func (s *Store) CreateBulk(ctx context.Context, ins []catalog.ProductInput) ([]catalog.Product, error) {
	for _, in := range ins {
		if err := validate(in); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	out := make([]catalog.Product, 0, len(ins))
	for _, in := range ins {
		p := catalog.Product{
			ID:            ids.New(),
			Name:          in.Name,
			Description:   in.Description,
			Price:         in.Price,
			Category:      in.Category,
			StockQuantity: in.StockQuantity,
			Active:        true,
			Embedding:     in.Embedding,
			CreatedBy:     in.CreatedBy,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		emb, err := encodeEmbedding(p.Embedding)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into products(id, name, description, price, category, stock_quantity, active, embedding, created_by, created_at, updated_at)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, p.ID, p.Name, p.Description, p.Price, p.Category, p.StockQuantity, p.Active, emb, p.CreatedBy, p.CreatedAt, p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, in catalog.ProductInput) (catalog.Product, error) {
	if err := validate(in); err != nil {
		return catalog.Product{}, err
	}
	now := time.Now().UTC()
	var res sql.Result
	var err error
	if in.Embedding != nil {
		emb, encErr := encodeEmbedding(in.Embedding)
		if encErr != nil {
			return catalog.Product{}, encErr
		}
		res, err = s.db.ExecContext(ctx, `
			update products
			set name=$2, description=$3, price=$4, category=$5, stock_quantity=$6, embedding=$7, updated_at=$8
			where id=$1
		`, id, in.Name, in.Description, in.Price, in.Category, in.StockQuantity, emb, now)
	} else {
		res, err = s.db.ExecContext(ctx, `
			update products
			set name=$2, description=$3, price=$4, category=$5, stock_quantity=$6, updated_at=$7
			where id=$1
		`, id, in.Name, in.Description, in.Price, in.Category, in.StockQuantity, now)
	}
	if err != nil {
		return catalog.Product{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from products where id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (s *Store) Restore(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update products set active=true, updated_at=$2 where id=$1`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// SearchByEmbedding scores in process; candidate rows carrying an embedding
// are expected to number in the thousands at most.
func (s *Store) SearchByEmbedding(ctx context.Context, query []float64, threshold float64, limit int) ([]catalog.Match, error) {
	candidates, err := s.query(ctx, `select `+productColumns+` from products where active and embedding is not null`)
	if err != nil {
		return nil, err
	}
	return catalog.RankByEmbedding(candidates, query, threshold, limit), nil
}

func (s *Store) page(ctx context.Context, where string, args []any, page, size int) (catalog.Page, error) {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) `+where, args...).Scan(&total); err != nil {
		return catalog.Page{}, err
	}

	argsPage := append(append([]any{}, args...), size, page*size)
	items, err := s.query(ctx, fmt.Sprintf(
		`select %s %s order by created_at, id limit $%d offset $%d`,
		productColumns, where, len(args)+1, len(args)+2,
	), argsPage...)
	if err != nil {
		return catalog.Page{}, err
	}
	if items == nil {
		items = []catalog.Product{}
	}
	return catalog.Page{
		Items:      items,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (catalog.Product, error) {
	var p catalog.Product
	var emb []byte
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.StockQuantity, &p.Active, &emb, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	if len(emb) > 0 {
		if err := json.Unmarshal(emb, &p.Embedding); err != nil {
			return catalog.Product{}, fmt.Errorf("decode embedding for %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func encodeEmbedding(vec []float64) (any, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}
	return raw, nil
}

func validate(in catalog.ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", catalog.ErrInvalidInput)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", catalog.ErrInvalidInput)
	}
	if in.StockQuantity < 0 {
		return fmt.Errorf("%w: stock quantity must not be negative", catalog.ErrInvalidInput)
	}
	return nil
}
