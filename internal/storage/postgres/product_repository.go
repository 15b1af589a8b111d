package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const productColumns = `id, sku, name, description, price, category, tags, image_url, images, weight, dimensions,
	stock, status, created_at, updated_at`

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tags, err := encodeStrings("tags", product.Tags)
	if err != nil {
		return err
	}
	images, err := encodeStrings("images", product.Images)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		product.ID, product.SKU, product.Name, product.Description, product.Price, product.Category,
		tags, product.ImageURL, images, product.Weight, product.Dimensions,
		product.Stock, string(product.Status), product.CreatedAt.UTC(), product.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapProductWriteError(err, "insert product")
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *productRepository) GetBySKU(ctx context.Context, sku string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
}

// List отбирает кандидатов по индексируемым полям, остальное доделывает фильтр домена.
// Сортировка выполняется в Go, чтобы порядок совпадал с in-memory хранилищем.
func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter, page domain.PageRequest) (domain.Page[domain.Product], error) {
	if !domain.ProductSortKeys.Has(page.SortBy) {
		return domain.Page[domain.Product]{}, domain.InvalidSortKey(page.SortBy, domain.ProductSortKeys.Names())
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var where conditions
	if filter.Category != "" {
		where.add("category = $%d", strings.ToLower(filter.Category))
	}
	if filter.Status != "" {
		where.add("status = $%d", string(filter.Status))
	}
	if filter.MinPrice != nil {
		where.add("price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where.add("price <= $%d", *filter.MaxPrice)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products`+where.sql(), where.args...)
	if err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return domain.Page[domain.Product]{}, err
		}
		if filter.Match(product) {
			products = append(products, product)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("iterate product rows: %w", err)
	}

	if err := domain.ProductSortKeys.Sort(products, page); err != nil {
		return domain.Page[domain.Product]{}, err
	}
	return domain.Paginate(products, page), nil
}

func (r *productRepository) Update(ctx context.Context, id string, fn func(*domain.Product) error) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var updated domain.Product
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = current.ID
		if err := updateProductTx(ctx, tx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return updated, nil
}

// AdjustStock применяет пакет изменений остатков в одной транзакции.
func (r *productRepository) AdjustStock(ctx context.Context, adjustments []domain.StockAdjustment) ([]domain.Product, error) {
	if len(adjustments) == 0 {
		return []domain.Product{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var result []domain.Product
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		result, err = adjustStockTx(ctx, tx, adjustments)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// adjustStockTx блокирует строки в порядке ID, проверяет все изменения и только потом пишет.
func adjustStockTx(ctx context.Context, tx *sql.Tx, adjustments []domain.StockAdjustment) ([]domain.Product, error) {
	ids := make([]string, 0, len(adjustments))
	for _, adj := range adjustments {
		if !slices.Contains(ids, adj.ProductID) {
			ids = append(ids, adj.ProductID)
		}
	}
	locked := slices.Clone(ids)
	slices.Sort(locked)

	staged := make(map[string]domain.Product, len(ids))
	for _, id := range locked {
		product, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil, domain.Describe(domain.ErrProductNotFound, "Product with ID %s not found", id)
			}
			return nil, err
		}
		staged[id] = product
	}

	now := nowUTC()
	for _, adj := range adjustments {
		next, err := domain.ApplyStock(staged[adj.ProductID], adj.Delta, now)
		if err != nil {
			return nil, err
		}
		staged[adj.ProductID] = next
	}

	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if err := updateProductTx(ctx, tx, staged[id]); err != nil {
			return nil, err
		}
		result = append(result, staged[id])
	}
	return result, nil
}

func (r *productRepository) Categories(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT category
		FROM products
		WHERE status <> $1 AND category <> ''
	`, string(domain.ProductStatusInactive))
	if err != nil {
		return nil, fmt.Errorf("list product categories: %w", err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("scan product category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product categories: %w", err)
	}
	slices.Sort(categories)
	return categories, nil
}

func updateProductTx(ctx context.Context, tx *sql.Tx, p domain.Product) error {
	tags, err := encodeStrings("tags", p.Tags)
	if err != nil {
		return err
	}
	images, err := encodeStrings("images", p.Images)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, description = $4, price = $5, category = $6,
		    tags = $7, image_url = $8, images = $9, weight = $10, dimensions = $11,
		    stock = $12, status = $13, updated_at = $14
		WHERE id = $1
	`,
		p.ID, p.SKU, p.Name, p.Description, p.Price, p.Category,
		tags, p.ImageURL, images, p.Weight, p.Dimensions,
		p.Stock, string(p.Status), p.UpdatedAt.UTC(),
	); err != nil {
		return mapProductWriteError(err, "update product")
	}
	return nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p      domain.Product
		tags   []byte
		images []byte
		status string
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Category,
		&tags, &p.ImageURL, &images, &p.Weight, &p.Dimensions,
		&p.Stock, &status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	if err := json.Unmarshal(tags, &p.Tags); err != nil {
		return domain.Product{}, fmt.Errorf("decode product tags: %w", err)
	}
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return domain.Product{}, fmt.Errorf("decode product images: %w", err)
	}
	p.Status = domain.ProductStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func encodeStrings(field string, values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode product %s: %w", field, err)
	}
	return string(raw), nil
}

func mapProductWriteError(err error, op string) error {
	switch violatedConstraint(err) {
	case "":
		return fmt.Errorf("%s: %w", op, err)
	case "products_sku_key":
		return domain.ErrDuplicateSKU
	default:
		return domain.ErrDuplicateID
	}
}

var _ domain.ProductRepository = (*productRepository)(nil)
