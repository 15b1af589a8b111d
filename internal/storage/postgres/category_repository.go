package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const categoryColumns = `id, name, slug, description, parent_id, image_url, icon, meta_title, meta_description,
	sort_order, is_active, is_featured, created_at, updated_at`

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository создаёт PostgreSQL-реализацию CategoryRepository.
func NewCategoryRepository(store *Store) domain.CategoryRepository {
	return &categoryRepository{db: store.DB()}
}

func (r *categoryRepository) Create(ctx context.Context, category domain.Category) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		category.ID, category.Name, category.Slug, category.Description, category.ParentID, category.ImageURL,
		category.Icon, category.MetaTitle, category.MetaDescription,
		category.SortOrder, category.IsActive, category.IsFeatured, category.CreatedAt.UTC(), category.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapCategoryWriteError(err, "insert category")
	}
	return nil
}

func (r *categoryRepository) Get(ctx context.Context, id string) (domain.Category, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanCategory(r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
}

func (r *categoryRepository) GetBySlug(ctx context.Context, slug string) (domain.Category, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanCategory(r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE slug = $1`, slug))
}

func (r *categoryRepository) List(ctx context.Context, filter domain.CategoryFilter, page domain.PageRequest) (domain.Page[domain.Category], error) {
	if !domain.CategorySortKeys.Has(page.SortBy) {
		return domain.Page[domain.Category]{}, domain.InvalidSortKey(page.SortBy, domain.CategorySortKeys.Names())
	}

	var where conditions
	if filter.ParentID != nil {
		where.add("parent_id = $%d", *filter.ParentID)
	}
	if filter.IsActive != nil {
		where.add("is_active = $%d", *filter.IsActive)
	}
	if filter.IsFeatured != nil {
		where.add("is_featured = $%d", *filter.IsFeatured)
	}

	categories, err := r.query(ctx, where)
	if err != nil {
		return domain.Page[domain.Category]{}, err
	}
	matched := categories[:0]
	for _, category := range categories {
		if filter.Match(category) {
			matched = append(matched, category)
		}
	}

	if err := domain.CategorySortKeys.Sort(matched, page); err != nil {
		return domain.Page[domain.Category]{}, err
	}
	return domain.Paginate(matched, page), nil
}

func (r *categoryRepository) All(ctx context.Context) ([]domain.Category, error) {
	return r.query(ctx, conditions{})
}

func (r *categoryRepository) Update(ctx context.Context, id string, fn func(*domain.Category) error) (domain.Category, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var updated domain.Category
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanCategory(tx.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next := current
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = current.ID

		if _, err := tx.ExecContext(ctx, `
			UPDATE categories
			SET name = $2, slug = $3, description = $4, parent_id = $5, image_url = $6,
			    icon = $7, meta_title = $8, meta_description = $9,
			    sort_order = $10, is_active = $11, is_featured = $12, updated_at = $13
			WHERE id = $1
		`,
			next.ID, next.Name, next.Slug, next.Description, next.ParentID, next.ImageURL,
			next.Icon, next.MetaTitle, next.MetaDescription,
			next.SortOrder, next.IsActive, next.IsFeatured, next.UpdatedAt.UTC(),
		); err != nil {
			return mapCategoryWriteError(err, "update category")
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return updated, nil
}

func (r *categoryRepository) query(ctx context.Context, where conditions) ([]domain.Category, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories`+where.sql(), where.args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return categories, nil
}

func scanCategory(row rowScanner) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(
		&c.ID, &c.Name, &c.Slug, &c.Description, &c.ParentID, &c.ImageURL,
		&c.Icon, &c.MetaTitle, &c.MetaDescription,
		&c.SortOrder, &c.IsActive, &c.IsFeatured, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrCategoryNotFound
		}
		return domain.Category{}, fmt.Errorf("scan category: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func mapCategoryWriteError(err error, op string) error {
	switch violatedConstraint(err) {
	case "":
		return fmt.Errorf("%s: %w", op, err)
	case "categories_slug_key":
		return domain.ErrDuplicateSlug
	default:
		return domain.ErrDuplicateID
	}
}

var _ domain.CategoryRepository = (*categoryRepository)(nil)
