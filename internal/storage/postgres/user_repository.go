package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const userColumns = `id, first_name, last_name, email, role, phone_number, shipping_address, billing_address,
	date_of_birth, marketing_opt_in, email_verified, last_login_at,
	password_hash, is_active, order_count, total_spent, created_at, updated_at`

// userRepository хранит пользователей. Уникальный индекс по lower(email) не
// снимается при деактивации, адрес остаётся занятым.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`,
		user.ID, user.FirstName, user.LastName, user.Email, string(user.Role), user.PhoneNumber,
		user.ShippingAddress, user.BillingAddress,
		user.DateOfBirth, user.MarketingOptIn, user.EmailVerified, user.LastLoginAt,
		user.PasswordHash, user.IsActive,
		user.OrderCount, user.TotalSpent, user.CreatedAt.UTC(), user.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapUserWriteError(err, "insert user")
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, domain.NormalizeEmail(email)))
}

func (r *userRepository) List(ctx context.Context, filter domain.UserFilter, page domain.PageRequest) (domain.Page[domain.User], error) {
	if !domain.UserSortKeys.Has(page.SortBy) {
		return domain.Page[domain.User]{}, domain.InvalidSortKey(page.SortBy, domain.UserSortKeys.Names())
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var where conditions
	if filter.Role != "" {
		where.add("role = $%d", string(filter.Role))
	}
	if filter.IsActive != nil {
		where.add("is_active = $%d", *filter.IsActive)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+where.sql(), where.args...)
	if err != nil {
		return domain.Page[domain.User]{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return domain.Page[domain.User]{}, err
		}
		if filter.Match(user) {
			users = append(users, user)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.User]{}, fmt.Errorf("iterate user rows: %w", err)
	}

	if err := domain.UserSortKeys.Sort(users, page); err != nil {
		return domain.Page[domain.User]{}, err
	}
	return domain.Paginate(users, page), nil
}

func (r *userRepository) Update(ctx context.Context, id string, fn func(*domain.User) error) (domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var updated domain.User
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		next := current
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = current.ID

		if _, err := tx.ExecContext(ctx, `
			UPDATE users
			SET first_name = $2, last_name = $3, email = $4, role = $5, phone_number = $6,
			    shipping_address = $7, billing_address = $8,
			    date_of_birth = $9, marketing_opt_in = $10, email_verified = $11, last_login_at = $12,
			    password_hash = $13, is_active = $14,
			    order_count = $15, total_spent = $16, updated_at = $17
			WHERE id = $1
		`,
			next.ID, next.FirstName, next.LastName, next.Email, string(next.Role), next.PhoneNumber,
			next.ShippingAddress, next.BillingAddress,
			next.DateOfBirth, next.MarketingOptIn, next.EmailVerified, next.LastLoginAt,
			next.PasswordHash, next.IsActive,
			next.OrderCount, next.TotalSpent, next.UpdatedAt.UTC(),
		); err != nil {
			return mapUserWriteError(err, "update user")
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return updated, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &role, &u.PhoneNumber,
		&u.ShippingAddress, &u.BillingAddress,
		&u.DateOfBirth, &u.MarketingOptIn, &u.EmailVerified, &u.LastLoginAt,
		&u.PasswordHash, &u.IsActive,
		&u.OrderCount, &u.TotalSpent, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = domain.UserRole(role)
	if u.LastLoginAt != nil {
		at := u.LastLoginAt.UTC()
		u.LastLoginAt = &at
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func mapUserWriteError(err error, op string) error {
	switch violatedConstraint(err) {
	case "":
		return fmt.Errorf("%s: %w", op, err)
	case "users_email_key":
		return domain.ErrDuplicateEmail
	default:
		return domain.ErrDuplicateID
	}
}

var _ domain.UserRepository = (*userRepository)(nil)
