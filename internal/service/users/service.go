// Package users управляет учётными записями покупателей и сотрудников.
package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const maxNameLength = 50

// OrderLister отдаёт заказы пользователя; реализуется движком заказов.
type OrderLister interface {
	List(ctx context.Context, filter domain.OrderFilter, page domain.PageRequest) (domain.Page[domain.Order], error)
}

// Service: операции над пользователями.
type Service struct {
	repo     domain.UserRepository
	orders   OrderLister
	logger   *log.Entry
	now      func() time.Time
	hashCost int
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashCost задаёт стоимость bcrypt (в тестах: bcrypt.MinCost).
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService создаёт сервис пользователей.
func NewService(repo domain.UserRepository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		logger:   log.New().WithField("component", "users"),
		now:      func() time.Time { return time.Now().UTC() },
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOrders подключает источник заказов. Движок заказов сам зависит от
// Service, поэтому связь устанавливается после создания обоих.
func (s *Service) SetOrders(orders OrderLister) {
	s.orders = orders
}

// CreateInput: данные регистрации.
type CreateInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	PhoneNumber     string
	Role            string
	ShippingAddress string
	BillingAddress  string
	DateOfBirth     string
	MarketingOptIn  bool
}

// UpdateInput: частичное обновление; nil означает «не менять».
type UpdateInput struct {
	FirstName       *string
	LastName        *string
	Email           *string
	Password        *string
	PhoneNumber     *string
	Role            *string
	ShippingAddress *string
	BillingAddress  *string
	DateOfBirth     *string
	MarketingOptIn  *bool
	EmailVerified   *bool
	IsActive        *bool
}

// Create регистрирует пользователя. Email уникален среди всех когда-либо созданных.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.User, error) {
	role, err := domain.ParseUserRole(in.Role)
	if err != nil {
		return domain.User{}, err
	}
	now := s.now()
	user := domain.User{
		ID:              uuid.NewString(),
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		Email:           domain.NormalizeEmail(in.Email),
		Role:            role,
		PhoneNumber:     strings.TrimSpace(in.PhoneNumber),
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		BillingAddress:  strings.TrimSpace(in.BillingAddress),
		DateOfBirth:     strings.TrimSpace(in.DateOfBirth),
		MarketingOptIn:  in.MarketingOptIn,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateUser(user); err != nil {
		return domain.User{}, err
	}
	if in.Password != "" {
		hash, err := s.hashPassword(in.Password)
		if err != nil {
			return domain.User{}, err
		}
		user.PasswordHash = hash
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.logger.WithFields(log.Fields{"user_id": user.ID, "role": user.Role}).Info("user created")
	return user, nil
}

// Get возвращает пользователя по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.User{}, domain.Describe(domain.ErrUserNotFound, "User with ID %s not found", id)
		}
		return domain.User{}, err
	}
	return user, nil
}

// GetByEmail ищет пользователя по email без учёта регистра.
func (s *Service) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.User{}, domain.Describe(domain.ErrUserNotFound, "User with email %s not found", email)
		}
		return domain.User{}, err
	}
	return user, nil
}

// List возвращает страницу пользователей; по умолчанию новые первыми.
func (s *Service) List(ctx context.Context, filter domain.UserFilter, page domain.PageRequest) (domain.Page[domain.User], error) {
	page, err := page.Normalize("createdAt", domain.SortDesc)
	if err != nil {
		return domain.Page[domain.User]{}, err
	}
	if !domain.UserSortKeys.Has(page.SortBy) {
		return domain.Page[domain.User]{}, domain.InvalidSortKey(page.SortBy, domain.UserSortKeys.Names())
	}
	return s.repo.List(ctx, filter, page)
}

// Update применяет частичные изменения. Смена email повторно проверяет уникальность.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (domain.User, error) {
	var hash string
	if in.Password != nil {
		h, err := s.hashPassword(*in.Password)
		if err != nil {
			return domain.User{}, err
		}
		hash = h
	}

	user, err := s.repo.Update(ctx, id, func(u *domain.User) error {
		setTrimmed(&u.FirstName, in.FirstName)
		setTrimmed(&u.LastName, in.LastName)
		setTrimmed(&u.PhoneNumber, in.PhoneNumber)
		setTrimmed(&u.ShippingAddress, in.ShippingAddress)
		setTrimmed(&u.BillingAddress, in.BillingAddress)
		setTrimmed(&u.DateOfBirth, in.DateOfBirth)
		if in.MarketingOptIn != nil {
			u.MarketingOptIn = *in.MarketingOptIn
		}
		if in.EmailVerified != nil {
			u.EmailVerified = *in.EmailVerified
		}
		if in.Email != nil {
			u.Email = domain.NormalizeEmail(*in.Email)
		}
		if in.Role != nil {
			role, err := domain.ParseUserRole(*in.Role)
			if err != nil {
				return err
			}
			u.Role = role
		}
		if in.IsActive != nil {
			u.IsActive = *in.IsActive
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		u.UpdatedAt = s.now()
		return validateUser(*u)
	})
	if err != nil {
		return domain.User{}, s.notFound(id, err)
	}
	return user, nil
}

// Remove деактивирует пользователя. Email остаётся занятым.
func (s *Service) Remove(ctx context.Context, id string) (domain.User, error) {
	user, err := s.repo.Update(ctx, id, func(u *domain.User) error {
		u.IsActive = false
		u.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.User{}, s.notFound(id, err)
	}
	s.logger.WithField("user_id", id).Info("user deactivated")
	return user, nil
}

// Orders возвращает заказы пользователя.
func (s *Service) Orders(ctx context.Context, id string, filter domain.OrderFilter, page domain.PageRequest) (domain.Page[domain.Order], error) {
	if _, err := s.Get(ctx, id); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	if s.orders == nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("order listing is not configured")
	}
	filter.UserID = id
	return s.orders.List(ctx, filter, page)
}

// RecordOrder учитывает новый заказ в статистике пользователя.
func (s *Service) RecordOrder(ctx context.Context, userID string, amount int64) error {
	return s.adjustStats(ctx, userID, 1, amount)
}

// RevertOrder откатывает статистику после отмены заказа.
func (s *Service) RevertOrder(ctx context.Context, userID string, amount int64) error {
	return s.adjustStats(ctx, userID, -1, -amount)
}

func (s *Service) adjustStats(ctx context.Context, userID string, orders int, amount int64) error {
	_, err := s.repo.Update(ctx, userID, func(u *domain.User) error {
		u.OrderCount = max(u.OrderCount+orders, 0)
		u.TotalSpent = max(u.TotalSpent+amount, 0)
		u.UpdatedAt = s.now()
		return nil
	})
	return err
}

func (s *Service) hashPassword(password string) (string, error) {
	if err := domain.ValidatePassword(password); err != nil {
		return "", err
	}
	if len(password) > 72 {
		return "", domain.Validationf("Password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) notFound(id string, err error) error {
	if domain.IsNotFound(err) {
		return domain.Describe(domain.ErrUserNotFound, "User with ID %s not found", id)
	}
	return err
}

func validateUser(u domain.User) error {
	if len(u.FirstName) > maxNameLength || len(u.LastName) > maxNameLength {
		return domain.Validationf("First name and last name must be at most %d characters", maxNameLength)
	}
	return u.Validate()
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
