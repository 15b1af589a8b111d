package domain

import (
	"net/mail"
	"strings"
	"time"
	"unicode"
)

// UserRole: роль пользователя магазина.
type UserRole string

const (
	UserRoleCustomer  UserRole = "customer"
	UserRoleAdmin     UserRole = "admin"
	UserRoleModerator UserRole = "moderator"
)

// ParseUserRole приводит строку к роли; пустая строка означает customer.
func ParseUserRole(raw string) (UserRole, error) {
	role := UserRole(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case "":
		return UserRoleCustomer, nil
	case UserRoleCustomer, UserRoleAdmin, UserRoleModerator:
		return role, nil
	default:
		return "", Validationf("Invalid role: %s. Allowed: customer, admin, moderator", raw)
	}
}

// User: учётная запись покупателя или сотрудника.
type User struct {
	ID              string
	FirstName       string
	LastName        string
	Email           string
	Role            UserRole
	PhoneNumber     string
	ShippingAddress string
	BillingAddress  string
	// DateOfBirth: дата в формате 2006-01-02, пустая строка если не указана.
	DateOfBirth    string
	MarketingOptIn bool
	EmailVerified  bool
	LastLoginAt    *time.Time
	// PasswordHash: bcrypt-хэш, наружу не отдаётся.
	PasswordHash string
	IsActive     bool
	// OrderCount и TotalSpent обновляются при создании и отмене заказов.
	OrderCount int
	TotalSpent int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FullName возвращает имя и фамилию через пробел.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NormalizeEmail приводит email к виду, по которому проверяется уникальность.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate проверяет обязательные поля пользователя.
func (u User) Validate() error {
	if strings.TrimSpace(u.FirstName) == "" || strings.TrimSpace(u.LastName) == "" {
		return Validationf("First name and last name are required")
	}
	if u.Email == "" {
		return Validationf("Email is required")
	}
	addr, err := mail.ParseAddress(u.Email)
	if err != nil || addr.Address != u.Email {
		return Validationf("Invalid email address: %s", u.Email)
	}
	if _, err := ParseUserRole(string(u.Role)); err != nil {
		return err
	}
	if u.DateOfBirth != "" {
		if _, err := time.Parse(time.DateOnly, u.DateOfBirth); err != nil {
			return Validationf("Invalid date of birth: %s. Expected YYYY-MM-DD", u.DateOfBirth)
		}
	}
	return nil
}

// ValidatePassword: не короче 8 символов, есть строчная, заглавная, цифра и спецсимвол.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}

// UserFilter: условия выборки пользователей.
type UserFilter struct {
	Role     UserRole
	IsActive *bool
	Search   string
}

// Match проверяет, подходит ли пользователь под фильтр.
func (f UserFilter) Match(u User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.IsActive != nil && u.IsActive != *f.IsActive {
		return false
	}
	if f.Search != "" && !containsFold(u.FirstName+" "+u.LastName+" "+u.Email, f.Search) {
		return false
	}
	return true
}

// UserSortKeys: допустимые ключи сортировки пользователей.
var UserSortKeys = SortKeys[User]{
	"firstName": func(a, b User) int { return CompareText(a.FirstName, b.FirstName) },
	"lastName":  func(a, b User) int { return CompareText(a.LastName, b.LastName) },
	"email":     func(a, b User) int { return CompareText(a.Email, b.Email) },
	"role":      func(a, b User) int { return CompareText(string(a.Role), string(b.Role)) },
	"createdAt": func(a, b User) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updatedAt": func(a, b User) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
}
