package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/users"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

func newService() *users.Service {
	return users.NewService(memory.NewUserRepository(), users.WithHashCost(bcrypt.MinCost))
}

func strPtr(s string) *string { return &s }

func TestService_CreateDefaults(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	user, err := svc.Create(ctx, users.CreateInput{
		FirstName: "John",
		LastName:  "Doe",
		Email:     " John.Doe@Example.com ",
		Password:  "SecurePass123!",
	})
	require.NoError(t, err)
	assert.Equal(t, "john.doe@example.com", user.Email)
	assert.Equal(t, domain.UserRoleCustomer, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "SecurePass123!", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("SecurePass123!")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("wrong")))
}

func TestService_CreateRejectsWeakPassword(t *testing.T) {
	_, err := newService().Create(context.Background(), users.CreateInput{
		FirstName: "A", LastName: "B", Email: "a@b.io", Password: "password",
	})
	require.ErrorIs(t, err, domain.ErrWeakPassword)
	assert.Equal(t, "Password does not meet security requirements", domain.Message(err))
}

func TestService_EmailReservedAfterRemove(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	user, err := svc.Create(ctx, users.CreateInput{FirstName: "Jane", LastName: "Smith", Email: "jane@example.com"})
	require.NoError(t, err)

	removed, err := svc.Remove(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, removed.IsActive)

	_, err = svc.Create(ctx, users.CreateInput{FirstName: "Other", LastName: "Jane", Email: "JANE@example.com"})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "User with this email already exists", domain.Message(err))
}

func TestService_UpdateEmailConflict(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	a, err := svc.Create(ctx, users.CreateInput{FirstName: "A", LastName: "A", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, users.CreateInput{FirstName: "B", LastName: "B", Email: "b@example.com"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, a.ID, users.UpdateInput{Email: strPtr("b@example.com")})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)

	updated, err := svc.Update(ctx, a.ID, users.UpdateInput{Email: strPtr("a2@example.com"), Role: strPtr("admin")})
	require.NoError(t, err)
	assert.Equal(t, "a2@example.com", updated.Email)
	assert.Equal(t, domain.UserRoleAdmin, updated.Role)
}

func TestService_UpdateValidation(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	user, err := svc.Create(ctx, users.CreateInput{FirstName: "A", LastName: "A", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, user.ID, users.UpdateInput{Role: strPtr("root")})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Update(ctx, user.ID, users.UpdateInput{Email: strPtr("not-an-email")})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Update(ctx, "missing", users.UpdateInput{FirstName: strPtr("X")})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.Equal(t, "User with ID missing not found", domain.Message(err))
}

func TestService_Stats(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	user, err := svc.Create(ctx, users.CreateInput{FirstName: "A", LastName: "A", Email: "a@example.com"})
	require.NoError(t, err)

	require.NoError(t, svc.RecordOrder(ctx, user.ID, 3159))
	require.NoError(t, svc.RecordOrder(ctx, user.ID, 1000))
	require.NoError(t, svc.RevertOrder(ctx, user.ID, 3159))

	got, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OrderCount)
	assert.Equal(t, int64(1000), got.TotalSpent)
}

func TestService_ListFilters(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	for _, in := range []users.CreateInput{
		{FirstName: "Admin", LastName: "User", Email: "admin@example.com", Role: "admin"},
		{FirstName: "John", LastName: "Doe", Email: "john@example.com"},
		{FirstName: "Jane", LastName: "Smith", Email: "jane@example.com"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, domain.UserFilter{Role: domain.UserRoleCustomer}, domain.PageRequest{SortBy: "firstName"})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Jane", page.Items[0].FirstName)

	_, err = svc.List(ctx, domain.UserFilter{}, domain.PageRequest{SortBy: "password"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

type stubOrders struct {
	filter domain.OrderFilter
}

func (s *stubOrders) List(_ context.Context, filter domain.OrderFilter, page domain.PageRequest) (domain.Page[domain.Order], error) {
	s.filter = filter
	return domain.NewPage([]domain.Order{{ID: "o1", UserID: filter.UserID}}, 1, domain.PageRequest{Page: 1, Limit: 10}), nil
}

func TestService_Orders(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	user, err := svc.Create(ctx, users.CreateInput{FirstName: "A", LastName: "A", Email: "a@example.com"})
	require.NoError(t, err)

	orders := &stubOrders{}
	svc.SetOrders(orders)

	page, err := svc.Orders(ctx, user.ID, domain.OrderFilter{Status: domain.OrderStatusPending}, domain.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, user.ID, orders.filter.UserID)
	assert.Equal(t, domain.OrderStatusPending, orders.filter.Status)

	_, err = svc.Orders(ctx, "missing", domain.OrderFilter{}, domain.PageRequest{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}
