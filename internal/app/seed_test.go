package app

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func newMemoryDeps(t *testing.T) *runtimeDependencies {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), logger.WithField("test", "seed"))
	require.NoError(t, err)
	return deps
}

func TestParseSeedCatalog(t *testing.T) {
	data, err := parseSeedCatalog(seedYAML)
	require.NoError(t, err)

	assert.Len(t, data.Categories, 3)
	assert.Len(t, data.Products, 4)
	assert.Len(t, data.Users, 4)
	assert.Equal(t, "WBH-001-BLK", data.Products[0].SKU)
	assert.Equal(t, int64(9999), data.Products[0].Price)

	_, err = parseSeedCatalog([]byte("products: [oops"))
	require.Error(t, err)
}

func TestSeedData_LoadsCatalogOnce(t *testing.T) {
	ctx := context.Background()
	logger, hook := logtest.NewNullLogger()
	deps := newMemoryDeps(t)
	svc := buildServices(DefaultConfig(), deps, prometheus.NewRegistry(), logger.WithField("test", "seed"))

	stats, err := seedData(ctx, svc, logger.WithField("test", "seed"))
	require.NoError(t, err)
	assert.Equal(t, seedStats{Created: 11}, stats)
	assert.Equal(t, "seed data loaded", hook.LastEntry().Message)

	headphones, err := deps.productRepo.GetBySKU(ctx, "WBH-001-BLK")
	require.NoError(t, err)
	assert.Equal(t, "Wireless Bluetooth Headphones", headphones.Name)
	assert.Equal(t, int64(9999), headphones.Price)
	assert.Equal(t, 50, headphones.Stock)
	assert.Equal(t, domain.ProductStatusActive, headphones.Status)
	assert.Len(t, headphones.Images, 2)
	assert.Equal(t, 250, headphones.Weight)

	mouse, err := deps.productRepo.GetBySKU(ctx, "WM-004-WHT")
	require.NoError(t, err)
	assert.Equal(t, domain.ProductStatusOutOfStock, mouse.Status, "zero stock marks the product out of stock")

	john, err := deps.userRepo.GetByEmail(ctx, "john.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1990-05-15", john.DateOfBirth)
	assert.True(t, john.MarketingOptIn)
	assert.True(t, john.EmailVerified)

	admin, err := deps.userRepo.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.UserRoleAdmin, admin.Role)

	mike, err := deps.userRepo.GetByEmail(ctx, "mike.johnson@example.com")
	require.NoError(t, err)
	assert.False(t, mike.IsActive)

	audio, err := deps.categoryRepo.GetBySlug(ctx, "audio")
	require.NoError(t, err)
	electronics, err := deps.categoryRepo.GetBySlug(ctx, "electronics")
	require.NoError(t, err)
	assert.Equal(t, electronics.ID, audio.ParentID)
	assert.Equal(t, "laptop", electronics.Icon)

	again, err := seedData(ctx, svc, logger.WithField("test", "seed"))
	require.NoError(t, err)
	assert.Equal(t, seedStats{Skipped: 11}, again)
}
