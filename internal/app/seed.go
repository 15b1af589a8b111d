package app

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	httpsvc "github.com/vladislavdragonenkov/shop/internal/service/http"
	"github.com/vladislavdragonenkov/shop/internal/service/users"
)

//go:embed seed.yaml
var seedYAML []byte

type seedCatalog struct {
	Categories []seedCategory `yaml:"categories"`
	Products   []seedProduct  `yaml:"products"`
	Users      []seedUser     `yaml:"users"`
}

type seedCategory struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Parent      string `yaml:"parent"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	MetaTitle   string `yaml:"meta_title"`
	SortOrder   int    `yaml:"sort_order"`
	Featured    bool   `yaml:"featured"`
}

type seedProduct struct {
	SKU         string   `yaml:"sku"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Price       int64    `yaml:"price"`
	Stock       int      `yaml:"stock"`
	Category    string   `yaml:"category"`
	ImageURL    string   `yaml:"image_url"`
	Images      []string `yaml:"images"`
	Weight      int      `yaml:"weight"`
	Dimensions  string   `yaml:"dimensions"`
	Tags        []string `yaml:"tags"`
}

type seedUser struct {
	FirstName       string `yaml:"first_name"`
	LastName        string `yaml:"last_name"`
	Email           string `yaml:"email"`
	Phone           string `yaml:"phone"`
	Role            string `yaml:"role"`
	ShippingAddress string `yaml:"shipping_address"`
	BillingAddress  string `yaml:"billing_address"`
	DateOfBirth     string `yaml:"date_of_birth"`
	MarketingOptIn  bool   `yaml:"marketing_opt_in"`
	EmailVerified   bool   `yaml:"email_verified"`
	Inactive        bool   `yaml:"inactive"`
}

// seedStats: сколько записей создано и сколько уже существовало.
type seedStats struct {
	Created int
	Skipped int
}

func parseSeedCatalog(raw []byte) (seedCatalog, error) {
	var out seedCatalog
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return seedCatalog{}, fmt.Errorf("decode seed catalog: %w", err)
	}
	return out, nil
}

// seedData загружает встроенный каталог через сервисы, поэтому все проверки
// домена применяются и к начальным данным. Уже существующие записи пропускаются.
func seedData(ctx context.Context, svc httpsvc.Services, logger *log.Entry) (seedStats, error) {
	data, err := parseSeedCatalog(seedYAML)
	if err != nil {
		return seedStats{}, err
	}

	var stats seedStats
	for _, c := range data.Categories {
		in := catalog.CategoryInput{
			Name:        c.Name,
			Slug:        c.Slug,
			Description: c.Description,
			Icon:        c.Icon,
			MetaTitle:   c.MetaTitle,
			SortOrder:   c.SortOrder,
			IsFeatured:  c.Featured,
		}
		if c.Parent != "" {
			parent, err := svc.Categories.ViewBySlug(ctx, c.Parent)
			if err != nil {
				return stats, fmt.Errorf("seed category %s: parent %s: %w", c.Slug, c.Parent, err)
			}
			in.ParentID = parent.ID
		}
		_, err := svc.Categories.Create(ctx, in)
		if err := stats.track(err, domain.ErrDuplicateSlug); err != nil {
			return stats, fmt.Errorf("seed category %s: %w", c.Slug, err)
		}
	}

	for _, p := range data.Products {
		_, err := svc.Products.Create(ctx, catalog.ProductInput{
			SKU:         p.SKU,
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
			Tags:        p.Tags,
			ImageURL:    p.ImageURL,
			Images:      p.Images,
			Weight:      p.Weight,
			Dimensions:  p.Dimensions,
			Stock:       p.Stock,
		})
		if err := stats.track(err, domain.ErrDuplicateSKU); err != nil {
			return stats, fmt.Errorf("seed product %s: %w", p.SKU, err)
		}
	}

	for _, u := range data.Users {
		user, err := svc.Users.Create(ctx, users.CreateInput{
			FirstName:       u.FirstName,
			LastName:        u.LastName,
			Email:           u.Email,
			PhoneNumber:     u.Phone,
			Role:            u.Role,
			ShippingAddress: u.ShippingAddress,
			BillingAddress:  u.BillingAddress,
			DateOfBirth:     u.DateOfBirth,
			MarketingOptIn:  u.MarketingOptIn,
		})
		if err := stats.track(err, domain.ErrDuplicateEmail); err != nil {
			return stats, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		if err == nil && (u.Inactive || u.EmailVerified) {
			patch := users.UpdateInput{}
			if u.Inactive {
				inactive := false
				patch.IsActive = &inactive
			}
			if u.EmailVerified {
				verified := true
				patch.EmailVerified = &verified
			}
			if _, err := svc.Users.Update(ctx, user.ID, patch); err != nil {
				return stats, fmt.Errorf("update seed user %s: %w", u.Email, err)
			}
		}
	}

	logger.WithFields(log.Fields{"created": stats.Created, "skipped": stats.Skipped}).Info("seed data loaded")
	return stats, nil
}

func (s *seedStats) track(err, duplicate error) error {
	switch {
	case err == nil:
		s.Created++
		return nil
	case errors.Is(err, duplicate):
		s.Skipped++
		return nil
	default:
		return err
	}
}
