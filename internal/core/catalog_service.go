package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CatalogService manages sellable products and their recipes.
type CatalogService interface {
	CreateProduct(ctx context.Context, actor Actor, in CreateProductInput) (*Product, error)
	GetProduct(ctx context.Context, orgID, id string) (*Product, error)
	ListProducts(ctx context.Context, orgID string) ([]Product, error)
}

type CreateProductInput struct {
	Name     string
	Category string
	Price    decimal.Decimal
	Recipe   Recipe
	Variants map[string]Recipe
}

type catalogService struct {
	pool *pgxpool.Pool
}

func NewCatalogService(pool *pgxpool.Pool) CatalogService {
	return &catalogService{pool: pool}
}

const productColumns = `id, org_id, name, category, price, recipe, variants, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.Category, &p.Price, &p.Recipe, &p.Variants, &p.CreatedAt)
	return p, err
}

func (s *catalogService) CreateProduct(ctx context.Context, actor Actor, in CreateProductInput) (*Product, error) {
	if in.Name == "" {
		return nil, invalidInput("create_product", "name is required")
	}
	if in.Price.IsNegative() {
		return nil, invalidQuantity("create_product", "product", in.Name, in.Price, "non-negative")
	}
	p := Product{
		ID:       uuid.NewString(),
		OrgID:    actor.OrgID,
		Name:     in.Name,
		Category: in.Category,
		Price:    in.Price,
		Recipe:   in.Recipe,
		Variants: in.Variants,
	}
	if p.Recipe == nil {
		p.Recipe = Recipe{}
	}
	if p.Variants == nil {
		p.Variants = map[string]Recipe{}
	}
	if err := ValidateRecipe(p); err != nil {
		return nil, err
	}

	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Every referenced ingredient must exist in the same tenant.
		for _, id := range recipeIngredientIDs(p) {
			var orgID string
			err := tx.QueryRow(ctx, "SELECT org_id FROM inventory_items WHERE id = $1", id).Scan(&orgID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return notFound("create_product", "ingredient", id)
				}
				return fmt.Errorf("failed to resolve ingredient %s: %w", id, err)
			}
			if orgID != actor.OrgID {
				return tenantMismatch("create_product", "ingredient", id)
			}
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO products (id, org_id, name, category, price, recipe, variants)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`, p.ID, p.OrgID, p.Name, p.Category, p.Price, p.Recipe, p.Variants).Scan(&p.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return invalidInput("create_product", fmt.Sprintf("product %q already exists", p.Name))
			}
			return fmt.Errorf("failed to create product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *catalogService) GetProduct(ctx context.Context, orgID, id string) (*Product, error) {
	return getProductQ(ctx, s.pool, "get_product", orgID, id)
}

func getProductQ(ctx context.Context, q pgxQuerier, op, orgID, id string) (*Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, "product", id)
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", id, err)
	}
	if p.OrgID != orgID {
		return nil, tenantMismatch(op, "product", id)
	}
	return &p, nil
}

func (s *catalogService) ListProducts(ctx context.Context, orgID string) ([]Product, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+productColumns+" FROM products WHERE org_id = $1 ORDER BY name", orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
