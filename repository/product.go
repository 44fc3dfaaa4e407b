package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"gorm.io/gorm"
)

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// FindIDsBySKUs resolves which of the given SKUs already exist for the
// organization. Callers chunk the SKU set; a single call must stay under the
// practical IN-clause ceiling.
func (r *ProductRepository) FindIDsBySKUs(ctx context.Context, organizationID uuid.UUID, skus []string) (map[string]uuid.UUID, error) {
	if len(skus) == 0 {
		return map[string]uuid.UUID{}, nil
	}
	var rows []entity.Product
	err := r.db.WithContext(ctx).
		Select("id", "sku").
		Where("organization_id = ? AND sku IN ?", organizationID, skus).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	existing := make(map[string]uuid.UUID, len(rows))
	for _, row := range rows {
		existing[row.SKU] = row.ID
	}
	return existing, nil
}

func (r *ProductRepository) InsertBatch(ctx context.Context, products []entity.Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&products).Error
}

func (r *ProductRepository) Insert(ctx context.Context, product *entity.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *ProductRepository) UpdateFields(ctx context.Context, organizationID, id uuid.UUID, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entity.Product{}).
		Where("id = ? AND organization_id = ?", id, organizationID).
		Updates(fields).Error
}

func (r *ProductRepository) CountByOrganization(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Product{}).
		Where("organization_id = ?", organizationID).
		Count(&count).Error
	return count, err
}

// PageByCreation returns one page of the deterministic full scan. The sort
// (created_at ASC, id ASC) is a total order with no ties, so pages fetched
// concurrently cover stable windows.
func (r *ProductRepository) PageByCreation(ctx context.Context, organizationID uuid.UUID, offset, limit int) ([]entity.Product, error) {
	var rows []entity.Product
	err := r.db.WithContext(ctx).
		Select("id", "sku", "created_at").
		Where("organization_id = ?", organizationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *ProductRepository) DeleteByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Delete(&entity.Product{}, "organization_id = ? AND id IN ?", organizationID, ids)
	return result.RowsAffected, result.Error
}

// FindAllByCreation pages full rows for export, same order as the scan.
func (r *ProductRepository) FindAllByCreation(ctx context.Context, organizationID uuid.UUID, offset, limit int) ([]entity.Product, error) {
	var rows []entity.Product
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
