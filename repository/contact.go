package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"gorm.io/gorm"
)

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) FindIDsByEmails(ctx context.Context, organizationID uuid.UUID, emails []string) (map[string]uuid.UUID, error) {
	if len(emails) == 0 {
		return map[string]uuid.UUID{}, nil
	}
	var rows []entity.Contact
	err := r.db.WithContext(ctx).
		Select("id", "email").
		Where("organization_id = ? AND email IN ?", organizationID, emails).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	existing := make(map[string]uuid.UUID, len(rows))
	for _, row := range rows {
		existing[row.Email] = row.ID
	}
	return existing, nil
}

func (r *ContactRepository) InsertBatch(ctx context.Context, contacts []entity.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&contacts).Error
}

func (r *ContactRepository) Insert(ctx context.Context, contact *entity.Contact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}

func (r *ContactRepository) UpdateFields(ctx context.Context, organizationID, id uuid.UUID, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&entity.Contact{}).
		Where("id = ? AND organization_id = ?", id, organizationID).
		Updates(fields).Error
}

func (r *ContactRepository) CountByOrganization(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Contact{}).
		Where("organization_id = ?", organizationID).
		Count(&count).Error
	return count, err
}

func (r *ContactRepository) PageByCreation(ctx context.Context, organizationID uuid.UUID, offset, limit int) ([]entity.Contact, error) {
	var rows []entity.Contact
	err := r.db.WithContext(ctx).
		Select("id", "email", "created_at").
		Where("organization_id = ?", organizationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *ContactRepository) DeleteByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Delete(&entity.Contact{}, "organization_id = ? AND id IN ?", organizationID, ids)
	return result.RowsAffected, result.Error
}

func (r *ContactRepository) FindAllByCreation(ctx context.Context, organizationID uuid.UUID, offset, limit int) ([]entity.Contact, error) {
	var rows []entity.Contact
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
