package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/harborcrm/crm-import-orchestrator/repository"
)

// ProductStore adapts the product repository to the engine's EntityStore.
type ProductStore struct {
	repo *repository.ProductRepository
}

func NewProductStore(repo *repository.ProductRepository) *ProductStore {
	return &ProductStore{repo: repo}
}

func (s *ProductStore) FindExistingIDs(ctx context.Context, organizationID uuid.UUID, keys []string) (map[string]uuid.UUID, error) {
	return s.repo.FindIDsBySKUs(ctx, organizationID, keys)
}

func (s *ProductStore) InsertBatch(ctx context.Context, organizationID uuid.UUID, records []Record) error {
	products := make([]entity.Product, 0, len(records))
	for _, record := range records {
		product, err := productEntity(organizationID, record)
		if err != nil {
			return err
		}
		products = append(products, *product)
	}
	return s.repo.InsertBatch(ctx, products)
}

func (s *ProductStore) Insert(ctx context.Context, organizationID uuid.UUID, record Record) error {
	product, err := productEntity(organizationID, record)
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, product)
}

func (s *ProductStore) Update(ctx context.Context, organizationID, id uuid.UUID, record Record) error {
	rec, ok := record.(*ProductRecord)
	if !ok {
		return fmt.Errorf("expected product record, got %T", record)
	}
	return s.repo.UpdateFields(ctx, organizationID, id, map[string]interface{}{
		"name":        rec.Name,
		"category":    rec.Category,
		"description": rec.Description,
		"price":       rec.Price,
		"quantity":    rec.Quantity,
		"updated_at":  time.Now(),
	})
}

func (s *ProductStore) Count(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	return s.repo.CountByOrganization(ctx, organizationID)
}

func (s *ProductStore) Page(ctx context.Context, organizationID uuid.UUID, offset, limit int) ([]ScannedRow, error) {
	products, err := s.repo.PageByCreation(ctx, organizationID, offset, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]ScannedRow, len(products))
	for i, product := range products {
		rows[i] = ScannedRow{ID: product.ID, Key: product.SKU, CreatedAt: product.CreatedAt}
	}
	return rows, nil
}

func (s *ProductStore) DeleteByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) (int64, error) {
	return s.repo.DeleteByIDs(ctx, organizationID, ids)
}

func productEntity(organizationID uuid.UUID, record Record) (*entity.Product, error) {
	rec, ok := record.(*ProductRecord)
	if !ok {
		return nil, fmt.Errorf("expected product record, got %T", record)
	}
	return &entity.Product{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		SKU:            rec.SKU,
		Name:           rec.Name,
		Category:       rec.Category,
		Description:    rec.Description,
		Price:          rec.Price,
		Quantity:       rec.Quantity,
	}, nil
}

// ContactStore adapts the contact repository to the engine's EntityStore.
type ContactStore struct {
	repo *repository.ContactRepository
}

func NewContactStore(repo *repository.ContactRepository) *ContactStore {
	return &ContactStore{repo: repo}
}

func (s *ContactStore) FindExistingIDs(ctx context.Context, organizationID uuid.UUID, keys []string) (map[string]uuid.UUID, error) {
	return s.repo.FindIDsByEmails(ctx, organizationID, keys)
}

func (s *ContactStore) InsertBatch(ctx context.Context, organizationID uuid.UUID, records []Record) error {
	contacts := make([]entity.Contact, 0, len(records))
	for _, record := range records {
		contact, err := contactEntity(organizationID, record)
		if err != nil {
			return err
		}
		contacts = append(contacts, *contact)
	}
	return s.repo.InsertBatch(ctx, contacts)
}

func (s *ContactStore) Insert(ctx context.Context, organizationID uuid.UUID, record Record) error {
	contact, err := contactEntity(organizationID, record)
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, contact)
}

func (s *ContactStore) Update(ctx context.Context, organizationID, id uuid.UUID, record Record) error {
	rec, ok := record.(*ContactRecord)
	if !ok {
		return fmt.Errorf("expected contact record, got %T", record)
	}
	return s.repo.UpdateFields(ctx, organizationID, id, map[string]interface{}{
		"first_name": rec.FirstName,
		"last_name":  rec.LastName,
		"phone":      rec.Phone,
		"company":    rec.Company,
		"updated_at": time.Now(),
	})
}

func (s *ContactStore) Count(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	return s.repo.CountByOrganization(ctx, organizationID)
}

func (s *ContactStore) Page(ctx context.Context, organizationID uuid.UUID, offset, limit int) ([]ScannedRow, error) {
	contacts, err := s.repo.PageByCreation(ctx, organizationID, offset, limit)
	if err != nil {
		return nil, err
	}
	rows := make([]ScannedRow, len(contacts))
	for i, contact := range contacts {
		rows[i] = ScannedRow{ID: contact.ID, Key: contact.Email, CreatedAt: contact.CreatedAt}
	}
	return rows, nil
}

func (s *ContactStore) DeleteByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) (int64, error) {
	return s.repo.DeleteByIDs(ctx, organizationID, ids)
}

func contactEntity(organizationID uuid.UUID, record Record) (*entity.Contact, error) {
	rec, ok := record.(*ContactRecord)
	if !ok {
		return nil, fmt.Errorf("expected contact record, got %T", record)
	}
	return &entity.Contact{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Email:          rec.Email,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		Phone:          rec.Phone,
		Company:        rec.Company,
	}, nil
}

// Stores builds the data-type to store map from the repository aggregate.
func Stores(repo *repository.Repository) map[entity.DataType]EntityStore {
	return map[entity.DataType]EntityStore{
		entity.DataTypeProducts: NewProductStore(repo.ProductRepo),
		entity.DataTypeContacts: NewContactStore(repo.ContactRepo),
	}
}
