package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is an imported inventory record. Uniqueness is organization_id +
// sku; the upsert engine updates an existing row instead of inserting a
// second one with the same SKU.
type Product struct {
	ID             uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID       `json:"organization_id" gorm:"type:uuid;not null;uniqueIndex:idx_products_org_sku;index:idx_products_org_created,priority:1"`
	SKU            string          `json:"sku" gorm:"type:varchar(128);not null;uniqueIndex:idx_products_org_sku"`
	Name           string          `json:"name" gorm:"type:varchar(512);not null"`
	Category       string          `json:"category" gorm:"type:varchar(255)"`
	Description    string          `json:"description" gorm:"type:text"`
	Price          decimal.Decimal `json:"price" gorm:"type:numeric(14,2)"`
	Quantity       int             `json:"quantity" gorm:"not null;default:0"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null;autoCreateTime;index:idx_products_org_created,priority:2"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}
