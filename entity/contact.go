package entity

import (
	"time"

	"github.com/google/uuid"
)

// Contact is an imported CRM contact, keyed by organization_id + email.
type Contact struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;uniqueIndex:idx_contacts_org_email;index:idx_contacts_org_created,priority:1"`
	Email          string    `json:"email" gorm:"type:varchar(320);not null;uniqueIndex:idx_contacts_org_email"`
	FirstName      string    `json:"first_name" gorm:"type:varchar(255)"`
	LastName       string    `json:"last_name" gorm:"type:varchar(255)"`
	Phone          string    `json:"phone" gorm:"type:varchar(64)"`
	Company        string    `json:"company" gorm:"type:varchar(255)"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null;autoCreateTime;index:idx_contacts_org_created,priority:2"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
