package repository

import (
	"github.com/harborcrm/crm-import-orchestrator/infra"
	"gorm.io/gorm"
)

type Repository struct {
	JobRepo     *JobRepository
	ProductRepo *ProductRepository
	ContactRepo *ContactRepository
}

var repository *Repository

func InitRepository(infra *infra.Infra) *Repository {
	repository = &Repository{
		JobRepo:     NewJobRepository(infra.Postgres.DB),
		ProductRepo: NewProductRepository(infra.Postgres.DB),
		ContactRepo: NewContactRepository(infra.Postgres.DB),
	}
	return repository
}

func GetRepository() *Repository {
	if repository == nil {
		panic("repository not initialized")
	}
	return repository
}

func (r *Repository) BeginTransaction(db *gorm.DB) *gorm.DB {
	return db.Begin()
}

func (r *Repository) WithTransaction(tx *gorm.DB) *Repository {
	return &Repository{
		JobRepo:     NewJobRepository(tx),
		ProductRepo: NewProductRepository(tx),
		ContactRepo: NewContactRepository(tx),
	}
}
