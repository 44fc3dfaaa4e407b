package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrJobNotProcessable is returned for chunk invocations against jobs
	// that are cancelled, completed or failed.
	ErrJobNotProcessable = errors.New("job is not in a processable state")
	// ErrWrongJobType is returned when a chunk invocation targets a job of
	// the wrong type (e.g. processing an export job as an import).
	ErrWrongJobType = errors.New("job type does not match the requested operation")
)

// ValidationError marks a row that cannot be normalized. It is recorded as
// one failed record; it never aborts the batch.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing required field: " + e.Field
}

// Record is one normalized row ready for upsert, in its entity-specific
// variant form.
type Record interface {
	// LogicalKey is the organization-scoped uniqueness attribute used to
	// decide insert vs. update.
	LogicalKey() string
}

type ProductRecord struct {
	SKU         string
	Name        string
	Category    string
	Description string
	Price       decimal.Decimal
	Quantity    int
}

func (r *ProductRecord) LogicalKey() string { return r.SKU }

type ContactRecord struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Company   string
}

func (r *ContactRecord) LogicalKey() string { return r.Email }

// ScannedRow is the slim projection the full-scan reader returns: enough to
// group by logical key and pick a keeper, nothing more.
type ScannedRow struct {
	ID        uuid.UUID
	Key       string
	CreatedAt time.Time
}

// EntityStore is the keyed table a target entity lives in. Implementations
// are per entity type (products, contacts) and must scope every query to the
// given organization.
type EntityStore interface {
	FindExistingIDs(ctx context.Context, organizationID uuid.UUID, keys []string) (map[string]uuid.UUID, error)
	InsertBatch(ctx context.Context, organizationID uuid.UUID, records []Record) error
	Insert(ctx context.Context, organizationID uuid.UUID, record Record) error
	Update(ctx context.Context, organizationID, id uuid.UUID, record Record) error
	Count(ctx context.Context, organizationID uuid.UUID) (int64, error)
	Page(ctx context.Context, organizationID uuid.UUID, offset, limit int) ([]ScannedRow, error)
	DeleteByIDs(ctx context.Context, organizationID uuid.UUID, ids []uuid.UUID) (int64, error)
}

// maxErrorSamples caps how many per-row error strings one batch surfaces,
// so the error payload stays bounded regardless of batch size.
const maxErrorSamples = 20

// BatchResult aggregates one upsert invocation. Errors counts every failed
// row; ErrorMessages holds at most maxErrorSamples of them.
type BatchResult struct {
	Inserted      int      `json:"inserted"`
	Updated       int      `json:"updated"`
	Skipped       int      `json:"skipped"`
	Errors        int      `json:"errors"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

func (r *BatchResult) addError(format string, args ...interface{}) {
	r.Errors++
	if len(r.ErrorMessages) < maxErrorSamples {
		r.ErrorMessages = append(r.ErrorMessages, fmt.Sprintf(format, args...))
	}
}
