package importer

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/shopspring/decimal"
)

const (
	defaultCategory    = "Uncategorized"
	defaultDescription = "No description"
)

// Normalize turns one raw row into the canonical record variant for the
// target entity type. A *ValidationError is returned when a required field
// is absent; callers record that as one failed row and continue.
func Normalize(dataType entity.DataType, row entity.RawRow, mapping map[string]string) (Record, error) {
	fields := mapFields(row, mapping)
	switch dataType {
	case entity.DataTypeContacts:
		return normalizeContact(fields)
	case entity.DataTypeProducts:
		return normalizeProduct(fields)
	default:
		return nil, fmt.Errorf("unsupported data type %q", dataType)
	}
}

// mapFields applies the column-to-field mapping. Unmapped columns are
// dropped.
func mapFields(row entity.RawRow, mapping map[string]string) map[string]string {
	fields := make(map[string]string, len(mapping))
	for column, field := range mapping {
		raw, ok := row[column]
		if !ok {
			continue
		}
		fields[field] = stringValue(raw)
	}
	return fields
}

func normalizeProduct(fields map[string]string) (Record, error) {
	name := fields["name"]
	if name == "" {
		return nil, &ValidationError{Field: "name"}
	}

	sku := fields["sku"]
	if sku == "" {
		sku = surrogateSKU()
	}

	category := fields["category"]
	if category == "" {
		category = defaultCategory
	}
	description := fields["description"]
	if description == "" {
		description = defaultDescription
	}

	return &ProductRecord{
		SKU:         sku,
		Name:        name,
		Category:    category,
		Description: description,
		Price:       parsePrice(fields["price"]),
		Quantity:    parseQuantity(fields["quantity"]),
	}, nil
}

func normalizeContact(fields map[string]string) (Record, error) {
	email := strings.ToLower(fields["email"])
	if email == "" {
		return nil, &ValidationError{Field: "email"}
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}

	return &ContactRecord{
		Email:     email,
		FirstName: fields["first_name"],
		LastName:  fields["last_name"],
		Phone:     fields["phone"],
		Company:   fields["company"],
	}, nil
}

// surrogateSKU synthesizes a key for rows without one: timestamp plus a
// random suffix to avoid collisions inside the same nanosecond.
func surrogateSKU() string {
	return fmt.Sprintf("SKU-%d-%04X", time.Now().UnixNano(), rand.Intn(0x10000))
}

// stringValue renders a raw cell value as a trimmed string. Spreadsheet
// cells arrive as strings; JSON payloads may carry numbers or bools.
func stringValue(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// parsePrice parses a price with a safe fallback to zero. Currency symbols
// and thousands separators are tolerated.
func parsePrice(value string) decimal.Decimal {
	cleaned := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(value)
	if cleaned == "" {
		return decimal.Zero
	}
	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return parsed
}

// parseQuantity parses an integer quantity with a safe fallback to zero.
// Fractional inputs are truncated.
func parseQuantity(value string) int {
	if value == "" {
		return 0
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		return int(parsed)
	}
	return 0
}
