package importer

import (
	"strings"
	"testing"

	"github.com/harborcrm/crm-import-orchestrator/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var productMapping = map[string]string{
	"SKU":      "sku",
	"Name":     "name",
	"Category": "category",
	"Desc":     "description",
	"Price":    "price",
	"Qty":      "quantity",
}

var contactMapping = map[string]string{
	"Email":   "email",
	"First":   "first_name",
	"Last":    "last_name",
	"Phone":   "phone",
	"Company": "company",
}

func TestNormalizeProduct(t *testing.T) {
	record, err := Normalize(entity.DataTypeProducts, entity.RawRow{
		"SKU":      "W-100",
		"Name":     "  Widget  ",
		"Category": "Hardware",
		"Desc":     "A widget",
		"Price":    "$1,299.50",
		"Qty":      "12",
	}, productMapping)
	require.NoError(t, err)

	product, ok := record.(*ProductRecord)
	require.True(t, ok)
	require.Equal(t, "W-100", product.SKU)
	require.Equal(t, "Widget", product.Name)
	require.Equal(t, "Hardware", product.Category)
	require.True(t, product.Price.Equal(decimal.RequireFromString("1299.50")), "got %s", product.Price)
	require.Equal(t, 12, product.Quantity)
	require.Equal(t, "W-100", product.LogicalKey())
}

func TestNormalizeProduct_MissingNameFails(t *testing.T) {
	_, err := Normalize(entity.DataTypeProducts, entity.RawRow{
		"SKU": "W-100",
	}, productMapping)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "name", vErr.Field)
}

func TestNormalizeProduct_Defaults(t *testing.T) {
	record, err := Normalize(entity.DataTypeProducts, entity.RawRow{
		"Name": "Widget",
	}, productMapping)
	require.NoError(t, err)

	product := record.(*ProductRecord)
	require.Equal(t, "Uncategorized", product.Category)
	require.Equal(t, "No description", product.Description)
	require.True(t, product.Price.IsZero())
	require.Equal(t, 0, product.Quantity)

	// Missing SKU gets a surrogate so the row still has a logical key.
	require.True(t, strings.HasPrefix(product.SKU, "SKU-"))
}

func TestNormalizeProduct_SurrogateSKUsDiffer(t *testing.T) {
	a, err := Normalize(entity.DataTypeProducts, entity.RawRow{"Name": "A"}, productMapping)
	require.NoError(t, err)
	b, err := Normalize(entity.DataTypeProducts, entity.RawRow{"Name": "B"}, productMapping)
	require.NoError(t, err)
	require.NotEqual(t, a.LogicalKey(), b.LogicalKey())
}

func TestNormalizeProduct_MalformedNumbersFallBack(t *testing.T) {
	record, err := Normalize(entity.DataTypeProducts, entity.RawRow{
		"Name":  "Widget",
		"Price": "call us",
		"Qty":   "a few",
	}, productMapping)
	require.NoError(t, err)

	product := record.(*ProductRecord)
	require.True(t, product.Price.IsZero())
	require.Equal(t, 0, product.Quantity)
}

func TestNormalizeProduct_NumericCellValues(t *testing.T) {
	// JSON payloads carry numbers, not strings.
	record, err := Normalize(entity.DataTypeProducts, entity.RawRow{
		"Name":  "Widget",
		"Price": 19.99,
		"Qty":   float64(7),
	}, productMapping)
	require.NoError(t, err)

	product := record.(*ProductRecord)
	require.True(t, product.Price.Equal(decimal.RequireFromString("19.99")))
	require.Equal(t, 7, product.Quantity)
}

func TestNormalizeContact(t *testing.T) {
	record, err := Normalize(entity.DataTypeContacts, entity.RawRow{
		"Email":   "Jane.Doe@Example.COM",
		"First":   "Jane",
		"Last":    "Doe",
		"Phone":   "+1 555 0100",
		"Company": "Acme",
	}, contactMapping)
	require.NoError(t, err)

	contact, ok := record.(*ContactRecord)
	require.True(t, ok)
	require.Equal(t, "jane.doe@example.com", contact.Email)
	require.Equal(t, "jane.doe@example.com", contact.LogicalKey())
	require.Equal(t, "Jane", contact.FirstName)
	require.Equal(t, "Acme", contact.Company)
}

func TestNormalizeContact_MissingEmailFails(t *testing.T) {
	_, err := Normalize(entity.DataTypeContacts, entity.RawRow{
		"First": "Jane",
	}, contactMapping)
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "email", vErr.Field)
}

func TestNormalizeContact_MalformedEmailFails(t *testing.T) {
	_, err := Normalize(entity.DataTypeContacts, entity.RawRow{
		"Email": "not-an-email",
	}, contactMapping)
	require.Error(t, err)
}

func TestNormalize_UnmappedColumnsDropped(t *testing.T) {
	record, err := Normalize(entity.DataTypeProducts, entity.RawRow{
		"Name":         "Widget",
		"Internal Ref": "should vanish",
	}, productMapping)
	require.NoError(t, err)

	product := record.(*ProductRecord)
	require.Equal(t, "Widget", product.Name)
	require.Equal(t, "No description", product.Description)
}
