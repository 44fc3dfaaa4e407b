package importer

import (
	"strings"

	"github.com/harborcrm/crm-import-orchestrator/entity"
)

// Canonical field names per entity type, in the order containment matching
// tries them.
var productFields = []string{"sku", "name", "category", "description", "price", "quantity"}
var contactFields = []string{"email", "first_name", "last_name", "phone", "company"}

// headerSynonyms maps normalized spreadsheet headers to canonical fields.
var headerSynonyms = map[string]string{
	"itemnumber":  "sku",
	"itemno":      "sku",
	"productcode": "sku",
	"code":        "sku",
	"barcode":     "sku",

	"productname": "name",
	"itemname":    "name",
	"title":       "name",

	"producttype": "category",
	"group":       "category",
	"type":        "category",

	"desc":    "description",
	"details": "description",
	"notes":   "description",

	"unitprice": "price",
	"saleprice": "price",
	"cost":      "price",
	"rate":      "price",

	"qty":      "quantity",
	"stock":    "quantity",
	"onhand":   "quantity",
	"instock":  "quantity",
	"quantity": "quantity",

	"emailaddress": "email",
	"mail":         "email",

	"firstname": "first_name",
	"fname":     "first_name",
	"givenname": "first_name",

	"lastname":   "last_name",
	"lname":      "last_name",
	"surname":    "last_name",
	"familyname": "last_name",

	"phonenumber": "phone",
	"telephone":   "phone",
	"tel":         "phone",
	"mobile":      "phone",
	"cell":        "phone",

	"companyname":  "company",
	"organisation": "company",
	"organization": "company",
	"employer":     "company",
}

// DetectMapping auto-detects the column-to-field mapping for the given
// headers: normalized exact match first, then the synonym table, then
// substring containment. Columns that match nothing are left out of the
// mapping and their values are dropped during normalization.
func DetectMapping(headers []string, dataType entity.DataType) map[string]string {
	fields := fieldsFor(dataType)
	mapping := make(map[string]string)
	taken := make(map[string]bool)

	assign := func(header, field string) {
		if field == "" || taken[field] {
			return
		}
		mapping[header] = field
		taken[field] = true
	}

	for _, header := range headers {
		normalized := normalizeHeader(header)
		if normalized == "" {
			continue
		}

		if field := exactField(normalized, fields); field != "" {
			assign(header, field)
			continue
		}

		if field, ok := headerSynonyms[normalized]; ok && containsField(fields, field) {
			assign(header, field)
			continue
		}

		assign(header, containmentField(normalized, fields))
	}

	return mapping
}

func fieldsFor(dataType entity.DataType) []string {
	switch dataType {
	case entity.DataTypeContacts:
		return contactFields
	default:
		return productFields
	}
}

// normalizeHeader lowercases and strips everything but letters and digits, so
// "Unit Price", "unit_price" and "UnitPrice" all collapse to "unitprice".
func normalizeHeader(header string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(header)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func exactField(normalized string, fields []string) string {
	for _, field := range fields {
		if normalized == normalizeHeader(field) {
			return field
		}
	}
	return ""
}

func containmentField(normalized string, fields []string) string {
	for _, field := range fields {
		nf := normalizeHeader(field)
		if strings.Contains(normalized, nf) || strings.Contains(nf, normalized) {
			return field
		}
	}
	return ""
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}
