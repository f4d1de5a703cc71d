package qbosync

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/onpointdev/ops_backend/models"
)

// Normalization is deliberately lenient: a malformed or missing field
// projects to NULL, never to an error. The only fatal conditions are a
// record that is not a JSON object and a record with no Id, because
// neither can be keyed. Payloads are decoded with UseNumber so money
// amounts reach shopspring/decimal as their exact source text.

func decodeRecord(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringField(m map[string]any, key string) *string {
	if m == nil {
		return nil
	}
	s, ok := m[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func boolField(m map[string]any, key string) *bool {
	if m == nil {
		return nil
	}
	b, ok := m[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

func intField(m map[string]any, key string) *int {
	if m == nil {
		return nil
	}
	num, ok := m[key].(json.Number)
	if !ok {
		return nil
	}
	n, err := num.Int64()
	if err != nil {
		return nil
	}
	i := int(n)
	return &i
}

func decimalField(m map[string]any, key string) *decimal.Decimal {
	if m == nil {
		return nil
	}
	var text string
	switch v := m[key].(type) {
	case json.Number:
		text = v.String()
	case string:
		text = v
	default:
		return nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	return &d
}

// refField resolves QuickBooks reference objects of the shape
// {"value": "123", "name": "..."} down to the referenced id.
func refField(m map[string]any, key string) *string {
	if m == nil {
		return nil
	}
	return stringField(asMap(m[key]), "value")
}

func timeField(m map[string]any, key string) *time.Time {
	s := stringField(m, key)
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}

func dateField(m map[string]any, key string) *time.Time {
	s := stringField(m, key)
	if s == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil
	}
	return &t
}

func lastUpdatedField(m map[string]any) *time.Time {
	return timeField(asMap(m["MetaData"]), "LastUpdatedTime")
}

// NormalizeCustomer projects one raw Customer record into its local row.
func NormalizeCustomer(raw json.RawMessage, realmId string) (*models.QboCustomer, error) {
	m, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	qboId := stringField(m, "Id")
	if qboId == nil {
		return nil, errMissingId
	}
	isProject := false
	if v := boolField(m, "IsProject"); v != nil && *v {
		isProject = true
	}
	// Older records mark sub-customers with Job instead of IsProject.
	if v := boolField(m, "Job"); v != nil && *v {
		isProject = true
	}
	return &models.QboCustomer{
		RealmId:       realmId,
		QboId:         *qboId,
		DisplayName:   stringField(m, "DisplayName"),
		Email:         stringField(asMap(m["PrimaryEmailAddr"]), "Address"),
		Active:        boolField(m, "Active"),
		IsProject:     isProject,
		ParentQboId:   refField(m, "ParentRef"),
		Balance:       decimalField(m, "Balance"),
		LastUpdatedAt: lastUpdatedField(m),
		RawJSON:       raw,
	}, nil
}

// NormalizeTransaction projects one raw transaction record into a header
// row plus its line rows. Lines without an Id get their zero-based
// position as the line key.
func NormalizeTransaction(raw json.RawMessage, entityType string, realmId string) (*models.QboTransaction, []models.QboTransactionLine, error) {
	m, err := decodeRecord(raw)
	if err != nil {
		return nil, nil, err
	}
	qboId := stringField(m, "Id")
	if qboId == nil {
		return nil, nil, errMissingId
	}
	header := &models.QboTransaction{
		RealmId:       realmId,
		EntityType:    entityType,
		QboId:         *qboId,
		DocNumber:     stringField(m, "DocNumber"),
		TxnDate:       dateField(m, "TxnDate"),
		TotalAmount:   decimalField(m, "TotalAmt"),
		Balance:       decimalField(m, "Balance"),
		CustomerQboId: refField(m, "CustomerRef"),
		VendorQboId:   refField(m, "VendorRef"),
		LastUpdatedAt: lastUpdatedField(m),
		RawJSON:       raw,
	}

	rawLines, _ := m["Line"].([]any)
	lines := make([]models.QboTransactionLine, 0, len(rawLines))
	for i, v := range rawLines {
		lm := asMap(v)
		if lm == nil {
			lines = append(lines, models.QboTransactionLine{LineId: positionalLineId(i)})
			continue
		}
		lines = append(lines, normalizeLine(lm, i))
	}
	return header, lines, nil
}

// positionalLineId keys lines that carry no Id of their own. The "pos:"
// prefix keeps these keys disjoint from natural QuickBooks line ids, which
// are plain integers starting at "1".
func positionalLineId(position int) string {
	return "pos:" + strconv.Itoa(position)
}

func normalizeLine(lm map[string]any, position int) models.QboTransactionLine {
	line := models.QboTransactionLine{
		LineId:      positionalLineId(position),
		LineNum:     intField(lm, "LineNum"),
		Description: stringField(lm, "Description"),
		Amount:      decimalField(lm, "Amount"),
		DetailType:  stringField(lm, "DetailType"),
	}
	if id := stringField(lm, "Id"); id != nil {
		line.LineId = *id
	}
	if line.DetailType == nil {
		return line
	}
	switch *line.DetailType {
	case "SalesItemLineDetail":
		d := asMap(lm["SalesItemLineDetail"])
		line.ItemQboId = refField(d, "ItemRef")
		line.ClassQboId = refField(d, "ClassRef")
		line.Qty = decimalField(d, "Qty")
		line.UnitPrice = decimalField(d, "UnitPrice")
	case "ItemBasedExpenseLineDetail":
		d := asMap(lm["ItemBasedExpenseLineDetail"])
		line.ItemQboId = refField(d, "ItemRef")
		line.ClassQboId = refField(d, "ClassRef")
		line.CustomerQboId = refField(d, "CustomerRef")
		line.Qty = decimalField(d, "Qty")
		line.UnitPrice = decimalField(d, "UnitPrice")
	case "AccountBasedExpenseLineDetail":
		d := asMap(lm["AccountBasedExpenseLineDetail"])
		line.AccountQboId = refField(d, "AccountRef")
		line.ClassQboId = refField(d, "ClassRef")
		line.CustomerQboId = refField(d, "CustomerRef")
	case "GroupLineDetail":
		d := asMap(lm["GroupLineDetail"])
		line.ItemQboId = refField(d, "GroupItemRef")
		line.Qty = decimalField(d, "Quantity")
	case "JournalEntryLineDetail":
		d := asMap(lm["JournalEntryLineDetail"])
		line.AccountQboId = refField(d, "AccountRef")
		line.ClassQboId = refField(d, "ClassRef")
		line.DepartmentQboId = refField(d, "DepartmentRef")
		entity := asMap(d["Entity"])
		ref := refField(entity, "EntityRef")
		if typ := stringField(entity, "Type"); typ != nil && ref != nil {
			switch *typ {
			case "Customer":
				line.CustomerQboId = ref
			case "Vendor":
				line.VendorQboId = ref
			}
		}
	}
	return line
}
