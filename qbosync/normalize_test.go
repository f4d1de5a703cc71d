package qbosync

import (
	"encoding/json"
	"testing"
)

func TestNormalizeCustomer_FullRecord(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "42",
		"DisplayName": "Harbor Tower Buildout",
		"Active": true,
		"IsProject": true,
		"ParentRef": {"value": "7", "name": "Harbor Corp"},
		"PrimaryEmailAddr": {"Address": "pm@harbor.example"},
		"Balance": 10450.75,
		"MetaData": {"LastUpdatedTime": "2026-03-15T10:30:00-07:00"}
	}`)
	row, err := NormalizeCustomer(raw, "realm1")
	if err != nil {
		t.Fatalf("NormalizeCustomer: %v", err)
	}
	if row.QboId != "42" || row.RealmId != "realm1" {
		t.Errorf("keys: got %q/%q", row.RealmId, row.QboId)
	}
	if row.DisplayName == nil || *row.DisplayName != "Harbor Tower Buildout" {
		t.Errorf("display name: got %v", row.DisplayName)
	}
	if row.Email == nil || *row.Email != "pm@harbor.example" {
		t.Errorf("email: got %v", row.Email)
	}
	if !row.IsProject {
		t.Error("IsProject should be true")
	}
	if row.ParentQboId == nil || *row.ParentQboId != "7" {
		t.Errorf("parent: got %v", row.ParentQboId)
	}
	if row.Balance == nil || row.Balance.String() != "10450.75" {
		t.Errorf("balance should survive exactly, got %v", row.Balance)
	}
	if row.LastUpdatedAt == nil {
		t.Error("last updated should be parsed")
	}
	if len(row.RawJSON) == 0 {
		t.Error("raw payload should be retained")
	}
}

func TestNormalizeCustomer_JobFlagMarksProject(t *testing.T) {
	row, err := NormalizeCustomer(json.RawMessage(`{"Id": "9", "Job": true}`), "realm1")
	if err != nil {
		t.Fatalf("NormalizeCustomer: %v", err)
	}
	if !row.IsProject {
		t.Error("Job=true should flag the customer as a project")
	}
}

func TestNormalizeCustomer_MissingId(t *testing.T) {
	if _, err := NormalizeCustomer(json.RawMessage(`{"DisplayName": "No Id"}`), "realm1"); err == nil {
		t.Fatal("record without Id must be rejected")
	}
}

func TestNormalizeCustomer_NotAnObject(t *testing.T) {
	if _, err := NormalizeCustomer(json.RawMessage(`[1,2,3]`), "realm1"); err == nil {
		t.Fatal("non-object record must be rejected")
	}
}

// Mangled fields project to NULL rather than failing the record.
func TestNormalizeCustomer_MalformedFieldsGoNull(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "7",
		"DisplayName": 123,
		"Active": "yes",
		"ParentRef": "not-a-ref",
		"PrimaryEmailAddr": 5,
		"Balance": "not-a-number",
		"MetaData": {"LastUpdatedTime": "bogus"}
	}`)
	row, err := NormalizeCustomer(raw, "realm1")
	if err != nil {
		t.Fatalf("NormalizeCustomer: %v", err)
	}
	if row.DisplayName != nil || row.Active != nil || row.ParentQboId != nil ||
		row.Email != nil || row.Balance != nil || row.LastUpdatedAt != nil {
		t.Errorf("malformed fields must all be nil: %+v", row)
	}
}

func TestNormalizeTransaction_SalesItemLines(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "311",
		"DocNumber": "INV-1042",
		"TxnDate": "2026-02-01",
		"TotalAmt": 1200.00,
		"Balance": 600,
		"CustomerRef": {"value": "42"},
		"MetaData": {"LastUpdatedTime": "2026-02-02T08:00:00-08:00"},
		"Line": [
			{
				"Id": "1",
				"LineNum": 1,
				"Description": "Framing labor",
				"Amount": 800.00,
				"DetailType": "SalesItemLineDetail",
				"SalesItemLineDetail": {
					"ItemRef": {"value": "15"},
					"ClassRef": {"value": "3"},
					"Qty": 16,
					"UnitPrice": 50
				}
			},
			{
				"Amount": 400.00,
				"DetailType": "SubTotalLineDetail"
			}
		]
	}`)
	header, lines, err := NormalizeTransaction(raw, "Invoice", "realm1")
	if err != nil {
		t.Fatalf("NormalizeTransaction: %v", err)
	}
	if header.EntityType != "Invoice" || header.QboId != "311" {
		t.Errorf("header keys: %q/%q", header.EntityType, header.QboId)
	}
	if header.DocNumber == nil || *header.DocNumber != "INV-1042" {
		t.Errorf("doc number: %v", header.DocNumber)
	}
	if header.TxnDate == nil || header.TxnDate.Format("2006-01-02") != "2026-02-01" {
		t.Errorf("txn date: %v", header.TxnDate)
	}
	if header.TotalAmount == nil || header.TotalAmount.String() != "1200" {
		t.Errorf("total: %v", header.TotalAmount)
	}
	if header.CustomerQboId == nil || *header.CustomerQboId != "42" {
		t.Errorf("customer ref: %v", header.CustomerQboId)
	}
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	first := lines[0]
	if first.LineId != "1" {
		t.Errorf("first line id: %q", first.LineId)
	}
	if first.ItemQboId == nil || *first.ItemQboId != "15" {
		t.Errorf("item ref: %v", first.ItemQboId)
	}
	if first.Qty == nil || first.Qty.String() != "16" {
		t.Errorf("qty: %v", first.Qty)
	}
	if first.UnitPrice == nil || first.UnitPrice.String() != "50" {
		t.Errorf("unit price: %v", first.UnitPrice)
	}
	// Second line has no Id: falls back to a position-derived key that
	// cannot collide with the first line's natural id.
	second := lines[1]
	if second.LineId != "pos:1" {
		t.Errorf("positional line id: got %q, want \"pos:1\"", second.LineId)
	}
	if second.LineId == first.LineId {
		t.Errorf("fallback key %q collides with a natural line id", second.LineId)
	}
	// Unknown detail type keeps the line but contributes no references.
	if second.ItemQboId != nil || second.AccountQboId != nil {
		t.Errorf("unknown detail type should leave refs nil: %+v", second)
	}
}

func TestNormalizeTransaction_JournalEntryEntityDispatch(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "88",
		"Line": [
			{
				"Id": "0",
				"Amount": 100,
				"DetailType": "JournalEntryLineDetail",
				"JournalEntryLineDetail": {
					"AccountRef": {"value": "61"},
					"DepartmentRef": {"value": "2"},
					"Entity": {"Type": "Vendor", "EntityRef": {"value": "909"}}
				}
			},
			{
				"Id": "1",
				"Amount": 100,
				"DetailType": "JournalEntryLineDetail",
				"JournalEntryLineDetail": {
					"AccountRef": {"value": "40"},
					"Entity": {"Type": "Customer", "EntityRef": {"value": "42"}}
				}
			}
		]
	}`)
	_, lines, err := NormalizeTransaction(raw, "JournalEntry", "realm1")
	if err != nil {
		t.Fatalf("NormalizeTransaction: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	if lines[0].VendorQboId == nil || *lines[0].VendorQboId != "909" {
		t.Errorf("vendor entity: %v", lines[0].VendorQboId)
	}
	if lines[0].CustomerQboId != nil {
		t.Error("vendor line must not set customer")
	}
	if lines[1].CustomerQboId == nil || *lines[1].CustomerQboId != "42" {
		t.Errorf("customer entity: %v", lines[1].CustomerQboId)
	}
	if lines[1].DepartmentQboId != nil {
		t.Error("second line has no department")
	}
}

func TestNormalizeTransaction_AccountBasedExpense(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "55",
		"VendorRef": {"value": "17"},
		"Line": [{
			"Id": "1",
			"Amount": 75.25,
			"DetailType": "AccountBasedExpenseLineDetail",
			"AccountBasedExpenseLineDetail": {
				"AccountRef": {"value": "80"},
				"CustomerRef": {"value": "42"},
				"ClassRef": {"value": "3"}
			}
		}]
	}`)
	header, lines, err := NormalizeTransaction(raw, "Purchase", "realm1")
	if err != nil {
		t.Fatalf("NormalizeTransaction: %v", err)
	}
	if header.VendorQboId == nil || *header.VendorQboId != "17" {
		t.Errorf("vendor ref: %v", header.VendorQboId)
	}
	line := lines[0]
	if line.AccountQboId == nil || *line.AccountQboId != "80" {
		t.Errorf("account ref: %v", line.AccountQboId)
	}
	if line.CustomerQboId == nil || *line.CustomerQboId != "42" {
		t.Errorf("customer ref: %v", line.CustomerQboId)
	}
	if line.Amount == nil || line.Amount.String() != "75.25" {
		t.Errorf("amount should survive exactly: %v", line.Amount)
	}
}

// Deleting arbitrary keys from a full record must never make
// normalization fail; every field except Id is optional.
func TestNormalize_RemovedKeysNeverFail(t *testing.T) {
	full := map[string]any{
		"Id":          "1",
		"DocNumber":   "X-1",
		"TxnDate":     "2026-01-01",
		"TotalAmt":    10,
		"Balance":     5,
		"CustomerRef": map[string]any{"value": "2"},
		"VendorRef":   map[string]any{"value": "3"},
		"MetaData":    map[string]any{"LastUpdatedTime": "2026-01-02T00:00:00-05:00"},
		"Line": []any{map[string]any{
			"Id": "1", "Amount": 10, "DetailType": "SalesItemLineDetail",
			"SalesItemLineDetail": map[string]any{"ItemRef": map[string]any{"value": "4"}},
		}},
	}
	for key := range full {
		if key == "Id" {
			continue
		}
		clone := map[string]any{}
		for k, v := range full {
			if k != key {
				clone[k] = v
			}
		}
		raw, err := json.Marshal(clone)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if _, _, err := NormalizeTransaction(raw, "Invoice", "realm1"); err != nil {
			t.Errorf("dropping %q must not fail: %v", key, err)
		}
	}
}

// A record mixing id-bearing and id-less lines must produce distinct line
// keys, or re-syncing the record would collapse both rows onto one
// (qbo_transaction_id, line_id) index entry.
func TestNormalizeTransaction_FallbackKeysDisjointFromNaturalIds(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "500",
		"Line": [
			{
				"Id": "1",
				"Amount": 250,
				"DetailType": "SalesItemLineDetail",
				"SalesItemLineDetail": {"ItemRef": {"value": "7"}}
			},
			{
				"Amount": 250,
				"DetailType": "SubTotalLineDetail"
			}
		]
	}`)
	_, lines, err := NormalizeTransaction(raw, "Invoice", "realm1")
	if err != nil {
		t.Fatalf("NormalizeTransaction: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d", len(lines))
	}
	seen := map[string]bool{}
	for _, line := range lines {
		if seen[line.LineId] {
			t.Fatalf("duplicate line key %q within one header", line.LineId)
		}
		seen[line.LineId] = true
	}
	if lines[1].LineId != "pos:1" {
		t.Errorf("id-less line key: got %q, want \"pos:1\"", lines[1].LineId)
	}
}

// A malformed Line element still yields a row, keyed by its position, so
// the output row count always matches the input line count.
func TestNormalizeTransaction_NonObjectLineKeepsPosition(t *testing.T) {
	raw := json.RawMessage(`{
		"Id": "501",
		"Line": [
			{"Id": "1", "Amount": 50, "DetailType": "SalesItemLineDetail"},
			"not a line",
			{"Id": "2", "Amount": 25, "DetailType": "SalesItemLineDetail"}
		]
	}`)
	_, lines, err := NormalizeTransaction(raw, "Invoice", "realm1")
	if err != nil {
		t.Fatalf("NormalizeTransaction: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("want 3 lines, got %d", len(lines))
	}
	if lines[1].LineId != "pos:1" {
		t.Errorf("malformed line key: got %q, want \"pos:1\"", lines[1].LineId)
	}
	if lines[1].Amount != nil || lines[1].DetailType != nil {
		t.Errorf("malformed line should carry only its key: %+v", lines[1])
	}
	if lines[0].LineId != "1" || lines[2].LineId != "2" {
		t.Errorf("surrounding line keys: %q, %q", lines[0].LineId, lines[2].LineId)
	}
}
