package catalog

import (
	"encoding/json"
	"testing"
)

func TestCategory_PlainName(t *testing.T) {
	tests := map[string]string{
		"Shoes":              "Shoes",
		"Bags &amp; Belts":   "Bags & Belts",
		"Kids &#039; Corner": "Kids ' Corner",
		"":                   "",
	}
	for in, want := range tests {
		if got := (Category{Name: in}).PlainName(); got != want {
			t.Errorf("PlainName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestItemError_ExistingID(t *testing.T) {
	var resp BatchResponse
	body := `{"create":[
		{"id":0,"error":{"code":"term_exists","message":"A term with the name provided already exists.","data":{"status":400,"resource_id":17}}},
		{"id":0,"error":{"code":"term_exists","message":"exists","data":{"status":400}}},
		{"id":0,"error":{"code":"rest_invalid_param","message":"bad","data":{"status":400,"resource_id":9}}}
	]}`
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	tests := []struct {
		name   string
		id     int
		wantOK bool
	}{
		{"term exists with resource id", 17, true},
		{"term exists without resource id", 0, false},
		{"other error code", 0, false},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := resp.Create[i].Error.ExistingID()
			if id != tt.id || ok != tt.wantOK {
				t.Errorf("ExistingID() = %d, %v, want %d, %v", id, ok, tt.id, tt.wantOK)
			}
		})
	}

	var nilErr *ItemError
	if _, ok := nilErr.ExistingID(); ok {
		t.Error("nil error should not report an existing id")
	}
}
