package catalog

import (
	"encoding/json"
	"reflect"
	"testing"
)

func mapLookup(m map[string]int) CategoryLookup {
	return LookupFunc(func(name string) (int, bool) {
		id, ok := m[name]
		return id, ok
	})
}

func TestImageMeta(t *testing.T) {
	tests := []struct {
		name     string
		urls     []string
		expected []MetaData
	}{
		{
			name:     "no urls",
			urls:     nil,
			expected: nil,
		},
		{
			name: "single url",
			urls: []string{"u0"},
			expected: []MetaData{
				{Key: "fifu_image_url", Value: "u0"},
				{Key: "fifu_list_url", Value: "u0"},
			},
		},
		{
			name: "three urls",
			urls: []string{"u0", "u1", "u2"},
			expected: []MetaData{
				{Key: "fifu_image_url", Value: "u0"},
				{Key: "fifu_image_url_0", Value: "u1"},
				{Key: "fifu_image_url_1", Value: "u2"},
				{Key: "fifu_list_url", Value: "u0|u1|u2"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ImageMeta(tt.urls)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ImageMeta(%v) = %v, want %v", tt.urls, got, tt.expected)
			}
		})
	}
}

func TestSplitNames(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		sep      string
		expected []string
	}{
		{"empty", "", ",", []string{}},
		{"trims and drops blanks", " A , ,B,", ",", []string{"A", "B"}},
		{"double comma images", "http://a/1.jpg ,, http://a/2.jpg,,", ",,", []string{"http://a/1.jpg", "http://a/2.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitNames(tt.field, tt.sep)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("SplitNames(%q) = %q, want %q", tt.field, got, tt.expected)
			}
		})
	}
}

func TestBuildProduct(t *testing.T) {
	lookup := mapLookup(map[string]int{"Shoes": 10, "Sale": 20})

	rec := Record{
		FieldCategories:   "Shoes, Sale, Missing, Shoes",
		FieldImages:       "http://img/1.jpg,,http://img/2.jpg",
		FieldName:         "Runner",
		FieldSKU:          "RUN-1",
		FieldRegularPrice: "49.90",
		FieldDescription:  "Fast shoe",
		FieldType:         "variable",
	}

	p := BuildProduct(rec, lookup)

	if p.Name != "Runner" {
		t.Errorf("Name = %q, want %q", p.Name, "Runner")
	}
	if p.Status != StatusPublish {
		t.Errorf("Status = %q, want %q", p.Status, StatusPublish)
	}
	if p.Type != "variable" {
		t.Errorf("Type = %q, want %q", p.Type, "variable")
	}
	if p.RegularPrice != "49.90" {
		t.Errorf("RegularPrice = %q, want %q", p.RegularPrice, "49.90")
	}
	if p.Description != "Fast shoe" {
		t.Errorf("Description = %q", p.Description)
	}

	wantCats := []CategoryRef{{ID: 10}, {ID: 20}}
	if !reflect.DeepEqual(p.Categories, wantCats) {
		t.Errorf("Categories = %v, want %v", p.Categories, wantCats)
	}

	if len(p.MetaData) != 3 {
		t.Fatalf("MetaData length = %d, want 3", len(p.MetaData))
	}
	if m, ok := p.Meta(MetaListURL); !ok || m.Value != "http://img/1.jpg|http://img/2.jpg" {
		t.Errorf("list meta = %v", m)
	}
}

func TestBuildProduct_Defaults(t *testing.T) {
	p := BuildProduct(Record{FieldSKU: "SKU-9"}, mapLookup(nil))

	if p.Name != "SKU-9" {
		t.Errorf("Name = %q, want SKU fallback", p.Name)
	}
	if p.Type != TypeSimple {
		t.Errorf("Type = %q, want %q", p.Type, TypeSimple)
	}
	if p.Categories != nil {
		t.Errorf("Categories = %v, want none", p.Categories)
	}
	if p.MetaData != nil {
		t.Errorf("MetaData = %v, want none", p.MetaData)
	}

	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["meta_data"]; ok {
		t.Error("meta_data key should be omitted when there are no images")
	}
}

func TestNewBatchRequest(t *testing.T) {
	t.Run("delete takes ids and forces", func(t *testing.T) {
		req, err := NewBatchRequest(OpDelete, []int{1, 2, 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !req.Force || len(req.Delete) != 3 || req.Op() != OpDelete {
			t.Errorf("request = %+v", req)
		}
	})

	t.Run("delete rejects payload structs", func(t *testing.T) {
		if _, err := NewBatchRequest(OpDelete, []Product{{ID: 1}}); err == nil {
			t.Error("expected error for non-integer delete items")
		}
	})

	t.Run("update encodes products", func(t *testing.T) {
		req, err := NewBatchRequest(OpUpdate, []Product{{ID: 7, Categories: []CategoryRef{{ID: 3}}}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Op() != OpUpdate || req.Len() != 1 {
			t.Errorf("request = %+v", req)
		}
		if string(req.Update[0]) != `{"id":7,"categories":[{"id":3}]}` {
			t.Errorf("payload = %s", req.Update[0])
		}
	})
}
