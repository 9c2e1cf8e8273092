package records

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/Sternrassler/catalog-sync/pkg/catalog"
)

const sampleCSV = "Name,SKU,Regular price,Categories,Images\n" +
	"Runner,R-1,49.90,\"Shoes, Sale\",\"https://img/a.jpg,,https://img/b.jpg\"\n" +
	",SKU-2,10,,\n" +
	",,,,\n"

func TestReadCSV(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (blank row dropped)", len(recs))
	}

	first := recs[0]
	if first[catalog.FieldName] != "Runner" {
		t.Errorf("Name = %q", first[catalog.FieldName])
	}
	if first[catalog.FieldCategories] != "Shoes, Sale" {
		t.Errorf("Categories = %q", first[catalog.FieldCategories])
	}
	if got := catalog.ImageURLs(first); len(got) != 2 {
		t.Errorf("ImageURLs = %v, want 2 urls", got)
	}

	p := catalog.BuildProduct(recs[1], catalog.LookupFunc(func(string) (int, bool) { return 0, false }))
	if p.Name != "SKU-2" {
		t.Errorf("name fallback = %q, want SKU-2", p.Name)
	}
}

func TestReadCSV_BOMAndShortRows(t *testing.T) {
	input := "\xEF\xBB\xBF Name ,SKU,Description\nTee,T-1\n"

	recs, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0]["Name"] != "Tee" {
		t.Errorf("BOM or header whitespace not handled: %v", recs[0])
	}
	if _, ok := recs[0].Get(catalog.FieldDescription); ok {
		t.Error("missing column should be absent from the record")
	}
}

func TestReadCSV_Empty(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Errorf("err = %v, want ErrNoHeader", err)
	}
}

func TestReadCSV_Malformed(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("Name\n\"unterminated\n")); err == nil {
		t.Error("expected error for unterminated quote")
	}
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatal(err)
	}

	recs, err := ReadCSVFile(path)
	if err != nil {
		t.Fatalf("ReadCSVFile failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("got %d records, want 2", len(recs))
	}

	if _, err := ReadCSVFile(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestReadIDs(t *testing.T) {
	ids, err := ReadIDs(strings.NewReader("12\n\n 34 \nabc\n-5\n0\n56\n"))
	if err != nil {
		t.Fatalf("ReadIDs failed: %v", err)
	}
	if want := []int{12, 34, 56}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestReadPairs(t *testing.T) {
	input := "10,5,7\n11\n12, x ,8\n\nfoo,1\n"

	pairs, err := ReadPairs(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadPairs failed: %v", err)
	}
	want := []Pair{
		{ProductID: 10, Remove: []int{5, 7}},
		{ProductID: 12, Remove: []int{8}},
	}
	if !reflect.DeepEqual(pairs, want) {
		t.Errorf("pairs = %+v, want %+v", pairs, want)
	}
}
