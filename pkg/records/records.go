// Package records reads the inputs of a sync run: product rows from CSV,
// product id lists and product/category detach pairs.
package records

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Sternrassler/catalog-sync/pkg/catalog"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNoHeader is returned for an empty CSV input.
var ErrNoHeader = errors.New("csv input has no header row")

// ReadCSV parses rows keyed by the header row. Header names are trimmed,
// a leading UTF-8 byte order mark is skipped, and fully blank rows are
// dropped. Rows shorter than the header leave the missing columns unset.
func ReadCSV(r io.Reader) ([]catalog.Record, error) {
	br := bufio.NewReader(r)
	if first, err := br.Peek(len(utf8BOM)); err == nil && string(first) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []catalog.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(out)+2, err)
		}
		if blank(row) {
			continue
		}

		rec := make(catalog.Record, len(header))
		for i, col := range header {
			if i < len(row) && col != "" {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string) ([]catalog.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recs, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadIDs reads one product id per line. Blank lines and lines that are
// not a positive integer are skipped.
func ReadIDs(r io.Reader) ([]int, error) {
	var ids []int
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if id, ok := parseID(sc.Text()); ok {
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ids: %w", err)
	}
	return ids, nil
}

// Pair asks for categories to be detached from one product.
type Pair struct {
	ProductID int
	Remove    []int
}

// ReadPairs reads lines of the form "product_id,cat_id1,cat_id2,...".
// Non-numeric fields are ignored. Lines without a product id or without
// any category to remove are skipped.
func ReadPairs(r io.Reader) ([]Pair, error) {
	var pairs []Pair
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var ids []int
		for _, field := range strings.Split(sc.Text(), ",") {
			if id, ok := parseID(field); ok {
				ids = append(ids, id)
			}
		}
		if len(ids) < 2 {
			continue
		}
		pairs = append(pairs, Pair{ProductID: ids[0], Remove: ids[1:]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}
	return pairs, nil
}

func parseID(s string) (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
