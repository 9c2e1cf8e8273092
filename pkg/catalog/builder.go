package catalog

import (
	"strconv"
	"strings"
)

// Input record columns.
const (
	FieldCategories   = "Categories"
	FieldImages       = "Images"
	FieldName         = "Name"
	FieldSKU          = "SKU"
	FieldRegularPrice = "Regular price"
	FieldDescription  = "Description"
	FieldType         = "Type"
)

// Separators used inside record fields.
const (
	CategorySeparator = ","
	ImageSeparator    = ",,"
	ImageListJoiner   = "|"
)

// Image metadata keys understood by the store's featured-image plugin.
const (
	MetaImageURL = "fifu_image_url"
	MetaListURL  = "fifu_list_url"
)

// CategoryLookup maps a category name to its id. Implementations must not
// perform network calls; names are resolved before payloads are built.
type CategoryLookup interface {
	Lookup(name string) (int, bool)
}

// LookupFunc adapts a function to CategoryLookup.
type LookupFunc func(name string) (int, bool)

// Lookup implements CategoryLookup.
func (f LookupFunc) Lookup(name string) (int, bool) { return f(name) }

// SplitNames splits a delimiter-joined field into trimmed, non-empty parts.
func SplitNames(field, sep string) []string {
	parts := strings.Split(field, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CategoryNames returns the category names referenced by a record.
func CategoryNames(rec Record) []string {
	return SplitNames(rec[FieldCategories], CategorySeparator)
}

// ImageURLs returns the image URLs of a record in order.
func ImageURLs(rec Record) []string {
	return SplitNames(rec[FieldImages], ImageSeparator)
}

// ImageMeta encodes image URLs as positional metadata: the first URL is
// the primary image, URL i (i >= 1) is keyed fifu_image_url_{i-1}, and a
// trailing list entry carries every URL joined by "|".
func ImageMeta(urls []string) []MetaData {
	if len(urls) == 0 {
		return nil
	}

	meta := make([]MetaData, 0, len(urls)+1)
	for i, u := range urls {
		key := MetaImageURL
		if i > 0 {
			key = MetaImageURL + "_" + strconv.Itoa(i-1)
		}
		meta = append(meta, MetaData{Key: key, Value: u})
	}
	return append(meta, MetaData{Key: MetaListURL, Value: strings.Join(urls, ImageListJoiner)})
}

// BuildProduct maps one input record to a create payload. Category names
// the lookup cannot resolve are dropped from the payload.
func BuildProduct(rec Record, lookup CategoryLookup) Product {
	p := Product{
		Status:       StatusPublish,
		Type:         valueOr(rec, FieldType, TypeSimple),
		RegularPrice: rec[FieldRegularPrice],
		Description:  rec[FieldDescription],
		Name:         productName(rec),
	}

	seen := make(map[int]struct{})
	for _, name := range CategoryNames(rec) {
		id, ok := lookup.Lookup(name)
		if !ok || id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p.Categories = append(p.Categories, CategoryRef{ID: id})
	}

	p.MetaData = ImageMeta(ImageURLs(rec))
	return p
}

// productName falls back to the SKU when the record carries no name.
func productName(rec Record) string {
	if name := rec[FieldName]; name != "" {
		return name
	}
	return rec[FieldSKU]
}

func valueOr(rec Record, key, def string) string {
	if v, ok := rec.Get(key); ok && v != "" {
		return v
	}
	return def
}
