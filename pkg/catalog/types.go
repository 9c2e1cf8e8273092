// Package catalog defines the store resources the sync engine mutates
// (products and product categories) and the pure transformations applied
// to them before dispatch: payload building and orphan classification.
package catalog

import (
	"encoding/json"
	"fmt"
	"html"
)

// Resource paths under the versioned API namespace.
const (
	ResourceProducts   = "products"
	ResourceCategories = "products/categories"
)

// Product status and visibility values used by the flows.
const (
	StatusPublish    = "publish"
	TypeSimple       = "simple"
	VisibilityHidden = "hidden"
)

// CategoryRef references a category by id inside a product.
type CategoryRef struct {
	ID int `json:"id"`
}

// MetaData is a single key/value pair of product metadata.
// Value is kept as raw JSON on reads because stores return strings,
// numbers and objects interchangeably.
type MetaData struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// StringValue returns the metadata value if it is a string.
func (m MetaData) StringValue() (string, bool) {
	s, ok := m.Value.(string)
	return s, ok
}

// Product is a remote product record and also the mutation payload.
// Zero-valued fields are omitted so that update payloads only carry
// what they change.
type Product struct {
	ID                int           `json:"id,omitempty"`
	Name              string        `json:"name,omitempty"`
	Type              string        `json:"type,omitempty"`
	Status            string        `json:"status,omitempty"`
	RegularPrice      string        `json:"regular_price,omitempty"`
	Description       string        `json:"description,omitempty"`
	CatalogVisibility string        `json:"catalog_visibility,omitempty"`
	Categories        []CategoryRef `json:"categories,omitempty"`
	MetaData          []MetaData    `json:"meta_data,omitempty"`
}

// CategoryIDs returns the product's category ids in order.
func (p Product) CategoryIDs() []int {
	ids := make([]int, 0, len(p.Categories))
	for _, c := range p.Categories {
		ids = append(ids, c.ID)
	}
	return ids
}

// Meta returns the first metadata entry with the given key.
func (p Product) Meta(key string) (MetaData, bool) {
	for _, m := range p.MetaData {
		if m.Key == key {
			return m, true
		}
	}
	return MetaData{}, false
}

// Category is a product category.
type Category struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// PlainName returns the name with HTML entities decoded. The store returns
// names escaped ("A &amp; B") while input files carry them as typed.
func (c Category) PlainName() string {
	return html.UnescapeString(c.Name)
}

// Record is one untyped input row used to build a create payload.
type Record map[string]string

// Get returns the value for key and whether it was present.
func (r Record) Get(key string) (string, bool) {
	v, ok := r[key]
	return v, ok
}

// Op is the kind of mutation a batch carries.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// BatchRequest is the JSON body of a batch endpoint call. Exactly one of
// Create, Update or Delete is expected to be set per request.
type BatchRequest struct {
	Create []json.RawMessage `json:"create,omitempty"`
	Update []json.RawMessage `json:"update,omitempty"`
	Delete []int             `json:"delete,omitempty"`
	Force  bool              `json:"force,omitempty"`
}

// Op reports which operation the request carries.
func (r BatchRequest) Op() Op {
	switch {
	case len(r.Create) > 0:
		return OpCreate
	case len(r.Update) > 0:
		return OpUpdate
	default:
		return OpDelete
	}
}

// Len returns the number of items in the request.
func (r BatchRequest) Len() int {
	return len(r.Create) + len(r.Update) + len(r.Delete)
}

// BatchResponse echoes per-item results for each operation.
type BatchResponse struct {
	Create []BatchItem `json:"create,omitempty"`
	Update []BatchItem `json:"update,omitempty"`
	Delete []BatchItem `json:"delete,omitempty"`
}

// Items returns the per-item results for op.
func (r BatchResponse) Items(op Op) []BatchItem {
	switch op {
	case OpCreate:
		return r.Create
	case OpUpdate:
		return r.Update
	default:
		return r.Delete
	}
}

// BatchItem is one echoed item of a batch response. Failed items carry
// an Error object and usually an id of 0.
type BatchItem struct {
	ID    int        `json:"id"`
	Name  string     `json:"name,omitempty"`
	Error *ItemError `json:"error,omitempty"`
}

// ItemError is the per-item error object returned inside a batch response.
type ItemError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Data    ItemErrorData `json:"data"`
}

// ItemErrorData carries the HTTP status of a failed item and, for
// term_exists, the id of the existing resource.
type ItemErrorData struct {
	Status     int `json:"status"`
	ResourceID int `json:"resource_id,omitempty"`
}

// CodeTermExists is reported when a category with the same name exists.
const CodeTermExists = "term_exists"

// ExistingID returns the id of the resource that already exists under the
// requested name, if the error says so.
func (e *ItemError) ExistingID() (int, bool) {
	if e == nil || e.Code != CodeTermExists || e.Data.ResourceID <= 0 {
		return 0, false
	}
	return e.Data.ResourceID, true
}

func (e *ItemError) Error() string {
	if e.Data.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Data.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBatchRequest encodes items as a batch request for op. Delete
// requests take product ids (ints) and are always forced.
func NewBatchRequest[T any](op Op, items []T) (BatchRequest, error) {
	var req BatchRequest
	if op == OpDelete {
		req.Force = true
		for _, it := range items {
			id, ok := any(it).(int)
			if !ok {
				return BatchRequest{}, &PayloadError{Op: op, Reason: "delete batches take integer ids"}
			}
			req.Delete = append(req.Delete, id)
		}
		return req, nil
	}

	raws := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return BatchRequest{}, &PayloadError{Op: op, Reason: err.Error()}
		}
		raws = append(raws, b)
	}
	if op == OpCreate {
		req.Create = raws
	} else {
		req.Update = raws
	}
	return req, nil
}

// PayloadError is returned when items cannot be encoded into a batch.
type PayloadError struct {
	Op     Op
	Reason string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("encode %s batch: %s", e.Op, e.Reason)
}
