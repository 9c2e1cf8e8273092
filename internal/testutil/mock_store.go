// Package testutil provides testing utilities for the catalog sync engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/catalog"
)

// Mock credentials accepted by MockStore.
const (
	TestConsumerKey    = "ck_test"
	TestConsumerSecret = "cs_test"
)

// MaxBatchItems is the batch endpoint item limit enforced by MockStore.
const MaxBatchItems = 100

// BatchCall records one call to a batch endpoint.
type BatchCall struct {
	Resource string
	Op       catalog.Op
	Size     int
}

// MockStore is an in-memory catalog API served over httptest.
type MockStore struct {
	server *httptest.Server
	mu     sync.Mutex

	products   map[int]catalog.Product
	categories map[int]catalog.Category
	nextID     int

	// Tracking
	RequestCount int
	PageRequests int
	BatchCalls   []BatchCall
	inFlight     int
	MaxInFlight  int

	// Failure injection. FailBatch is consulted for every batch call with
	// its 1-based sequence number per resource; a non-zero return becomes
	// the response status.
	FailBatch        func(resource string, op catalog.Op, seq int) int
	FailPage         func(resource string, page int) int
	RejectCategories map[string]bool
	BatchDelay       time.Duration
	batchSeq         map[string]int
}

// NewMockStore creates and starts a mock store.
func NewMockStore() *MockStore {
	m := &MockStore{
		products:         make(map[int]catalog.Product),
		categories:       make(map[int]catalog.Category),
		nextID:           1,
		RejectCategories: make(map[string]bool),
		batchSeq:         make(map[string]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the store base URL (without namespace).
func (m *MockStore) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStore) Close() {
	m.server.Close()
}

// AddCategory seeds a category and returns its id.
func (m *MockStore) AddCategory(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.allocID()
	m.categories[id] = catalog.Category{ID: id, Name: html.EscapeString(name)}
	return id
}

// AddProduct seeds a product and returns its id.
func (m *MockStore) AddProduct(p catalog.Product) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.allocID()
	m.products[p.ID] = p
	return p.ID
}

// Product returns a stored product.
func (m *MockStore) Product(id int) (catalog.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	return p, ok
}

// Products returns all stored products ordered by id.
func (m *MockStore) Products() []catalog.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedProducts(0)
}

// Categories returns all stored categories ordered by id.
func (m *MockStore) Categories() []catalog.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedCategories()
}

// CategoryID returns the id of the category with the given unescaped name.
func (m *MockStore) CategoryID(name string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.categoryID(name)
}

// Calls returns the recorded batch calls for resource and op.
func (m *MockStore) Calls(resource string, op catalog.Op) []BatchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BatchCall
	for _, c := range m.BatchCalls {
		if c.Resource == resource && c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// GetMaxInFlight returns the highest number of concurrent batch calls seen.
func (m *MockStore) GetMaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MaxInFlight
}

// GetPageRequests returns the number of list requests served.
func (m *MockStore) GetPageRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PageRequests
}

func (m *MockStore) allocID() int {
	id := m.nextID
	m.nextID++
	return id
}

func (m *MockStore) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.RequestCount++
	m.mu.Unlock()

	q := r.URL.Query()
	if q.Get("consumer_key") != TestConsumerKey || q.Get("consumer_secret") != TestConsumerSecret {
		writeError(w, http.StatusUnauthorized, "woocommerce_rest_cannot_view", "Sorry, you cannot list resources.")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/wp-json/wc/v3/")
	switch {
	case path == "products/categories" && r.Method == http.MethodGet:
		m.listCategories(w, r)
	case path == "products/categories/batch" && r.Method == http.MethodPost:
		m.batch(w, r, catalog.ResourceCategories)
	case strings.HasPrefix(path, "products/categories/") && r.Method == http.MethodDelete:
		m.deleteCategory(w, strings.TrimPrefix(path, "products/categories/"))
	case path == "products" && r.Method == http.MethodGet:
		m.listProducts(w, r)
	case path == "products/batch" && r.Method == http.MethodPost:
		m.batch(w, r, catalog.ResourceProducts)
	case strings.HasPrefix(path, "products/") && r.Method == http.MethodGet:
		m.getProduct(w, strings.TrimPrefix(path, "products/"))
	default:
		writeError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
	}
}

func (m *MockStore) pageParams(w http.ResponseWriter, r *http.Request, resource string) (page, perPage int, ok bool) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		writeError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): per_page")
		return 0, 0, false
	}

	m.mu.Lock()
	m.PageRequests++
	fail := m.FailPage
	m.mu.Unlock()
	if fail != nil {
		if status := fail(resource, page); status != 0 {
			writeError(w, status, "mock_page_failure", "injected failure")
			return 0, 0, false
		}
	}
	return page, perPage, true
}

func (m *MockStore) listCategories(w http.ResponseWriter, r *http.Request) {
	page, perPage, ok := m.pageParams(w, r, catalog.ResourceCategories)
	if !ok {
		return
	}
	m.mu.Lock()
	all := m.sortedCategories()
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, pageOf(all, page, perPage))
}

func (m *MockStore) listProducts(w http.ResponseWriter, r *http.Request) {
	page, perPage, ok := m.pageParams(w, r, catalog.ResourceProducts)
	if !ok {
		return
	}
	category, _ := strconv.Atoi(r.URL.Query().Get("category"))
	m.mu.Lock()
	all := m.sortedProducts(category)
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, pageOf(all, page, perPage))
}

func (m *MockStore) getProduct(w http.ResponseWriter, idStr string) {
	id, err := strconv.Atoi(idStr)
	if err != nil {
		writeError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
		return
	}
	m.mu.Lock()
	p, ok := m.products[id]
	m.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "woocommerce_rest_product_invalid_id", "Invalid ID.")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (m *MockStore) deleteCategory(w http.ResponseWriter, idStr string) {
	id, _ := strconv.Atoi(idStr)
	m.mu.Lock()
	c, ok := m.categories[id]
	if ok {
		delete(m.categories, id)
		for pid, p := range m.products {
			p.Categories = withoutRef(p.Categories, id)
			m.products[pid] = p
		}
	}
	m.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "woocommerce_rest_term_invalid", "Resource does not exist.")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (m *MockStore) batch(w http.ResponseWriter, r *http.Request, resource string) {
	var req catalog.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "rest_invalid_json", err.Error())
		return
	}
	if req.Len() > MaxBatchItems {
		writeError(w, http.StatusRequestEntityTooLarge, "rest_batch_too_large",
			fmt.Sprintf("Unable to accept more than %d items for this request.", MaxBatchItems))
		return
	}
	op := req.Op()

	m.mu.Lock()
	m.batchSeq[resource]++
	seq := m.batchSeq[resource]
	m.BatchCalls = append(m.BatchCalls, BatchCall{Resource: resource, Op: op, Size: req.Len()})
	m.inFlight++
	if m.inFlight > m.MaxInFlight {
		m.MaxInFlight = m.inFlight
	}
	fail := m.FailBatch
	delay := m.BatchDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail != nil {
		if status := fail(resource, op, seq); status != 0 {
			writeError(w, status, "mock_batch_failure", "injected failure")
			return
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var resp catalog.BatchResponse
	switch {
	case resource == catalog.ResourceCategories && op == catalog.OpCreate:
		resp.Create = m.createCategories(req.Create)
	case resource == catalog.ResourceProducts && op == catalog.OpCreate:
		resp.Create = m.createProducts(req.Create)
	case resource == catalog.ResourceProducts && op == catalog.OpUpdate:
		resp.Update = m.updateProducts(req.Update)
	case resource == catalog.ResourceProducts && op == catalog.OpDelete:
		resp.Delete = m.deleteProducts(req.Delete)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *MockStore) createCategories(raws []json.RawMessage) []catalog.BatchItem {
	items := make([]catalog.BatchItem, 0, len(raws))
	for _, raw := range raws {
		var c catalog.Category
		_ = json.Unmarshal(raw, &c)
		if m.RejectCategories[c.Name] {
			items = append(items, itemError(catalog.CodeTermExists, "A term with the name provided already exists.", 400))
			continue
		}
		if id, ok := m.categoryID(c.Name); ok {
			item := itemError(catalog.CodeTermExists, "A term with the name provided already exists.", 400)
			item.Error.Data.ResourceID = id
			items = append(items, item)
			continue
		}
		c.Name = html.EscapeString(c.Name)
		c.ID = m.allocID()
		m.categories[c.ID] = c
		items = append(items, catalog.BatchItem{ID: c.ID, Name: c.Name})
	}
	return items
}

func (m *MockStore) createProducts(raws []json.RawMessage) []catalog.BatchItem {
	items := make([]catalog.BatchItem, 0, len(raws))
	for _, raw := range raws {
		var p catalog.Product
		_ = json.Unmarshal(raw, &p)
		if p.Name == "" {
			items = append(items, itemError("woocommerce_rest_missing_name", "Product name is required.", 400))
			continue
		}
		p.ID = m.allocID()
		m.products[p.ID] = p
		items = append(items, catalog.BatchItem{ID: p.ID, Name: p.Name})
	}
	return items
}

func (m *MockStore) updateProducts(raws []json.RawMessage) []catalog.BatchItem {
	items := make([]catalog.BatchItem, 0, len(raws))
	for _, raw := range raws {
		var patch catalog.Product
		_ = json.Unmarshal(raw, &patch)
		p, ok := m.products[patch.ID]
		if !ok {
			items = append(items, itemError("woocommerce_rest_product_invalid_id", "Invalid ID.", 400))
			continue
		}
		if patch.Categories != nil {
			p.Categories = patch.Categories
		}
		if patch.CatalogVisibility != "" {
			p.CatalogVisibility = patch.CatalogVisibility
		}
		for _, md := range patch.MetaData {
			p.MetaData = upsertMeta(p.MetaData, md)
		}
		m.products[p.ID] = p
		items = append(items, catalog.BatchItem{ID: p.ID, Name: p.Name})
	}
	return items
}

func (m *MockStore) deleteProducts(ids []int) []catalog.BatchItem {
	items := make([]catalog.BatchItem, 0, len(ids))
	for _, id := range ids {
		p, ok := m.products[id]
		if !ok {
			items = append(items, itemError("woocommerce_rest_product_invalid_id", "Invalid ID.", 404))
			continue
		}
		delete(m.products, id)
		items = append(items, catalog.BatchItem{ID: p.ID, Name: p.Name})
	}
	return items
}

// categoryID looks up a category by name the way the store does: stored
// names are HTML-escaped.
func (m *MockStore) categoryID(name string) (int, bool) {
	escaped := html.EscapeString(name)
	for _, c := range m.categories {
		if c.Name == escaped {
			return c.ID, true
		}
	}
	return 0, false
}

func (m *MockStore) sortedProducts(category int) []catalog.Product {
	out := make([]catalog.Product, 0, len(m.products))
	for _, p := range m.products {
		if category != 0 && !hasRef(p.Categories, category) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockStore) sortedCategories() []catalog.Category {
	out := make([]catalog.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func pageOf[T any](all []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if start >= len(all) {
		return []T{}
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func hasRef(refs []catalog.CategoryRef, id int) bool {
	for _, r := range refs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func withoutRef(refs []catalog.CategoryRef, id int) []catalog.CategoryRef {
	out := make([]catalog.CategoryRef, 0, len(refs))
	for _, r := range refs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func upsertMeta(meta []catalog.MetaData, md catalog.MetaData) []catalog.MetaData {
	for i := range meta {
		if meta[i].Key == md.Key {
			meta[i].Value = md.Value
			return meta
		}
	}
	return append(meta, md)
}

func itemError(code, message string, status int) catalog.BatchItem {
	e := &catalog.ItemError{Code: code, Message: message}
	e.Data.Status = status
	return catalog.BatchItem{Error: e}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
		"data":    map[string]int{"status": status},
	})
}
