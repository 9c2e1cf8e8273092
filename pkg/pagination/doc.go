// Package pagination enumerates paginated catalog collections.
//
// The store does not report a reliable total page count for filtered
// collections, so enumeration walks pages strictly in order starting at
// page 1 with a fixed page size and stops at the first empty page. Page
// N+1 is never requested before page N has returned.
//
// Example usage:
//
//	enum := pagination.NewEnumerator(apiClient, pagination.DefaultConfig())
//	products, err := pagination.EnumerateAs[catalog.Product](ctx, enum,
//		catalog.ResourceProducts, url.Values{"category": {"15"}})
//
// The enumerator:
//   - Requests pages 1, 2, 3, ... until one comes back empty
//   - Aborts on the first page error (partial catalog knowledge is unsafe)
//   - Logs progress every ProgressEvery pages
//
// Results are best-effort when another actor mutates the collection during
// enumeration: items can shift between pages and be skipped or repeated.
package pagination
