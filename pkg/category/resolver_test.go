package category

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Sternrassler/catalog-sync/internal/testutil"
	"github.com/Sternrassler/catalog-sync/pkg/cache"
	"github.com/Sternrassler/catalog-sync/pkg/catalog"
	"github.com/Sternrassler/catalog-sync/pkg/client"
	"github.com/Sternrassler/catalog-sync/pkg/pagination"
)

func newTestResolver(t *testing.T, store *testutil.MockStore, opts ...Option) *Resolver {
	t.Helper()
	c, err := client.New(client.DefaultConfig(store.URL(), testutil.TestConsumerKey, testutil.TestConsumerSecret))
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	return New(c, pagination.NewEnumerator(c, pagination.DefaultConfig()), opts...)
}

func TestResolver_Prefetch(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()

	for i := 0; i < 150; i++ {
		store.AddCategory(fmt.Sprintf("cat-%03d", i))
	}
	shoes := store.AddCategory("Shoes")

	r := newTestResolver(t, store)
	if err := r.Prefetch(context.Background()); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}

	if r.Len() != 151 {
		t.Errorf("Len() = %d, want 151", r.Len())
	}
	if id, ok := r.Lookup("Shoes"); !ok || id != shoes {
		t.Errorf("Lookup(Shoes) = %d, %v; want %d", id, ok, shoes)
	}
}

func TestResolver_PrefetchOverwrites(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()
	store.AddCategory("Shoes")

	r := newTestResolver(t, store)
	r.ids["Stale"] = 999

	if err := r.Prefetch(context.Background()); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}
	if _, ok := r.Lookup("Stale"); ok {
		t.Error("Prefetch should drop entries the server does not have")
	}
}

func TestResolver_PrefetchPageErrorIsFatal(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()
	store.FailPage = func(resource string, page int) int { return http.StatusBadGateway }

	r := newTestResolver(t, store)
	err := r.Prefetch(context.Background())
	if err == nil {
		t.Fatal("Prefetch should fail when a page fails")
	}
	if client.StatusCode(err) != http.StatusBadGateway {
		t.Errorf("StatusCode(err) = %d, want 502", client.StatusCode(err))
	}
}

func TestResolver_ResolveIsIdempotent(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()

	r := newTestResolver(t, store)
	ctx := context.Background()
	if err := r.Prefetch(ctx); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}

	first, err := r.Resolve(ctx, []string{"A", "B", "A"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	calls := store.Calls(catalog.ResourceCategories, catalog.OpCreate)
	if len(calls) != 1 || calls[0].Size != 2 {
		t.Fatalf("create calls = %+v, want one call with 2 names", calls)
	}

	second, err := r.Resolve(ctx, []string{"A", "B"})
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if n := len(store.Calls(catalog.ResourceCategories, catalog.OpCreate)); n != 1 {
		t.Errorf("second Resolve issued %d more create calls", n-1)
	}

	for _, name := range []string{"A", "B"} {
		want, _ := store.CategoryID(name)
		if first[name] != want || second[name] != want {
			t.Errorf("%s: first=%d second=%d, want %d", name, first[name], second[name], want)
		}
	}
}

func TestResolver_KnownNamesSkipCreate(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()
	shoes := store.AddCategory("Shoes")

	r := newTestResolver(t, store)
	ctx := context.Background()
	if err := r.Prefetch(ctx); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}

	got, err := r.Resolve(ctx, []string{"Shoes"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got["Shoes"] != shoes {
		t.Errorf("Shoes = %d, want %d", got["Shoes"], shoes)
	}
	if n := len(store.Calls(catalog.ResourceCategories, catalog.OpCreate)); n != 0 {
		t.Errorf("create calls = %d, want 0", n)
	}
}

func TestResolver_RejectedNamesStayUnresolved(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()
	store.RejectCategories["Bad"] = true

	r := newTestResolver(t, store)
	ctx := context.Background()

	got, err := r.Resolve(ctx, []string{"Good", "Bad"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := got["Bad"]; ok {
		t.Error("rejected name should be absent from the result")
	}
	if _, ok := got["Good"]; !ok {
		t.Error("accepted name should be resolved")
	}

	unresolved := r.Unresolved()
	if len(unresolved) != 1 || unresolved[0].Name != "Bad" {
		t.Fatalf("Unresolved() = %v, want [Bad]", unresolved)
	}
	var itemErr *catalog.ItemError
	if !errors.As(unresolved[0], &itemErr) || itemErr.Code != "term_exists" {
		t.Errorf("unresolved error = %v, want term_exists item error", unresolved[0].Err)
	}

	// a failed name is not retried in the same run
	if _, err := r.Resolve(ctx, []string{"Bad"}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if n := len(store.Calls(catalog.ResourceCategories, catalog.OpCreate)); n != 1 {
		t.Errorf("create calls = %d, want 1", n)
	}
}

func TestResolver_EscapedNamesMatchPrefetch(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()
	id := store.AddCategory("Bags & Belts")

	r := newTestResolver(t, store)
	ctx := context.Background()
	if err := r.Prefetch(ctx); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}

	got, err := r.Resolve(ctx, []string{"Bags & Belts"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got["Bags & Belts"] != id {
		t.Errorf("Bags & Belts = %d, want %d", got["Bags & Belts"], id)
	}
	if n := len(store.Calls(catalog.ResourceCategories, catalog.OpCreate)); n != 0 {
		t.Errorf("create calls = %d, want 0", n)
	}
}

func TestResolver_ExistingTermIsAdopted(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()

	r := newTestResolver(t, store)
	ctx := context.Background()
	if err := r.Prefetch(ctx); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}

	// created by someone else after the prefetch
	late := store.AddCategory("Late")

	got, err := r.Resolve(ctx, []string{"Late", "New"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got["Late"] != late {
		t.Errorf("Late = %d, want existing id %d", got["Late"], late)
	}
	if _, ok := got["New"]; !ok {
		t.Error("New should be created")
	}
	if u := r.Unresolved(); len(u) != 0 {
		t.Errorf("Unresolved() = %v, want none", u)
	}
	if id, ok := r.Lookup("Late"); !ok || id != late {
		t.Errorf("Lookup(Late) = %d, %v", id, ok)
	}
}

func TestResolver_CreateCallFailureIsFatal(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()
	store.FailBatch = func(resource string, op catalog.Op, seq int) int { return http.StatusInternalServerError }

	r := newTestResolver(t, store)
	if _, err := r.Resolve(context.Background(), []string{"A"}); err == nil {
		t.Fatal("Resolve should fail when the create call fails")
	}
}

func TestResolver_ResolveRecords(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()

	r := newTestResolver(t, store)
	records := []catalog.Record{
		{catalog.FieldCategories: "A, B"},
		{catalog.FieldCategories: "A"},
		{catalog.FieldCategories: ""},
		{catalog.FieldCategories: "C,,B"},
	}
	if err := r.ResolveRecords(context.Background(), records); err != nil {
		t.Fatalf("ResolveRecords failed: %v", err)
	}

	calls := store.Calls(catalog.ResourceCategories, catalog.OpCreate)
	if len(calls) != 1 || calls[0].Size != 3 {
		t.Errorf("create calls = %+v, want one call with 3 names", calls)
	}
	for _, name := range []string{"A", "B", "C"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("%s not resolved", name)
		}
	}
}

func TestResolver_LargeMissingSetIsSplit(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()

	names := make([]string, 130)
	for i := range names {
		names[i] = fmt.Sprintf("n%d", i)
	}

	r := newTestResolver(t, store)
	got, err := r.Resolve(context.Background(), names)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(got) != 130 {
		t.Errorf("resolved %d names, want 130", len(got))
	}
	if n := len(store.Calls(catalog.ResourceCategories, catalog.OpCreate)); n != 2 {
		t.Errorf("create calls = %d, want 2", n)
	}
}

func TestResolver_MirrorsWrites(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()
	store.AddCategory("Shoes")

	mirror := cache.NewMemory()
	key := cache.SnapshotKey(store.URL())
	r := newTestResolver(t, store, WithMirror(mirror, key))
	ctx := context.Background()

	if err := r.Prefetch(ctx); err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}
	if _, err := r.Resolve(ctx, []string{"Hats"}); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	snap, err := mirror.Load(ctx, key)
	if err != nil {
		t.Fatalf("mirror Load failed: %v", err)
	}
	hats, _ := store.CategoryID("Hats")
	if snap.Categories["Hats"] != hats {
		t.Errorf("mirrored Hats = %d, want %d", snap.Categories["Hats"], hats)
	}
	if _, ok := snap.Categories["Shoes"]; !ok {
		t.Error("prefetched Shoes missing from mirror")
	}
}

func TestResolver_LookupIsPure(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()

	r := newTestResolver(t, store)
	before := store.RequestCount

	if _, ok := r.Lookup("Unknown"); ok {
		t.Error("Lookup of unknown name should miss")
	}
	product := catalog.BuildProduct(catalog.Record{catalog.FieldName: "x", catalog.FieldCategories: "Unknown"}, r)
	if len(product.Categories) != 0 {
		t.Errorf("Categories = %v, want none", product.Categories)
	}
	if store.RequestCount != before {
		t.Error("Lookup and BuildProduct must not call the API")
	}
}
