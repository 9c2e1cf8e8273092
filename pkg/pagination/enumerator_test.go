package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"testing"

	"github.com/Sternrassler/catalog-sync/internal/testutil"
	"github.com/Sternrassler/catalog-sync/pkg/catalog"
	"github.com/Sternrassler/catalog-sync/pkg/client"
)

// sliceFetcher serves a fixed collection of integers as pages.
type sliceFetcher struct {
	items   []int
	pages   []int
	failAt  int
	failErr error
}

func (f *sliceFetcher) FetchPage(ctx context.Context, resource string, filters url.Values, page, perPage int) ([]json.RawMessage, error) {
	f.pages = append(f.pages, page)
	if f.failAt != 0 && page == f.failAt {
		return nil, f.failErr
	}

	start := (page - 1) * perPage
	if start >= len(f.items) {
		return []json.RawMessage{}, nil
	}
	end := start + perPage
	if end > len(f.items) {
		end = len(f.items)
	}

	out := make([]json.RawMessage, 0, end-start)
	for _, v := range f.items[start:end] {
		out = append(out, json.RawMessage(strconv.Itoa(v)))
	}
	return out, nil
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestEnumerate_Completeness(t *testing.T) {
	sizes := []int{0, 1, 2, 99, 100, 101, 250}
	pageSizes := []int{1, 3, 100}

	for _, n := range sizes {
		for _, p := range pageSizes {
			t.Run(fmt.Sprintf("n=%d/p=%d", n, p), func(t *testing.T) {
				fetcher := &sliceFetcher{items: seq(n)}
				enum := NewEnumerator(fetcher, Config{PageSize: p})

				got, err := EnumerateAs[int](context.Background(), enum, "things", nil)
				if err != nil {
					t.Fatalf("Enumerate failed: %v", err)
				}
				if len(got) != n {
					t.Fatalf("got %d items, want %d", len(got), n)
				}
				for i, v := range got {
					if v != i+1 {
						t.Fatalf("item %d = %d, want %d (order or duplication broken)", i, v, i+1)
					}
				}

				// one request per full or partial page plus the terminating empty page
				wantPages := (n+p-1)/p + 1
				if len(fetcher.pages) != wantPages {
					t.Errorf("requested %d pages, want %d", len(fetcher.pages), wantPages)
				}
				for i, page := range fetcher.pages {
					if page != i+1 {
						t.Errorf("request %d asked for page %d", i, page)
					}
				}
			})
		}
	}
}

func TestEnumerate_AbortsOnPageError(t *testing.T) {
	boom := errors.New("boom")
	fetcher := &sliceFetcher{items: seq(500), failAt: 3, failErr: boom}
	enum := NewEnumerator(fetcher, DefaultConfig())

	items, err := enum.Enumerate(context.Background(), "things", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if items != nil {
		t.Errorf("partial items returned: %d", len(items))
	}

	var pageErr *PageError
	if !errors.As(err, &pageErr) || pageErr.Page != 3 {
		t.Errorf("error = %v, want PageError for page 3", err)
	}
	if !errors.Is(err, boom) {
		t.Error("page error should wrap the fetch error")
	}
	if len(fetcher.pages) != 3 {
		t.Errorf("requested %d pages after failure, want 3", len(fetcher.pages))
	}
}

func TestEnumerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &sliceFetcher{items: seq(5)}
	_, err := NewEnumerator(fetcher, DefaultConfig()).Enumerate(ctx, "things", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(fetcher.pages) != 0 {
		t.Error("no page should be requested with a cancelled context")
	}
}

func TestEnumerate_AgainstStore(t *testing.T) {
	store := testutil.NewMockStore()
	defer store.Close()

	shoes := store.AddCategory("Shoes")
	other := store.AddCategory("Other")
	for i := 0; i < 230; i++ {
		cat := shoes
		if i%2 == 1 {
			cat = other
		}
		store.AddProduct(catalog.Product{Name: fmt.Sprintf("p%d", i), Categories: []catalog.CategoryRef{{ID: cat}}})
	}

	c, err := client.New(client.DefaultConfig(store.URL(), testutil.TestConsumerKey, testutil.TestConsumerSecret))
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}

	enum := NewEnumerator(c, DefaultConfig())
	filters := url.Values{"category": {strconv.Itoa(shoes)}}
	products, err := EnumerateAs[catalog.Product](context.Background(), enum, catalog.ResourceProducts, filters)
	if err != nil {
		t.Fatalf("Enumerate failed: %v", err)
	}
	if len(products) != 115 {
		t.Errorf("products = %d, want 115", len(products))
	}
	if store.GetPageRequests() != 3 {
		t.Errorf("page requests = %d, want 3", store.GetPageRequests())
	}
}
