package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/catalog-sync/pkg/catalog"
	"github.com/Sternrassler/catalog-sync/pkg/client"
	"github.com/Sternrassler/catalog-sync/pkg/records"
)

// Flow names reported in summaries.
const (
	FlowFeed   = "feed"
	FlowUnlink = "unlink"
	FlowPurge  = "purge"
	FlowDelete = "delete"
	FlowDetach = "detach"
	FlowHide   = "hide"
)

// Feed creates one product per record. Categories are prefetched and every
// missing name across all records is created once before any payload is
// built. Names the store refuses are left off the payloads and reported in
// the summary.
func (e *Engine) Feed(ctx context.Context, recs []catalog.Record) (*Summary, error) {
	sum := e.start(FlowFeed)

	if err := e.resolver.Prefetch(ctx); err != nil {
		return nil, err
	}
	if err := e.resolver.ResolveRecords(ctx, recs); err != nil {
		return nil, err
	}
	sum.Unresolved = e.resolver.Unresolved()

	products := make([]catalog.Product, len(recs))
	for i, rec := range recs {
		products[i] = catalog.BuildProduct(rec, e.resolver)
	}

	dispatch(ctx, e, sum, catalog.ResourceProducts, catalog.OpCreate, products)
	return e.finish(sum), nil
}

// UnlinkCategory removes category id from every product linked to it.
// Products left without a category are deleted. Updates are dispatched
// before deletes, and the category itself is deleted only when every batch
// succeeded.
func (e *Engine) UnlinkCategory(ctx context.Context, id int) (*Summary, error) {
	sum := e.start(FlowUnlink)
	sum.CategoryID = id

	products, err := e.productsIn(ctx, id)
	if err != nil {
		return nil, err
	}

	decisions := make([]catalog.Decision, len(products))
	for i, p := range products {
		decisions[i] = catalog.Classify(p, id)
	}
	updates, deletes := catalog.Partition(decisions)

	dispatch(ctx, e, sum, catalog.ResourceProducts, catalog.OpUpdate, updates)
	dispatch(ctx, e, sum, catalog.ResourceProducts, catalog.OpDelete, deletes)

	err = e.deleteCategory(ctx, sum)
	return e.finish(sum), err
}

// PurgeCategory deletes every product linked to category id and then the
// category, unless a batch failed.
func (e *Engine) PurgeCategory(ctx context.Context, id int) (*Summary, error) {
	sum := e.start(FlowPurge)
	sum.CategoryID = id

	products, err := e.productsIn(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := make([]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	dispatch(ctx, e, sum, catalog.ResourceProducts, catalog.OpDelete, ids)

	err = e.deleteCategory(ctx, sum)
	return e.finish(sum), err
}

// DeleteByID deletes the given products.
func (e *Engine) DeleteByID(ctx context.Context, ids []int) (*Summary, error) {
	sum := e.start(FlowDelete)
	dispatch(ctx, e, sum, catalog.ResourceProducts, catalog.OpDelete, ids)
	return e.finish(sum), nil
}

// DetachPairs unlinks categories from individual products. Each product is
// fetched to learn its current categories; products that cannot be
// fetched are skipped and reported.
func (e *Engine) DetachPairs(ctx context.Context, pairs []records.Pair) (*Summary, error) {
	sum := e.start(FlowDetach)

	decisions := make([]catalog.Decision, 0, len(pairs))
	for _, pair := range pairs {
		p, err := client.GetOneOf[catalog.Product](ctx, e.client, catalog.ResourceProducts, pair.ProductID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			e.logger.Warn().Err(err).Int("product_id", pair.ProductID).Msg("Skipping product")
			sum.Skipped = append(sum.Skipped, Skip{ProductID: pair.ProductID, Reason: err.Error()})
			continue
		}
		decisions = append(decisions, catalog.Detach(p, pair.Remove))
	}
	updates, deletes := catalog.Partition(decisions)

	dispatch(ctx, e, sum, catalog.ResourceProducts, catalog.OpUpdate, updates)
	dispatch(ctx, e, sum, catalog.ResourceProducts, catalog.OpDelete, deletes)
	return e.finish(sum), nil
}

// HideCategory hides every product of category id that is not hidden yet.
func (e *Engine) HideCategory(ctx context.Context, id int) (*Summary, error) {
	sum := e.start(FlowHide)
	sum.CategoryID = id

	products, err := e.productsIn(ctx, id)
	if err != nil {
		return nil, err
	}

	var payloads []catalog.Product
	for _, p := range products {
		if p.IsHidden() {
			sum.Skipped = append(sum.Skipped, Skip{ProductID: p.ID, Reason: "already hidden"})
			continue
		}
		payloads = append(payloads, catalog.HidePayload(p.ID))
	}

	dispatch(ctx, e, sum, catalog.ResourceProducts, catalog.OpUpdate, payloads)
	return e.finish(sum), nil
}

// errCategoryKept reports that a category was not deleted because some of
// its products could not be processed.
var errCategoryKept = errors.New("category kept because some batches failed")

// deleteCategory force-deletes sum.CategoryID when every batch succeeded.
func (e *Engine) deleteCategory(ctx context.Context, sum *Summary) error {
	if !sum.OK() {
		e.logger.Warn().
			Int("category_id", sum.CategoryID).
			Int("failed", sum.Failed()).
			Int("unknown", sum.Unknown()).
			Msg("Keeping category, not all products were processed")
		return fmt.Errorf("category %d: %w", sum.CategoryID, errCategoryKept)
	}

	if err := e.client.Delete(ctx, catalog.ResourceCategories, sum.CategoryID, true); err != nil {
		return fmt.Errorf("delete category %d: %w", sum.CategoryID, err)
	}
	sum.CategoryDeleted = true
	e.logger.Info().Int("category_id", sum.CategoryID).Msg("Category deleted")
	return nil
}

// IsCategoryKept reports whether err says the category was left in place
// because of failed batches.
func IsCategoryKept(err error) bool {
	return errors.Is(err, errCategoryKept)
}
