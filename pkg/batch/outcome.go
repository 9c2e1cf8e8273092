package batch

import (
	"fmt"
	"sort"
	"time"

	"github.com/Sternrassler/catalog-sync/pkg/catalog"
)

// ItemResult is the server's verdict on one item of a batch.
type ItemResult struct {
	ID   int
	Name string
	Err  *catalog.ItemError
}

// OK reports whether the item succeeded.
func (r ItemResult) OK() bool { return r.Err == nil }

// Outcome is the result of dispatching one batch. When Err is set the call
// failed as a whole, Items is empty and every submitted item is in an
// unknown state.
type Outcome struct {
	Index     int
	Op        catalog.Op
	Submitted int
	Items     []ItemResult
	Err       error
	Duration  time.Duration
}

// Succeeded returns the number of items the server reported as done.
func (o Outcome) Succeeded() int {
	n := 0
	for _, it := range o.Items {
		if it.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of items the server reported as failed.
func (o Outcome) Failed() int {
	n := 0
	for _, it := range o.Items {
		if !it.OK() {
			n++
		}
	}
	return n
}

// Unknown returns the number of submitted items without a reported result.
func (o Outcome) Unknown() int {
	if o.Err != nil {
		return o.Submitted
	}
	if n := o.Submitted - len(o.Items); n > 0 {
		return n
	}
	return 0
}

// OK reports whether the batch call succeeded and every item succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Failed() == 0 && o.Unknown() == 0
}

// Failure returns the batch-level error, a *PartialBatchFailure when some
// items failed inside a successful call, or nil.
func (o Outcome) Failure() error {
	if o.Err != nil {
		return o.Err
	}
	if o.Failed() == 0 && o.Unknown() == 0 {
		return nil
	}
	failed := make([]ItemResult, 0, o.Failed())
	for _, it := range o.Items {
		if !it.OK() {
			failed = append(failed, it)
		}
	}
	return &PartialBatchFailure{Index: o.Index, Op: o.Op, Failed: failed, Missing: o.Unknown()}
}

// PartialBatchFailure reports per-item errors inside a batch call that
// succeeded at the transport level.
type PartialBatchFailure struct {
	Index   int
	Op      catalog.Op
	Failed  []ItemResult
	Missing int
}

func (e *PartialBatchFailure) Error() string {
	msg := fmt.Sprintf("%s batch #%d: %d item(s) failed", e.Op, e.Index, len(e.Failed))
	if e.Missing > 0 {
		msg += fmt.Sprintf(", %d without result", e.Missing)
	}
	if len(e.Failed) > 0 {
		msg += ": " + e.Failed[0].Err.Error()
	}
	return msg
}

// SortByIndex orders outcomes by batch index, restoring submission order.
func SortByIndex(outcomes []Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Index < outcomes[j].Index
	})
}

// FromResponse converts a batch response into per-item results for op.
func FromResponse(resp *catalog.BatchResponse, op catalog.Op) []ItemResult {
	if resp == nil {
		return nil
	}
	items := resp.Items(op)
	out := make([]ItemResult, 0, len(items))
	for _, it := range items {
		out = append(out, ItemResult{ID: it.ID, Name: it.Name, Err: it.Error})
	}
	return out
}
