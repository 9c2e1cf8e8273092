package catalog

// DecisionKind says what happens to a product when a category is removed.
type DecisionKind int

const (
	// DecisionUpdate keeps the product with its remaining categories.
	DecisionUpdate DecisionKind = iota + 1
	// DecisionDelete removes the product because it would be orphaned.
	DecisionDelete
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionUpdate:
		return "update"
	case DecisionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Decision is the classifier result for one product.
type Decision struct {
	Kind       DecisionKind
	ProductID  int
	Categories []int
}

// Payload returns the update payload for an update decision.
func (d Decision) Payload() Product {
	refs := make([]CategoryRef, 0, len(d.Categories))
	for _, id := range d.Categories {
		refs = append(refs, CategoryRef{ID: id})
	}
	return Product{ID: d.ProductID, Categories: refs}
}

// Classify decides what happens to p when target is removed from its
// categories. A product that keeps another category is updated; a product
// left with none is deleted.
func Classify(p Product, target int) Decision {
	return Detach(p, []int{target})
}

// Detach decides what happens to p when every category in remove is
// unlinked from it: update when any category remains, delete otherwise.
func Detach(p Product, remove []int) Decision {
	rest := p.CategoryIDs()
	for _, id := range remove {
		rest = without(rest, id)
	}
	if len(rest) > 0 {
		return Decision{Kind: DecisionUpdate, ProductID: p.ID, Categories: rest}
	}
	return Decision{Kind: DecisionDelete, ProductID: p.ID}
}

// Partition splits decisions into update payloads and delete ids,
// preserving order within each.
func Partition(decisions []Decision) (updates []Product, deletes []int) {
	for _, d := range decisions {
		switch d.Kind {
		case DecisionUpdate:
			updates = append(updates, d.Payload())
		case DecisionDelete:
			deletes = append(deletes, d.ProductID)
		}
	}
	return updates, deletes
}

func without(ids []int, drop int) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
