package catalog

// MetaHideProduct is the metadata flag read by the store's hide-product
// plugin. It is set alongside catalog visibility so both mechanisms agree.
const (
	MetaHideProduct = "_hwp_hide_product"
	metaHideValue   = "yes"
)

// IsHidden reports whether p is already hidden by visibility or by the
// hide-product flag.
func (p Product) IsHidden() bool {
	if p.CatalogVisibility == VisibilityHidden {
		return true
	}
	m, ok := p.Meta(MetaHideProduct)
	if !ok {
		return false
	}
	v, _ := m.StringValue()
	return v == metaHideValue
}

// HidePayload returns the update payload that hides product id.
func HidePayload(id int) Product {
	return Product{
		ID:                id,
		CatalogVisibility: VisibilityHidden,
		MetaData:          []MetaData{{Key: MetaHideProduct, Value: metaHideValue}},
	}
}
