// Package normalize turns raw upstream payloads into canonical records.
// Functions here are pure: no I/O, no clock, no configuration lookups.
package normalize

import (
	"fmt"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
)

const (
	defaultCurrency = "USD"
	defaultState    = "enabled"
)

// Result holds the records produced from one raw batch, grouped by entity type.
// An orders batch also yields order_items.
type Result struct {
	Records map[model.EntityType][]model.Record
	Skipped map[model.EntityType]int
	Skips   []error
}

func newResult() *Result {
	return &Result{
		Records: make(map[model.EntityType][]model.Record),
		Skipped: make(map[model.EntityType]int),
	}
}

func (r *Result) add(rec model.Record) {
	r.Records[rec.Entity()] = append(r.Records[rec.Entity()], rec)
}

func (r *Result) skip(entity model.EntityType, err error) {
	r.Skipped[entity]++
	r.Skips = append(r.Skips, err)
}

// Len returns the number of records of every entity type.
func (r *Result) Len() int {
	n := 0
	for _, recs := range r.Records {
		n += len(recs)
	}
	return n
}

// Batch normalizes raw records of one entity type for storeID. Records that
// cannot be normalized are counted as skipped and never abort the batch.
func Batch(entity model.EntityType, storeID string, raws []map[string]any) (*Result, error) {
	res := newResult()

	switch entity {
	case model.EntityCustomers:
		for _, raw := range raws {
			c, err := Customer(storeID, raw)
			if err != nil {
				res.skip(entity, err)
				continue
			}
			res.add(c)
		}
	case model.EntityOrders:
		for _, raw := range raws {
			o, items, err := Order(storeID, raw)
			if err != nil {
				res.skip(entity, err)
				continue
			}
			res.add(o)
			for _, item := range items {
				if item.OrderItemID == "" {
					res.skip(model.EntityOrderItems, &syncerr.NormalizationSkip{
						Entity: string(model.EntityOrderItems),
						Reason: fmt.Sprintf("line item of order %s has no id", o.OrderID),
					})
					continue
				}
				res.add(item)
			}
		}
	case model.EntityAbandonedCheckouts:
		for _, raw := range raws {
			a, err := Checkout(storeID, raw)
			if err != nil {
				res.skip(entity, err)
				continue
			}
			res.add(a)
		}
	default:
		return nil, fmt.Errorf("normalize: unsupported entity type %q", entity)
	}

	return res, nil
}

// Customer maps a raw customer. default_address is flattened into the record.
func Customer(storeID string, raw map[string]any) (*model.Customer, error) {
	id := getID(raw, "id")
	if id == "" {
		return nil, &syncerr.NormalizationSkip{Entity: string(model.EntityCustomers), Reason: "missing id"}
	}

	c := &model.Customer{
		CustomerID:       id,
		StoreID:          storeID,
		Email:            getString(raw, "email"),
		FirstName:        getString(raw, "first_name"),
		LastName:         getString(raw, "last_name"),
		OrdersCount:      getInt64(raw, "orders_count"),
		TotalSpent:       getFloat(raw, "total_spent"),
		Currency:         getStringDefault(raw, "currency", defaultCurrency),
		State:            getStringDefault(raw, "state", defaultState),
		Note:             getString(raw, "note"),
		VerifiedEmail:    getBool(raw, "verified_email"),
		AcceptsMarketing: getBool(raw, "accepts_marketing"),
		TaxExempt:        getBool(raw, "tax_exempt"),
		Tags:             getTags(raw, "tags"),
		LastOrderID:      getID(raw, "last_order_id"),
		CreatedAt:        getTime(raw, "created_at"),
		UpdatedAt:        getTime(raw, "updated_at"),
		Attributes:       marshalRaw(raw),
	}

	if addr := getMap(raw, "default_address"); addr != nil {
		c.Country = getString(addr, "country")
		c.Province = getString(addr, "province")
		c.City = getString(addr, "city")
		c.Zip = getString(addr, "zip")
	}

	return c, nil
}

// Order maps a raw order and its line items. Line items inherit the order's
// timestamps; a line item without an id is returned with an empty OrderItemID
// for the caller to skip.
func Order(storeID string, raw map[string]any) (*model.Order, []*model.OrderLineItem, error) {
	id := getID(raw, "id")
	if id == "" {
		return nil, nil, &syncerr.NormalizationSkip{Entity: string(model.EntityOrders), Reason: "missing id"}
	}

	lines := getSlice(raw, "line_items")

	o := &model.Order{
		OrderID:           id,
		StoreID:           storeID,
		OrderNumber:       getInt64(raw, "order_number"),
		TotalPrice:        getFloat(raw, "total_price"),
		SubtotalPrice:     getFloat(raw, "subtotal_price"),
		TotalTax:          getFloat(raw, "total_tax"),
		TotalDiscounts:    getFloat(raw, "total_discounts"),
		Currency:          getStringDefault(raw, "currency", defaultCurrency),
		FinancialStatus:   getString(raw, "financial_status"),
		FulfillmentStatus: getString(raw, "fulfillment_status"),
		ProcessingMethod:  getString(raw, "processing_method"),
		SourceName:        getString(raw, "source_name"),
		Gateway:           getString(raw, "gateway"),
		Test:              getBool(raw, "test"),
		TaxesIncluded:     getBool(raw, "taxes_included"),
		TotalWeight:       getInt64(raw, "total_weight"),
		TotalItems:        int64(len(lines)),
		Tags:              getTags(raw, "tags"),
		CreatedAt:         getTime(raw, "created_at"),
		UpdatedAt:         getTime(raw, "updated_at"),
		CancelledAt:       getTimePtr(raw, "cancelled_at"),
		ClosedAt:          getTimePtr(raw, "closed_at"),
		ProcessedAt:       getTimePtr(raw, "processed_at"),
		Attributes:        marshalRaw(raw),
	}

	if customer := getMap(raw, "customer"); customer != nil {
		o.CustomerID = getID(customer, "id")
	}

	if addr := getMap(raw, "shipping_address"); addr != nil {
		o.ShippingName = getString(addr, "name")
		o.ShippingAddress1 = getString(addr, "address1")
		o.ShippingCity = getString(addr, "city")
		o.ShippingProvince = getString(addr, "province")
		o.ShippingCountry = getString(addr, "country")
		o.ShippingZip = getString(addr, "zip")
	}

	items := make([]*model.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, lineItem(o, line))
	}

	return o, items, nil
}

func lineItem(o *model.Order, raw map[string]any) *model.OrderLineItem {
	return &model.OrderLineItem{
		OrderItemID:       getID(raw, "id"),
		StoreID:           o.StoreID,
		OrderID:           o.OrderID,
		ProductID:         getID(raw, "product_id"),
		VariantID:         getID(raw, "variant_id"),
		Title:             getString(raw, "title"),
		Name:              getString(raw, "name"),
		Quantity:          getInt64(raw, "quantity"),
		Price:             getFloat(raw, "price"),
		SKU:               getString(raw, "sku"),
		Vendor:            getString(raw, "vendor"),
		RequiresShipping:  getBool(raw, "requires_shipping"),
		Taxable:           getBool(raw, "taxable"),
		FulfillmentStatus: getString(raw, "fulfillment_status"),
		Grams:             getInt64(raw, "grams"),
		TotalDiscount:     getFloat(raw, "total_discount"),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
		Attributes:        marshalRaw(raw),
	}
}

// Checkout maps a raw abandoned checkout. The upstream does not report when a
// checkout was abandoned, so abandoned_at is its creation time.
func Checkout(storeID string, raw map[string]any) (*model.AbandonedCheckout, error) {
	id := getID(raw, "id")
	if id == "" {
		return nil, &syncerr.NormalizationSkip{Entity: string(model.EntityAbandonedCheckouts), Reason: "missing id"}
	}

	a := &model.AbandonedCheckout{
		CheckoutID:     id,
		StoreID:        storeID,
		Email:          getString(raw, "email"),
		TotalPrice:     getFloat(raw, "total_price"),
		SubtotalPrice:  getFloat(raw, "subtotal_price"),
		TotalTax:       getFloat(raw, "total_tax"),
		TotalDiscounts: getFloat(raw, "total_discounts"),
		Currency:       getStringDefault(raw, "currency", defaultCurrency),
		RecoveryURL:    getStringDefault(raw, "abandoned_checkout_url", getString(raw, "recovery_url")),
		CreatedAt:      getTime(raw, "created_at"),
		UpdatedAt:      getTime(raw, "updated_at"),
		Attributes:     marshalRaw(raw),
	}
	a.AbandonedAt = a.CreatedAt

	if customer := getMap(raw, "customer"); customer != nil {
		a.CustomerID = getID(customer, "id")
	}

	return a, nil
}
