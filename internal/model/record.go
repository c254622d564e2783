package model

import (
	"encoding/json"
	"time"
)

// NaturalKey identifies one warehouse row: the upstream id scoped to its store.
type NaturalKey struct {
	ExternalID string
	StoreID    string
}

// Record is a normalized entity ready for the warehouse.
//
// Columns returns every field the canonical model knows about, keyed by
// column name. The writer keeps only the columns the target table has, so
// records may carry more than any one warehouse schema.
type Record interface {
	Entity() EntityType
	Key() NaturalKey
	OrderingTime() time.Time
	Columns() map[string]any
}

// Customer is the canonical customer shape.
type Customer struct {
	CustomerID       string
	StoreID          string
	Email            string
	FirstName        string
	LastName         string
	OrdersCount      int64
	TotalSpent       float64
	Currency         string
	State            string
	Note             string
	VerifiedEmail    bool
	AcceptsMarketing bool
	TaxExempt        bool
	Tags             string
	LastOrderID      string
	Country          string
	Province         string
	City             string
	Zip              string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Attributes       json.RawMessage
}

func (c *Customer) Entity() EntityType { return EntityCustomers }

func (c *Customer) Key() NaturalKey { return NaturalKey{ExternalID: c.CustomerID, StoreID: c.StoreID} }

func (c *Customer) OrderingTime() time.Time { return orderingTime(c.UpdatedAt, c.CreatedAt) }

func (c *Customer) Columns() map[string]any {
	return map[string]any{
		"customer_id":       c.CustomerID,
		"store_id":          c.StoreID,
		"email":             nullString(c.Email),
		"first_name":        nullString(c.FirstName),
		"last_name":         nullString(c.LastName),
		"orders_count":      c.OrdersCount,
		"total_spent":       c.TotalSpent,
		"currency":          nullString(c.Currency),
		"state":             nullString(c.State),
		"note":              nullString(c.Note),
		"verified_email":    c.VerifiedEmail,
		"accepts_marketing": c.AcceptsMarketing,
		"tax_exempt":        c.TaxExempt,
		"tags":              c.Tags,
		"last_order_id":     nullString(c.LastOrderID),
		"country":           nullString(c.Country),
		"province":          nullString(c.Province),
		"city":              nullString(c.City),
		"zip":               nullString(c.Zip),
		"created_at":        nullTime(c.CreatedAt),
		"updated_at":        nullTime(c.OrderingTime()),
		"attributes":        nullJSON(c.Attributes),
	}
}

// Order is the canonical order shape. CustomerID is a weak reference.
type Order struct {
	OrderID           string
	StoreID           string
	CustomerID        string
	OrderNumber       int64
	TotalPrice        float64
	SubtotalPrice     float64
	TotalTax          float64
	TotalDiscounts    float64
	Currency          string
	FinancialStatus   string
	FulfillmentStatus string
	ProcessingMethod  string
	SourceName        string
	Gateway           string
	Test              bool
	TaxesIncluded     bool
	TotalWeight       int64
	TotalItems        int64
	Tags              string
	ShippingName      string
	ShippingAddress1  string
	ShippingCity      string
	ShippingProvince  string
	ShippingCountry   string
	ShippingZip       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CancelledAt       *time.Time
	ClosedAt          *time.Time
	ProcessedAt       *time.Time
	Attributes        json.RawMessage
}

func (o *Order) Entity() EntityType { return EntityOrders }

func (o *Order) Key() NaturalKey { return NaturalKey{ExternalID: o.OrderID, StoreID: o.StoreID} }

func (o *Order) OrderingTime() time.Time { return orderingTime(o.UpdatedAt, o.CreatedAt) }

func (o *Order) Columns() map[string]any {
	return map[string]any{
		"order_id":           o.OrderID,
		"store_id":           o.StoreID,
		"customer_id":        nullString(o.CustomerID),
		"order_number":       o.OrderNumber,
		"total_price":        o.TotalPrice,
		"subtotal_price":     o.SubtotalPrice,
		"total_tax":          o.TotalTax,
		"total_discounts":    o.TotalDiscounts,
		"currency":           nullString(o.Currency),
		"financial_status":   nullString(o.FinancialStatus),
		"fulfillment_status": nullString(o.FulfillmentStatus),
		"processing_method":  nullString(o.ProcessingMethod),
		"source_name":        nullString(o.SourceName),
		"gateway":            nullString(o.Gateway),
		"test":               o.Test,
		"taxes_included":     o.TaxesIncluded,
		"total_weight":       o.TotalWeight,
		"total_items":        o.TotalItems,
		"tags":               o.Tags,
		"shipping_name":      nullString(o.ShippingName),
		"shipping_address1":  nullString(o.ShippingAddress1),
		"shipping_city":      nullString(o.ShippingCity),
		"shipping_province":  nullString(o.ShippingProvince),
		"shipping_country":   nullString(o.ShippingCountry),
		"shipping_zip":       nullString(o.ShippingZip),
		"created_at":         nullTime(o.CreatedAt),
		"updated_at":         nullTime(o.OrderingTime()),
		"cancelled_at":       timePtr(o.CancelledAt),
		"closed_at":          timePtr(o.ClosedAt),
		"processed_at":       timePtr(o.ProcessedAt),
		"attributes":         nullJSON(o.Attributes),
	}
}

// OrderLineItem is one line of an order. OrderID is a weak reference to its parent.
// It carries the parent's timestamps so that it can be ordered like any other record.
type OrderLineItem struct {
	OrderItemID       string
	StoreID           string
	OrderID           string
	ProductID         string
	VariantID         string
	Title             string
	Name              string
	Quantity          int64
	Price             float64
	SKU               string
	Vendor            string
	RequiresShipping  bool
	Taxable           bool
	FulfillmentStatus string
	Grams             int64
	TotalDiscount     float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Attributes        json.RawMessage
}

func (li *OrderLineItem) Entity() EntityType { return EntityOrderItems }

func (li *OrderLineItem) Key() NaturalKey {
	return NaturalKey{ExternalID: li.OrderItemID, StoreID: li.StoreID}
}

func (li *OrderLineItem) OrderingTime() time.Time { return orderingTime(li.UpdatedAt, li.CreatedAt) }

func (li *OrderLineItem) Columns() map[string]any {
	return map[string]any{
		"order_item_id":      li.OrderItemID,
		"store_id":           li.StoreID,
		"order_id":           li.OrderID,
		"product_id":         nullString(li.ProductID),
		"variant_id":         nullString(li.VariantID),
		"title":              nullString(li.Title),
		"name":               nullString(li.Name),
		"quantity":           li.Quantity,
		"price":              li.Price,
		"sku":                nullString(li.SKU),
		"vendor":             nullString(li.Vendor),
		"requires_shipping":  li.RequiresShipping,
		"taxable":            li.Taxable,
		"fulfillment_status": nullString(li.FulfillmentStatus),
		"grams":              li.Grams,
		"total_discount":     li.TotalDiscount,
		"created_at":         nullTime(li.CreatedAt),
		"updated_at":         nullTime(li.OrderingTime()),
		"attributes":         nullJSON(li.Attributes),
	}
}

// AbandonedCheckout is the canonical abandoned checkout shape.
type AbandonedCheckout struct {
	CheckoutID     string
	StoreID        string
	CustomerID     string
	Email          string
	TotalPrice     float64
	SubtotalPrice  float64
	TotalTax       float64
	TotalDiscounts float64
	Currency       string
	RecoveryURL    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	AbandonedAt    time.Time
	Attributes     json.RawMessage
}

func (a *AbandonedCheckout) Entity() EntityType { return EntityAbandonedCheckouts }

func (a *AbandonedCheckout) Key() NaturalKey {
	return NaturalKey{ExternalID: a.CheckoutID, StoreID: a.StoreID}
}

func (a *AbandonedCheckout) OrderingTime() time.Time { return orderingTime(a.UpdatedAt, a.CreatedAt) }

func (a *AbandonedCheckout) Columns() map[string]any {
	return map[string]any{
		"checkout_id":     a.CheckoutID,
		"store_id":        a.StoreID,
		"customer_id":     nullString(a.CustomerID),
		"email":           nullString(a.Email),
		"total_price":     a.TotalPrice,
		"subtotal_price":  a.SubtotalPrice,
		"total_tax":       a.TotalTax,
		"total_discounts": a.TotalDiscounts,
		"currency":        nullString(a.Currency),
		"recovery_url":    nullString(a.RecoveryURL),
		"created_at":      nullTime(a.CreatedAt),
		"updated_at":      nullTime(a.OrderingTime()),
		"abandoned_at":    nullTime(a.AbandonedAt),
		"attributes":      nullJSON(a.Attributes),
	}
}

func orderingTime(updated, created time.Time) time.Time {
	if !updated.IsZero() {
		return updated
	}
	return created
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var (
	_ Record = (*Customer)(nil)
	_ Record = (*Order)(nil)
	_ Record = (*OrderLineItem)(nil)
	_ Record = (*AbandonedCheckout)(nil)
)
