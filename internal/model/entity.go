package model

import "fmt"

// EntityType names one synchronized upstream collection and its warehouse table.
type EntityType string

const (
	EntityCustomers          EntityType = "customers"
	EntityOrders             EntityType = "orders"
	EntityOrderItems         EntityType = "order_items"
	EntityAbandonedCheckouts EntityType = "abandoned_checkouts"
)

// SyncOrder is the fixed dependency order of a store pass. Order line items
// are written together with their orders and have no step of their own.
var SyncOrder = []EntityType{
	EntityCustomers,
	EntityOrders,
	EntityAbandonedCheckouts,
}

// AllEntities lists every entity type that lands in the warehouse.
var AllEntities = []EntityType{
	EntityCustomers,
	EntityOrders,
	EntityOrderItems,
	EntityAbandonedCheckouts,
}

// Table returns the warehouse table for the entity type.
func (e EntityType) Table() string {
	return string(e)
}

// KeyColumn returns the id column that, together with store_id, forms the natural key.
func (e EntityType) KeyColumn() string {
	switch e {
	case EntityCustomers:
		return "customer_id"
	case EntityOrders:
		return "order_id"
	case EntityOrderItems:
		return "order_item_id"
	case EntityAbandonedCheckouts:
		return "checkout_id"
	}
	return "id"
}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	for _, known := range AllEntities {
		if e == known {
			return true
		}
	}
	return false
}

// ParseEntityType converts a string into a known EntityType.
func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return e, nil
}
