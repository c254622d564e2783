package repository

import (
	"context"
	"fmt"
	"strings"

	"commerce-sync/internal/model"
)

// CursorTable persists extraction cursors.
const CursorTable = "sync_cursors"

type columnKind int

const (
	kindKey columnKind = iota
	kindText
	kindInt
	kindMoney
	kindTime
	kindBool
)

type column struct {
	name string
	kind columnKind
}

// tableDefs are the warehouse tables EnsureSchema creates for local and test
// warehouses. Production DDL is managed outside this service; the writer only
// requires the natural key, store_id and updated_at columns to exist.
var tableDefs = map[string][]column{
	model.EntityCustomers.Table(): {
		{"customer_id", kindKey},
		{"store_id", kindKey},
		{"email", kindText},
		{"first_name", kindText},
		{"last_name", kindText},
		{"orders_count", kindInt},
		{"total_spent", kindMoney},
		{"created_at", kindTime},
		{"updated_at", kindTime},
		{"accepts_marketing", kindBool},
		{"tax_exempt", kindBool},
		{"tags", kindText},
	},
	model.EntityOrders.Table(): {
		{"order_id", kindKey},
		{"store_id", kindKey},
		{"customer_id", kindText},
		{"order_number", kindInt},
		{"total_price", kindMoney},
		{"subtotal_price", kindMoney},
		{"total_tax", kindMoney},
		{"total_discounts", kindMoney},
		{"currency", kindText},
		{"financial_status", kindText},
		{"fulfillment_status", kindText},
		{"created_at", kindTime},
		{"updated_at", kindTime},
		{"cancelled_at", kindTime},
	},
	model.EntityOrderItems.Table(): {
		{"order_item_id", kindKey},
		{"store_id", kindKey},
		{"order_id", kindText},
		{"product_id", kindText},
		{"variant_id", kindText},
		{"title", kindText},
		{"quantity", kindInt},
		{"price", kindMoney},
		{"sku", kindText},
		{"total_discount", kindMoney},
		{"updated_at", kindTime},
	},
	model.EntityAbandonedCheckouts.Table(): {
		{"checkout_id", kindKey},
		{"store_id", kindKey},
		{"customer_id", kindText},
		{"email", kindText},
		{"total_price", kindMoney},
		{"currency", kindText},
		{"created_at", kindTime},
		{"abandoned_at", kindTime},
		{"recovery_url", kindText},
		{"updated_at", kindTime},
	},
}

var cursorColumns = []column{
	{"store_id", kindKey},
	{"entity_type", kindKey},
	{"last_id", kindInt},
	{"updated_at", kindTime},
}

// createTableSQL renders CREATE TABLE IF NOT EXISTS with a composite primary key.
func (d Dialect) createTableSQL(schema, table string, cols []column, key ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", d.Qualify(schema, table))
	for _, c := range cols {
		fmt.Fprintf(&b, "\t%s %s", d.Quote(c.name), d.typeFor(c.kind))
		if c.kind == kindKey {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n)", d.quoteAll(key))
	return b.String()
}

// EnsureSchema creates the warehouse tables and the cursor table if they are missing.
func (c *Conn) EnsureSchema(ctx context.Context) error {
	if c.schema != "" && c.dialect != SQLite {
		stmt := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", c.dialect.Quote(c.schema))
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", c.schema, err)
		}
	}

	for _, entity := range model.AllEntities {
		stmt := c.dialect.createTableSQL(c.schema, entity.Table(), tableDefs[entity.Table()], entity.KeyColumn(), "store_id")
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", entity.Table(), err)
		}
	}

	stmt := c.dialect.createTableSQL(c.schema, CursorTable, cursorColumns, "store_id", "entity_type")
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", CursorTable, err)
	}

	c.forgetColumns()
	return nil
}
