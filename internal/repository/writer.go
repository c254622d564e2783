package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"commerce-sync/internal/model"
	"commerce-sync/internal/syncerr"
	"commerce-sync/pkg/uid"
)

const orderingColumn = "updated_at"

// dedupe keeps the freshest record per natural key. On equal ordering times
// the later arrival wins. Input order of first appearance is preserved.
func dedupe(records []model.Record) []model.Record {
	index := make(map[model.NaturalKey]int, len(records))
	out := make([]model.Record, 0, len(records))

	for _, rec := range records {
		key := rec.Key()
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, rec)
			continue
		}
		if !rec.OrderingTime().Before(out[i].OrderingTime()) {
			out[i] = rec
		}
	}
	return out
}

// Write stages records and merges them into the entity's table with
// last-writer-wins semantics: an existing row is overwritten only when the
// incoming updated_at is at least the stored one. Counts report rows
// inserted, rows updated, and records superseded either inside the batch or
// by a fresher warehouse row.
func (t *Tx) Write(ctx context.Context, entity model.EntityType, records []model.Record) (model.WriteCounts, error) {
	if len(records) == 0 {
		return model.WriteCounts{}, nil
	}

	c := t.conn
	table := entity.Table()
	key := entity.KeyColumn()

	targetCols, err := c.tableColumns(ctx, t.tx, table)
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			return model.WriteCounts{}, &syncerr.ConfigurationError{Field: table, Msg: "warehouse table does not exist"}
		}
		return model.WriteCounts{}, &syncerr.WriteError{Table: table, Statement: "describe", Err: err}
	}

	cols, err := writableColumns(entity, targetCols, records[0].Columns())
	if err != nil {
		return model.WriteCounts{}, err
	}

	rows := dedupe(records)
	counts := model.WriteCounts{Skipped: len(records) - len(rows)}

	stage := "stage_" + table + "_" + uid.Compact()[:12]
	if err := t.createStage(ctx, stage, table, cols); err != nil {
		return model.WriteCounts{}, &syncerr.WriteError{Table: table, Statement: "create staging table", Err: err}
	}
	defer t.dropStage(stage)

	if err := t.fillStage(ctx, stage, cols, rows); err != nil {
		return model.WriteCounts{}, &syncerr.WriteError{Table: table, Statement: "stage", Err: err}
	}

	matched, fresh, err := t.countMatches(ctx, stage, table, key)
	if err != nil {
		return model.WriteCounts{}, &syncerr.WriteError{Table: table, Statement: "match", Err: err}
	}

	if _, err := t.tx.ExecContext(ctx, t.mergeSQL(stage, table, key, cols)); err != nil {
		return model.WriteCounts{}, &syncerr.WriteError{Table: table, Statement: "merge", Err: err}
	}

	counts.Inserted = len(rows) - matched
	counts.Updated = fresh
	counts.Skipped += matched - fresh

	c.logger.Debug("batch merged",
		"table", table,
		"staged", len(rows),
		"inserted", counts.Inserted,
		"updated", counts.Updated,
		"skipped", counts.Skipped,
	)
	return counts, nil
}

// writableColumns intersects the record's columns with the target table,
// keeping the table's column order. Record columns the table lacks are dropped.
func writableColumns(entity model.EntityType, target []string, recordCols map[string]any) ([]string, error) {
	has := make(map[string]bool, len(target))
	for _, col := range target {
		has[col] = true
	}

	for _, required := range []string{entity.KeyColumn(), "store_id", orderingColumn} {
		if !has[required] {
			return nil, &syncerr.ConfigurationError{
				Field: entity.Table() + "." + required,
				Msg:   "column is required for last-writer-wins merges",
			}
		}
	}

	cols := make([]string, 0, len(target))
	for _, col := range target {
		if _, ok := recordCols[col]; ok {
			cols = append(cols, col)
		}
	}
	return cols, nil
}

func (t *Tx) createStage(ctx context.Context, stage, table string, cols []string) error {
	d := t.conn.dialect
	var stmt string
	switch d {
	case SQLite:
		// Untyped columns keep values as bound; the target's affinity applies on merge.
		stmt = fmt.Sprintf("CREATE TEMP TABLE %s (%s)", d.Quote(stage), d.quoteAll(cols))
	case MySQL:
		stmt = fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT %s FROM %s LIMIT 0",
			d.Quote(stage), d.quoteAll(cols), t.conn.table(table))
	default:
		stmt = fmt.Sprintf("CREATE TEMPORARY TABLE %s AS SELECT %s FROM %s WHERE false",
			d.Quote(stage), d.quoteAll(cols), t.conn.table(table))
	}
	_, err := t.tx.ExecContext(ctx, stmt)
	return err
}

func (t *Tx) dropStage(stage string) {
	d := t.conn.dialect
	stmt := "DROP TABLE IF EXISTS " + d.Quote(stage)
	if d == MySQL {
		stmt = "DROP TEMPORARY TABLE IF EXISTS " + d.Quote(stage)
	}
	// The merge context may already be cancelled; the drop must still run.
	if _, err := t.tx.ExecContext(context.Background(), stmt); err != nil {
		t.conn.logger.Debug("staging table not dropped", "table", stage, "error", err)
	}
}

func (t *Tx) fillStage(ctx context.Context, stage string, cols []string, rows []model.Record) error {
	d := t.conn.dialect
	stmt, err := t.tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(stage), d.quoteAll(cols), d.placeholders(1, len(cols))))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for _, rec := range rows {
		values := rec.Columns()
		for i, col := range cols {
			args[i] = d.Value(values[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to stage %s %s: %w", rec.Entity(), rec.Key().ExternalID, err)
		}
	}
	return nil
}

// freshCondition is true when the incoming row may replace the stored one.
// A missing stored time is oldest; a missing incoming time never replaces a dated row.
func freshCondition(incoming, stored string) string {
	return fmt.Sprintf("(%[2]s IS NULL OR (%[1]s IS NOT NULL AND %[1]s >= %[2]s))", incoming, stored)
}

func (t *Tx) countMatches(ctx context.Context, stage, table, key string) (matched, fresh int, err error) {
	d := t.conn.dialect
	s := func(col string) string { return "s." + d.Quote(col) }
	w := func(col string) string { return "w." + d.Quote(col) }

	query := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN %s THEN 1 ELSE 0 END), 0)
		FROM %s s JOIN %s w ON %s = %s AND %s = %s`,
		freshCondition(s(orderingColumn), w(orderingColumn)),
		d.Quote(stage), t.conn.table(table),
		w(key), s(key), w("store_id"), s("store_id"))

	var matched64, fresh64 int64
	if err := t.tx.QueryRowContext(ctx, query).Scan(&matched64, &fresh64); err != nil {
		return 0, 0, err
	}
	return int(matched64), int(fresh64), nil
}

func (t *Tx) mergeSQL(stage, table, key string, cols []string) string {
	d := t.conn.dialect
	target := t.conn.table(table)
	colList := d.quoteAll(cols)

	var updates []string
	for _, col := range cols {
		if col == key || col == "store_id" || col == orderingColumn {
			continue
		}
		updates = append(updates, col)
	}
	// The ordering column is assigned last so MySQL's left-to-right
	// assignment still sees the stored value while evaluating the others.
	updates = append(updates, orderingColumn)

	if d == MySQL {
		cond := freshCondition("VALUES("+d.Quote(orderingColumn)+")", d.Quote(orderingColumn))
		sets := make([]string, len(updates))
		for i, col := range updates {
			q := d.Quote(col)
			sets[i] = fmt.Sprintf("%s = IF(%s, VALUES(%s), %s)", q, cond, q, q)
		}
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON DUPLICATE KEY UPDATE %s",
			target, colList, colList, d.Quote(stage), strings.Join(sets, ", "))
	}

	sets := make([]string, len(updates))
	for i, col := range updates {
		sets[i] = fmt.Sprintf("%s = excluded.%s", d.Quote(col), d.Quote(col))
	}
	cond := freshCondition("excluded."+d.Quote(orderingColumn), "w."+d.Quote(orderingColumn))

	// SQLite needs a WHERE on the SELECT to parse the upsert clause unambiguously.
	return fmt.Sprintf("INSERT INTO %s AS w (%s) SELECT %s FROM %s WHERE true ON CONFLICT (%s, %s) DO UPDATE SET %s WHERE %s",
		target, colList, colList, d.Quote(stage),
		d.Quote(key), d.Quote("store_id"), strings.Join(sets, ", "), cond)
}
