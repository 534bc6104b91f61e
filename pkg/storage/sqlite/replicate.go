package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/portagedev/portage/pkg/fieldmap"
)

// replicator applies raw field maps mirrored from the primary backend.
// Values arrive keyed by canonical snake_case names and are translated to
// this schema's camelCase columns. Validation is deliberately skipped:
// the change already committed on the primary, so the secondary must not
// reject it.
type replicator struct{ a *Adapter }

func (r *replicator) ReplicateCreate(ctx context.Context, table, id string, fields map[string]any) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	cols, ok := tableColumns[table]
	if !ok {
		return fmt.Errorf("replicate create: unsupported table %q", table)
	}

	translated := fieldmap.ToCamel(table, fields)
	translated["id"] = id

	names := make([]string, 0, len(translated))
	for col := range translated {
		if cols[col] {
			names = append(names, col)
		}
	}
	sort.Strings(names)

	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, col := range names {
		placeholders[i] = "?"
		args[i] = normalizeValue(col, translated[col])
	}

	// INSERT OR REPLACE keeps replication idempotent when an event is
	// delivered for a record that already reached this side.
	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("replicate create into %s: %w", table, err)
	}
	return nil
}

func (r *replicator) ReplicateUpdate(ctx context.Context, table, id string, fields map[string]any) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	cols, ok := tableColumns[table]
	if !ok {
		return fmt.Errorf("replicate update: unsupported table %q", table)
	}

	translated := fieldmap.ToCamel(table, fields)
	delete(translated, "id")

	names := make([]string, 0, len(translated))
	for col := range translated {
		if cols[col] {
			names = append(names, col)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, col := range names {
		parts[i] = col + " = ?"
		args = append(args, normalizeValue(col, translated[col]))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, table, strings.Join(parts, ", "))
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("replicate update on %s: %w", table, err)
	}
	return nil
}

func (r *replicator) ReplicateDelete(ctx context.Context, table, id string) error {
	db, err := r.a.conn()
	if err != nil {
		return err
	}
	if _, ok := tableColumns[table]; !ok {
		return fmt.Errorf("replicate delete: unsupported table %q", table)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
		return fmt.Errorf("replicate delete from %s: %w", table, err)
	}
	return nil
}
