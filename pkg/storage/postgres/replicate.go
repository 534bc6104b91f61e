package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/portagedev/portage/pkg/fieldmap"
)

// replicator applies raw field maps mirrored from the primary backend.
// Fields arrive in the canonical snake_case convention, which matches
// this schema directly. Validation is skipped: the change already
// committed on the primary.
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

	normalized := fieldmap.ToSnake(table, fields)
	normalized["id"] = id

	names := make([]string, 0, len(normalized))
	for col := range normalized {
		if cols[col] {
			names = append(names, col)
		}
	}
	sort.Strings(names)

	placeholders := make([]string, len(names))
	updates := make([]string, 0, len(names))
	args := make([]any, len(names))
	for i, col := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = normalizeValue(normalized[col])
		if col != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}

	// Upsert keeps replication idempotent on redelivery.
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s`,
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
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

	normalized := fieldmap.ToSnake(table, fields)
	delete(normalized, "id")

	names := make([]string, 0, len(normalized))
	for col := range normalized {
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
		parts[i] = fmt.Sprintf("%s = $%d", col, i+1)
		args = append(args, normalizeValue(normalized[col]))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(parts, ", "), len(names)+1)
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
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id); err != nil {
		return fmt.Errorf("replicate delete from %s: %w", table, err)
	}
	return nil
}
