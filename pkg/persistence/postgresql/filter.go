package postgresql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/reviewflow/pkg/persistence"
)

// filter accumulates WHERE conditions with positional arguments.
type filter struct {
	where []string
	args  []any
}

func newFilter(conditions ...string) *filter {
	return &filter{where: conditions}
}

// arg registers value and returns its placeholder.
func (f *filter) arg(value any) string {
	f.args = append(f.args, value)

	return fmt.Sprintf("$%d", len(f.args))
}

// add appends a condition whose single %d verb receives the placeholder index.
func (f *filter) add(condition string, value any) {
	f.args = append(f.args, value)
	f.where = append(f.where, fmt.Sprintf(condition, len(f.args)))
}

// equal adds column = value unless value is empty.
func (f *filter) equal(column, value string) {
	if value == "" {
		return
	}

	f.add(column+" = $%d", value)
}

// between adds an inclusive time range on column.
func (f *filter) between(column string, from, to *time.Time) {
	if from != nil {
		f.add(column+" >= $%d", *from)
	}

	if to != nil {
		f.add(column+" <= $%d", *to)
	}
}

func (f *filter) clause() string {
	if len(f.where) == 0 {
		return "TRUE"
	}

	return strings.Join(f.where, " AND ")
}

// window renders LIMIT/OFFSET as literals; both are plain ints.
func (f *filter) window(p persistence.Pagination) string {
	var window string

	if p.Limit > 0 {
		window += fmt.Sprintf(" LIMIT %d", p.Limit)
	}

	if p.Offset > 0 {
		window += fmt.Sprintf(" OFFSET %d", p.Offset)
	}

	return window
}

func (f *filter) count(ctx context.Context, db dbtx, table string) (int64, error) {
	var total int64

	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE "+f.clause(), f.args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}

	return total, nil
}

func newPage[T any](items []T, total int64, p persistence.Pagination) *persistence.Page[T] {
	return &persistence.Page[T]{
		Items:       items,
		TotalCount:  total,
		HasNextPage: int64(max(p.Offset, 0)+len(items)) < total,
	}
}
