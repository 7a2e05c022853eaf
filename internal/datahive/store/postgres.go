package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/lib/pq"

	txcontext "recon/pkg/platform/tx"
)

// PostgresStore maps logical names to snake_case columns, so "blkHseNo" is
// stored in blk_hse_no. Writes join a transaction carried on ctx.
type PostgresStore struct {
	db     *sql.DB
	schema string
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithSchema qualifies every table with schema.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) {
		s.schema = schema
	}
}

func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) conn(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.RunInTx(ctx, s.db, fn)
}

func (s *PostgresStore) Query(ctx context.Context, table string, filters Fields) ([]Record, error) {
	where, args := whereClause(filters, 1)
	q := "SELECT * FROM " + s.table(table) + where

	rows, err := s.conn(ctx).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query %s columns: %w", table, err)
	}
	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r := make(Record, len(cols))
		for i, c := range cols {
			r[FieldName(c)] = vals[i]
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}

func (s *PostgresStore) Patch(ctx context.Context, table string, filters, fields Fields) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	keys := sortedKeys(fields)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(filters))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(ColumnName(k)), i+1)
		args = append(args, normalize(fields[k]))
	}
	where, whereArgs := whereClause(filters, len(keys)+1)
	args = append(args, whereArgs...)

	q := "UPDATE " + s.table(table) + " SET " + strings.Join(sets, ", ") + where
	res, err := s.conn(ctx).ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("patch %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("patch %s rows affected: %w", table, err)
	}
	return n, nil
}

func (s *PostgresStore) Create(ctx context.Context, table string, fields Fields) error {
	keys := sortedKeys(fields)
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = pq.QuoteIdentifier(ColumnName(k))
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = normalize(fields[k])
	}
	q := "INSERT INTO " + s.table(table) +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	if _, err := s.conn(ctx).ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) table(name string) string {
	if s.schema == "" {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(name)
}

// whereClause renders filters as an AND of equalities, numbering
// placeholders from first. A nil filter value becomes IS NULL.
func whereClause(filters Fields, first int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	keys := sortedKeys(filters)
	conds := make([]string, 0, len(keys))
	var args []any
	for _, k := range keys {
		col := pq.QuoteIdentifier(ColumnName(k))
		v := normalize(filters[k])
		if v == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, first+len(args)-1))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ColumnName converts a logical field name to its column: "regPostalCode"
// becomes "reg_postal_code".
func ColumnName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FieldName is the inverse of ColumnName.
func FieldName(column string) string {
	parts := strings.Split(column, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
