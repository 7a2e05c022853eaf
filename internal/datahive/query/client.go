package query

import (
	"context"
	"strings"

	"recon/internal/datahive/schema"
)

// RawRow is one positional result row. A nil element is SQL NULL.
type RawRow []*string

//go:generate mockgen -source=client.go -destination=mocks/mocks.go -package=mocks Client

// Client runs a statement against the tabular query API. Implementations
// should honour ctx; the executor abandons calls that outlive their deadline.
type Client interface {
	Query(ctx context.Context, statement string) ([]RawRow, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, statement string) ([]RawRow, error)

func (f ClientFunc) Query(ctx context.Context, statement string) ([]RawRow, error) {
	return f(ctx, statement)
}

// BuildStatement renders the lookup for values against spec:
//
//	SELECT c1, c2 FROM T WHERE F IN ('v1', 'v2')
//
// Values are single-quoted with embedded quotes doubled.
func BuildStatement(spec *schema.Spec, values []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(spec.Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(spec.Table)
	b.WriteString(" WHERE ")
	b.WriteString(spec.FilterColumn)
	b.WriteString(" IN (")
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('\'')
		b.WriteString(strings.ReplaceAll(v, "'", "''"))
		b.WriteByte('\'')
	}
	b.WriteString(")")
	return b.String()
}
