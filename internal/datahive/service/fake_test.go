package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"recon/internal/datahive/query"
	"recon/internal/datahive/schema"
)

// fakeWarehouse answers generated statements from canned rows and counts
// how often each (table, value) pair was asked for.
type fakeWarehouse struct {
	mu    sync.Mutex
	rows  map[string]map[string][]query.RawRow
	fail  map[string]error
	asked map[string]int
	calls map[string]int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		rows:  map[string]map[string][]query.RawRow{},
		fail:  map[string]error{},
		asked: map[string]int{},
		calls: map[string]int{},
	}
}

// add stores a row for spec. Columns not in vals are NULL.
func (f *fakeWarehouse) add(spec *schema.Spec, vals map[string]string) {
	raw := make(query.RawRow, len(spec.Columns))
	for col, v := range vals {
		i, ok := spec.Index(col)
		if !ok {
			panic("unknown column " + col + " for " + spec.Table)
		}
		raw[i] = &v
	}
	if f.rows[spec.Table] == nil {
		f.rows[spec.Table] = map[string][]query.RawRow{}
	}
	key := vals[spec.KeyColumn]
	f.rows[spec.Table][key] = append(f.rows[spec.Table][key], raw)
}

func (f *fakeWarehouse) failTable(spec *schema.Spec, err error) {
	f.fail[spec.Table] = err
}

func (f *fakeWarehouse) Query(_ context.Context, statement string) ([]query.RawRow, error) {
	table, values := parseStatement(statement)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[table]++
	for _, v := range values {
		f.asked[table+"|"+v]++
	}
	if err := f.fail[table]; err != nil {
		return nil, err
	}
	var out []query.RawRow
	for _, v := range values {
		out = append(out, f.rows[table][v]...)
	}
	return out, nil
}

func (f *fakeWarehouse) timesAsked(spec *schema.Spec, value string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.asked[spec.Table+"|"+value]
}

func (f *fakeWarehouse) statements(spec *schema.Spec) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[spec.Table]
}

func parseStatement(statement string) (string, []string) {
	from := strings.Index(statement, " FROM ")
	where := strings.Index(statement, " WHERE ")
	table := statement[from+len(" FROM ") : where]

	list := statement[strings.Index(statement, "IN (")+len("IN (") : strings.LastIndex(statement, ")")]
	var values []string
	for _, v := range strings.Split(list, ", ") {
		v = strings.TrimSuffix(strings.TrimPrefix(v, "'"), "'")
		values = append(values, strings.ReplaceAll(v, "''", "'"))
	}
	return table, values
}

var errWarehouseDown = errors.New("warehouse unavailable")
