package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrShortRow means the row has fewer values than the spec selects.
	ErrShortRow = errors.New("row shorter than column list")
	// ErrUnknownColumn means a decoder asked for a column the spec does not
	// select.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrMissingKey means the key column is null or blank.
	ErrMissingKey = errors.New("missing key value")
	// ErrWrongSource means a decoder was handed a row from a source it does
	// not handle.
	ErrWrongSource = errors.New("decoder does not handle source")
)

// Row is one decoded result row. Accessors record the first lookup error;
// check Err after reading.
type Row struct {
	spec     *Spec
	values   []*string
	key      string
	err      error
	unparsed []string
}

// Decode validates raw against spec and returns a row keyed by the spec's
// key column. Values beyond len(spec.Columns) are ignored.
func Decode(spec *Spec, raw []*string) (*Row, error) {
	if len(raw) < len(spec.Columns) {
		return nil, fmt.Errorf("%s: %w: got %d values, want %d", spec.Source, ErrShortRow, len(raw), len(spec.Columns))
	}
	r := &Row{spec: spec, values: raw}
	key := r.String(spec.KeyColumn)
	if r.err != nil {
		return nil, r.err
	}
	if key == nil || strings.TrimSpace(*key) == "" {
		return nil, fmt.Errorf("%s: %w (%s)", spec.Source, ErrMissingKey, spec.KeyColumn)
	}
	r.key = strings.TrimSpace(*key)
	return r, nil
}

// Spec returns the spec the row was decoded against.
func (r *Row) Spec() *Spec { return r.spec }

// Key returns the trimmed key column value.
func (r *Row) Key() string { return r.key }

// Err returns the first column lookup error.
func (r *Row) Err() error { return r.err }

// Unparsed lists columns whose non-empty value could not be parsed and was
// treated as absent.
func (r *Row) Unparsed() []string { return r.unparsed }

func (r *Row) lookup(col string) *string {
	i, ok := r.spec.Index(col)
	if !ok {
		if r.err == nil {
			r.err = fmt.Errorf("%s: %w: %s", r.spec.Source, ErrUnknownColumn, col)
		}
		return nil
	}
	return r.values[i]
}

// String returns the raw value of col. SQL NULL is nil.
func (r *Row) String(col string) *string {
	return r.lookup(col)
}

// Text returns the value of col trimmed, with NULL and blank both mapped to
// nil.
func (r *Row) Text(col string) *string {
	v := r.lookup(col)
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// Date parses col as a calendar date at midnight UTC.
func (r *Row) Date(col string) *time.Time {
	t := r.Timestamp(col)
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// Timestamp parses col keeping any time of day.
func (r *Row) Timestamp(col string) *time.Time {
	v := r.Text(col)
	if v == nil {
		return nil
	}
	t, ok := ParseTime(*v)
	if !ok {
		r.unparsed = append(r.unparsed, col)
		return nil
	}
	return &t
}

// Int64 parses col as an integer. Fractional values with a zero fraction
// (as numeric columns sometimes render) are accepted.
func (r *Row) Int64(col string) *int64 {
	v := r.Text(col)
	if v == nil {
		return nil
	}
	s := *v
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" {
		s = whole
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		r.unparsed = append(r.unparsed, col)
		return nil
	}
	return &n
}

// Flag reports whether col equals "1".
func (r *Row) Flag(col string) bool {
	v := r.Text(col)
	return v != nil && *v == "1"
}
