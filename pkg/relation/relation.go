package relation

import (
	"errors"
	"sort"
)

// errStop ends a scan early without reporting a failure.
var errStop = errors.New("stop scan")

type Columns map[string]struct{}

func NewColumns(names ...string) Columns {
	cols := make(Columns, len(names))
	for _, name := range names {
		cols[name] = struct{}{}
	}
	return cols
}

func (c Columns) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// Missing returns the required names absent from c, in the order given.
func (c Columns) Missing(required ...string) []string {
	var missing []string
	for _, name := range required {
		if !c.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func (c Columns) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScanFunc feeds rows to yield until it returns false. It must not retain
// or mutate rows after yielding them.
type ScanFunc[T any] func(yield func(T) bool) error

// Relation is a named, lazily evaluated table. Nothing is read until one of
// Each, Collect or Count is called, and every operator returns a new relation.
type Relation[T any] struct {
	name    string
	columns Columns
	scan    ScanFunc[T]
}

func New[T any](name string, columns Columns, scan ScanFunc[T]) Relation[T] {
	if columns == nil {
		columns = Columns{}
	}
	return Relation[T]{name: name, columns: columns, scan: scan}
}

func FromSlice[T any](name string, columns Columns, rows []T) Relation[T] {
	return New(name, columns, func(yield func(T) bool) error {
		for _, row := range rows {
			if !yield(row) {
				return nil
			}
		}
		return nil
	})
}

func Empty[T any](name string, columns Columns) Relation[T] {
	return FromSlice[T](name, columns, nil)
}

func (r Relation[T]) Name() string {
	return r.name
}

func (r Relation[T]) Columns() Columns {
	return r.columns
}

func (r Relation[T]) Require(columns ...string) error {
	if missing := r.columns.Missing(columns...); len(missing) > 0 {
		return &MissingColumnError{Table: r.name, Columns: missing}
	}
	return nil
}

func (r Relation[T]) Each(fn func(T) error) error {
	if r.scan == nil {
		return nil
	}
	var fnErr error
	err := r.scan(func(row T) bool {
		if err := fn(row); err != nil {
			fnErr = err
			return false
		}
		return true
	})
	if fnErr != nil {
		if errors.Is(fnErr, errStop) {
			return nil
		}
		return fnErr
	}
	return err
}

func (r Relation[T]) Collect() ([]T, error) {
	rows := []T{}
	err := r.Each(func(row T) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r Relation[T]) Count() (int, error) {
	n := 0
	err := r.Each(func(T) error {
		n++
		return nil
	})
	return n, err
}

func (r Relation[T]) Filter(keep func(T) bool) Relation[T] {
	return New(r.name, r.columns, func(yield func(T) bool) error {
		return r.Each(func(row T) error {
			if !keep(row) {
				return nil
			}
			if !yield(row) {
				return errStop
			}
			return nil
		})
	})
}

// Materialize reads r once and returns a relation over the buffered rows.
func (r Relation[T]) Materialize() (Relation[T], []T, error) {
	rows, err := r.Collect()
	if err != nil {
		return Relation[T]{}, nil, err
	}
	return FromSlice(r.name, r.columns, rows), rows, nil
}

func Project[T, U any](r Relation[T], name string, columns Columns, fn func(T) U) Relation[U] {
	return New(name, columns, func(yield func(U) bool) error {
		return r.Each(func(row T) error {
			if !yield(fn(row)) {
				return errStop
			}
			return nil
		})
	})
}

// Distinct keeps the first row seen for every key, preserving input order.
func Distinct[T any, K comparable](r Relation[T], key func(T) K) Relation[T] {
	return New(r.name, r.columns, func(yield func(T) bool) error {
		seen := make(map[K]struct{})
		return r.Each(func(row T) error {
			k := key(row)
			if _, dup := seen[k]; dup {
				return nil
			}
			seen[k] = struct{}{}
			if !yield(row) {
				return errStop
			}
			return nil
		})
	})
}

type Joined[L, R any] struct {
	Left    L
	Right   R
	Matched bool
}

// LeftJoin emits one row per matching right row, in right-side order, and a
// single unmatched row for left rows without a partner. A key reported as
// absent (ok == false) never matches. The right side is read once per scan.
func LeftJoin[L, R any, K comparable](left Relation[L], right Relation[R], leftKey func(L) (K, bool), rightKey func(R) (K, bool)) Relation[Joined[L, R]] {
	columns := Columns{}
	for name := range left.columns {
		columns[name] = struct{}{}
	}
	for name := range right.columns {
		if !columns.Has(name) {
			columns[name] = struct{}{}
		}
	}
	return New(left.name, columns, func(yield func(Joined[L, R]) bool) error {
		index := make(map[K][]R)
		err := right.Each(func(row R) error {
			if k, ok := rightKey(row); ok {
				index[k] = append(index[k], row)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return left.Each(func(row L) error {
			var partners []R
			if k, ok := leftKey(row); ok {
				partners = index[k]
			}
			if len(partners) == 0 {
				if !yield(Joined[L, R]{Left: row}) {
					return errStop
				}
				return nil
			}
			for _, p := range partners {
				if !yield(Joined[L, R]{Left: row, Right: p, Matched: true}) {
					return errStop
				}
			}
			return nil
		})
	})
}

// Valid reports whether r was built by a constructor; the zero Relation
// stands for a table that was never supplied.
func (r Relation[T]) Valid() bool {
	return r.scan != nil
}
