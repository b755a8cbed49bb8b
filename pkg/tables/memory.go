package tables

import (
	"context"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
)

type table[T any] struct {
	columns relation.Columns
	rows    []T
}

// Set is an in-memory Provider. Tables that were never added are missing.
type Set struct {
	diagnosis *table[models.DiagnosisRecord]
	child     *table[models.ChildRecord]
	person    *table[models.PersonRecord]
	income    *table[models.IncomeRecord]
}

func NewSet() *Set {
	return &Set{}
}

// WithDiagnosis adds the Diagnosis table; columns default to the full schema.
func (s *Set) WithDiagnosis(rows []models.DiagnosisRecord, columns ...string) *Set {
	s.diagnosis = &table[models.DiagnosisRecord]{columns: columnSet(columns, DiagnosisColumns), rows: rows}
	return s
}

// WithChild adds the Child table. Pass the column names explicitly to model
// a source without birth_date or family_id.
func (s *Set) WithChild(rows []models.ChildRecord, columns ...string) *Set {
	s.child = &table[models.ChildRecord]{columns: columnSet(columns, ChildColumns), rows: rows}
	return s
}

func (s *Set) WithPerson(rows []models.PersonRecord, columns ...string) *Set {
	s.person = &table[models.PersonRecord]{columns: columnSet(columns, PersonColumns), rows: rows}
	return s
}

func (s *Set) WithIncome(rows []models.IncomeRecord, columns ...string) *Set {
	s.income = &table[models.IncomeRecord]{columns: columnSet(columns, IncomeColumns), rows: rows}
	return s
}

func (s *Set) Diagnosis(context.Context) (relation.Relation[models.DiagnosisRecord], error) {
	return fromTable(Diagnosis, s.diagnosis)
}

func (s *Set) Child(context.Context) (relation.Relation[models.ChildRecord], error) {
	return fromTable(Child, s.child)
}

func (s *Set) Person(context.Context) (relation.Relation[models.PersonRecord], error) {
	return fromTable(Person, s.person)
}

func (s *Set) Income(context.Context) (relation.Relation[models.IncomeRecord], error) {
	return fromTable(Income, s.income)
}

func fromTable[T any](name string, t *table[T]) (relation.Relation[T], error) {
	if t == nil {
		return relation.Relation[T]{}, &relation.MissingTableError{Table: name}
	}
	return relation.FromSlice(name, t.columns, t.rows), nil
}

func columnSet(given, defaults []string) relation.Columns {
	if len(given) == 0 {
		return relation.NewColumns(defaults...)
	}
	return relation.NewColumns(given...)
}
