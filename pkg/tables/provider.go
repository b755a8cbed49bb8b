package tables

import (
	"context"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
)

const (
	Diagnosis = "Diagnosis"
	Child     = "Child"
	Person    = "Person"
	Income    = "Income"
)

const (
	ColPersonID      = "person_id"
	ColDiagnosisCode = "diagnosis_code"
	ColDiagnosisDate = "diagnosis_date"
	ColChildID       = "child_id"
	ColFamilyID      = "family_id"
	ColBirthDate     = "birth_date"
	ColMotherID      = "mother_id"
	ColFatherID      = "father_id"
	ColYear          = "year"
	ColTotalIncome   = "total_income"
)

var (
	DiagnosisColumns = []string{ColPersonID, ColDiagnosisCode, ColDiagnosisDate}
	ChildColumns     = []string{ColChildID, ColFamilyID, ColBirthDate}
	PersonColumns    = []string{ColPersonID, ColMotherID, ColFatherID}
	IncomeColumns    = []string{ColPersonID, ColYear, ColTotalIncome}
)

// Provider hands out the pre-validated register tables by name. A table the
// source does not have is reported as *relation.MissingTableError.
type Provider interface {
	Diagnosis(ctx context.Context) (relation.Relation[models.DiagnosisRecord], error)
	Child(ctx context.Context) (relation.Relation[models.ChildRecord], error)
	Person(ctx context.Context) (relation.Relation[models.PersonRecord], error)
	Income(ctx context.Context) (relation.Relation[models.IncomeRecord], error)
}
