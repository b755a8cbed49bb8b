package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
)

var errEmptyTable = errors.New("table has no rows")

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type TableReport struct {
	Table   string         `json:"table"`
	Present bool           `json:"present"`
	Rows    int            `json:"rows"`
	Nulls   map[string]int `json:"nulls,omitempty"`
	Issues  []string       `json:"issues,omitempty"`
}

type Report struct {
	Tables []TableReport `json:"tables"`
}

// Warnings flattens every issue as "<table>: <issue>".
func (r Report) Warnings() []string {
	var out []string
	for _, t := range r.Tables {
		for _, issue := range t.Issues {
			out = append(out, t.Table+": "+issue)
		}
	}
	return out
}

type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// Validate profiles the register tables. Diagnosis and Child must exist and
// hold rows; Person and Income are optional. Everything else is reported,
// not rejected.
func (v *Validator) Validate(ctx context.Context, provider tables.Provider) (Report, error) {
	var report Report
	today := models.Date(v.now())

	diagnosis, err := provider.Diagnosis(ctx)
	if err != nil {
		return report, err
	}
	child, err := provider.Child(ctx)
	if err != nil {
		return report, err
	}

	childReport := TableReport{Table: tables.Child, Present: true, Nulls: map[string]int{}}
	births := make(map[string]time.Time)
	err = child.Each(func(rec models.ChildRecord) error {
		childReport.Rows++
		if rec.FamilyID == nil && child.Columns().Has(tables.ColFamilyID) {
			childReport.Nulls[tables.ColFamilyID]++
		}
		if rec.BirthDate == nil {
			if child.Columns().Has(tables.ColBirthDate) {
				childReport.Nulls[tables.ColBirthDate]++
			}
			return nil
		}
		births[rec.ChildID] = models.Date(*rec.BirthDate)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("scan %s: %w", tables.Child, err)
	}
	if childReport.Rows == 0 {
		return report, ValidationError{reason: fmt.Errorf("%s: %w", tables.Child, errEmptyTable)}
	}
	future := 0
	for _, born := range births {
		if born.After(today) {
			future++
		}
	}
	if future > 0 {
		childReport.Issues = append(childReport.Issues, fmt.Sprintf("%d children born in the future", future))
	}
	if missing := child.Columns().Missing(tables.ChildColumns...); len(missing) > 0 {
		childReport.Issues = append(childReport.Issues, fmt.Sprintf("missing optional columns %v", missing))
	}

	diagReport := TableReport{Table: tables.Diagnosis, Present: true}
	beforeBirth := 0
	err = diagnosis.Each(func(rec models.DiagnosisRecord) error {
		diagReport.Rows++
		if born, ok := births[rec.PersonID]; ok && models.Date(rec.DiagnosisDate).Before(born) {
			beforeBirth++
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("scan %s: %w", tables.Diagnosis, err)
	}
	if diagReport.Rows == 0 {
		return report, ValidationError{reason: fmt.Errorf("%s: %w", tables.Diagnosis, errEmptyTable)}
	}
	if beforeBirth > 0 {
		diagReport.Issues = append(diagReport.Issues, fmt.Sprintf("%d diagnoses dated before birth", beforeBirth))
	}

	report.Tables = append(report.Tables, diagReport, childReport)

	person, err := provider.Person(ctx)
	report.Tables = append(report.Tables, optionalReport(tables.Person, person, err, func(rec models.PersonRecord, nulls map[string]int) {
		if rec.MotherID == nil {
			nulls[tables.ColMotherID]++
		}
		if rec.FatherID == nil {
			nulls[tables.ColFatherID]++
		}
	}))
	income, err := provider.Income(ctx)
	report.Tables = append(report.Tables, optionalReport(tables.Income, income, err, func(models.IncomeRecord, map[string]int) {}))

	for _, t := range report.Tables {
		entry := logger.WithFields(map[string]interface{}{
			"table":   t.Table,
			"present": t.Present,
			"rows":    t.Rows,
			"nulls":   t.Nulls,
		})
		if len(t.Issues) > 0 {
			entry.WithField("issues", t.Issues).Warn("table validation issues")
			continue
		}
		entry.Info("table validated")
	}
	return report, nil
}

func optionalReport[T any](name string, rel relation.Relation[T], openErr error, inspect func(T, map[string]int)) TableReport {
	report := TableReport{Table: name, Nulls: map[string]int{}}
	if openErr != nil {
		if relation.IsMissingTable(openErr) {
			report.Issues = []string{"table not available"}
		} else {
			report.Issues = []string{openErr.Error()}
		}
		return report
	}
	report.Present = true
	err := rel.Each(func(row T) error {
		report.Rows++
		inspect(row, report.Nulls)
		return nil
	})
	if err != nil {
		report.Issues = append(report.Issues, err.Error())
	}
	return report
}
