package cohort

import (
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
)

const exposedRelation = "ExposedGroup"

var exposedColumns = relation.NewColumns(tables.ColFamilyID, tables.ColChildID, "index_date", tables.ColBirthDate)

// Degradation describes a filter that was skipped because the input lacked
// an optional column. The run continues with relaxed semantics.
type Degradation struct {
	Stage   string   `json:"stage"`
	Filter  string   `json:"filter"`
	Missing []string `json:"missing"`
}

func (d *Degradation) Warning() string {
	if d == nil {
		return ""
	}
	return d.Stage + ": " + d.Filter + " bypassed, Child table has no " + joinNames(d.Missing)
}

// ExposedDegradation reports the degraded mode CreateExposedGroup will run
// in for a Child table with the given columns, or nil.
func ExposedDegradation(child relation.Columns) *Degradation {
	if child.Has(tables.ColBirthDate) {
		return nil
	}
	return &Degradation{
		Stage:   StageExposed,
		Filter:  "age_at_diagnosis",
		Missing: []string{tables.ColBirthDate},
	}
}

type exposedKey struct {
	familyID  string
	hasFamily bool
	childID   string
	indexDate int64
	birthDate int64
	hasBirth  bool
}

// CreateExposedGroup links severe cases to the Child table on person_id =
// child_id and keeps children diagnosed within maxAge of birth. Without a
// birth_date column the age filter is bypassed and the Degradation says so.
// Rows are unique on (family_id, child_id, index_date, birth_date).
func CreateExposedGroup(cases relation.Relation[models.DiagnosisRecord], child relation.Relation[models.ChildRecord], maxAge time.Duration) (relation.Relation[models.ExposedChild], *Degradation, error) {
	if !child.Valid() {
		return relation.Relation[models.ExposedChild]{}, nil, &relation.MissingTableError{Table: tables.Child}
	}
	if err := cases.Require(tables.ColPersonID, tables.ColDiagnosisDate); err != nil {
		return relation.Relation[models.ExposedChild]{}, nil, err
	}
	if err := child.Require(tables.ColChildID); err != nil {
		return relation.Relation[models.ExposedChild]{}, nil, err
	}

	degraded := ExposedDegradation(child.Columns())
	ageFilter := degraded == nil
	hasFamily := child.Columns().Has(tables.ColFamilyID)
	if degraded != nil {
		logger.WithFields(map[string]interface{}{
			"stage":    StageExposed,
			"degraded": degraded.Filter,
			"missing":  degraded.Missing,
		}).Warn("age-at-diagnosis filter bypassed")
	}

	joined := relation.LeftJoin(cases, child,
		func(rec models.DiagnosisRecord) (string, bool) { return rec.PersonID, rec.PersonID != "" },
		func(rec models.ChildRecord) (string, bool) { return rec.ChildID, rec.ChildID != "" },
	)

	kept := joined.Filter(func(row relation.Joined[models.DiagnosisRecord, models.ChildRecord]) bool {
		if !ageFilter {
			return true
		}
		if !row.Matched || row.Right.BirthDate == nil {
			return false
		}
		gap := models.Date(row.Left.DiagnosisDate).Sub(models.Date(*row.Right.BirthDate))
		return gap <= maxAge
	})

	projected := relation.Project(kept, exposedRelation, exposedColumns, func(row relation.Joined[models.DiagnosisRecord, models.ChildRecord]) models.ExposedChild {
		out := models.ExposedChild{
			ChildID:   row.Left.PersonID,
			IndexDate: models.Date(row.Left.DiagnosisDate),
		}
		if row.Matched {
			out.ChildID = row.Right.ChildID
			if hasFamily {
				out.FamilyID = row.Right.FamilyID
			}
			if ageFilter && row.Right.BirthDate != nil {
				out.BirthDate = models.TimePtr(models.Date(*row.Right.BirthDate))
			}
		}
		return out
	})

	return relation.Distinct(projected, func(e models.ExposedChild) exposedKey {
		k := exposedKey{childID: e.ChildID, indexDate: e.IndexDate.Unix()}
		if e.FamilyID != nil {
			k.familyID, k.hasFamily = *e.FamilyID, true
		}
		if e.BirthDate != nil {
			k.birthDate, k.hasBirth = e.BirthDate.Unix(), true
		}
		return k
	}), degraded, nil
}
