package cohort

import (
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
	"github.com/synaptica-ai/registercohort/pkg/terminology"
)

const severeCasesRelation = "SevereChronicCases"

// IdentifySevereCases keeps diagnosis rows whose code is in the lookup and
// whose date lies in the window. A person may contribute several rows.
func IdentifySevereCases(diagnosis relation.Relation[models.DiagnosisRecord], lookup terminology.Lookup, window Window) (relation.Relation[models.DiagnosisRecord], error) {
	if !diagnosis.Valid() {
		return relation.Relation[models.DiagnosisRecord]{}, &relation.MissingTableError{Table: tables.Diagnosis}
	}
	if err := diagnosis.Require(tables.DiagnosisColumns...); err != nil {
		return relation.Relation[models.DiagnosisRecord]{}, err
	}
	severe := diagnosis.Filter(func(rec models.DiagnosisRecord) bool {
		return lookup.Contains(rec.DiagnosisCode) && window.Contains(rec.DiagnosisDate)
	})
	return relation.Project(severe, severeCasesRelation, diagnosis.Columns(), func(rec models.DiagnosisRecord) models.DiagnosisRecord {
		return rec
	}), nil
}
