package cohort

import (
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
)

const unexposedRelation = "UnexposedPool"

var unexposedColumns = relation.NewColumns(tables.ColFamilyID, tables.ColChildID, tables.ColBirthDate)

type candidateKey struct {
	familyID  string
	hasFamily bool
	childID   string
	birthDate int64
}

// CreateUnexposedGroup lists children born inside the window, one row per
// (family_id, child_id, birth_date). Unlike the exposed group there is no
// fallback: without birth_date the pool cannot be built.
func CreateUnexposedGroup(child relation.Relation[models.ChildRecord], window Window) (relation.Relation[models.UnexposedCandidate], error) {
	if !child.Valid() {
		return relation.Relation[models.UnexposedCandidate]{}, &relation.MissingTableError{Table: tables.Child}
	}
	if err := child.Require(tables.ColChildID, tables.ColBirthDate); err != nil {
		return relation.Relation[models.UnexposedCandidate]{}, err
	}
	hasFamily := child.Columns().Has(tables.ColFamilyID)

	born := child.Filter(func(rec models.ChildRecord) bool {
		return rec.BirthDate != nil && window.Contains(*rec.BirthDate)
	})
	pool := relation.Project(born, unexposedRelation, unexposedColumns, func(rec models.ChildRecord) models.UnexposedCandidate {
		out := models.UnexposedCandidate{ChildID: rec.ChildID, BirthDate: models.Date(*rec.BirthDate)}
		if hasFamily {
			out.FamilyID = rec.FamilyID
		}
		return out
	})
	return relation.Distinct(pool, func(c models.UnexposedCandidate) candidateKey {
		k := candidateKey{childID: c.ChildID, birthDate: c.BirthDate.Unix()}
		if c.FamilyID != nil {
			k.familyID, k.hasFamily = *c.FamilyID, true
		}
		return k
	}), nil
}
