package cohort

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
	"github.com/synaptica-ai/registercohort/pkg/terminology"
)

func diagnosisRel(rows ...models.DiagnosisRecord) relation.Relation[models.DiagnosisRecord] {
	return relation.FromSlice(tables.Diagnosis, relation.NewColumns(tables.DiagnosisColumns...), rows)
}

func childRel(columns []string, rows ...models.ChildRecord) relation.Relation[models.ChildRecord] {
	return relation.FromSlice(tables.Child, relation.NewColumns(columns...), rows)
}

func congenital() terminology.Lookup {
	return terminology.ExpandMap(map[string]string{"Q20": "congenital"})
}

func TestSevereCaseScenario(t *testing.T) {
	diagnosis := diagnosisRel(models.DiagnosisRecord{PersonID: "A", DiagnosisCode: "Q20", DiagnosisDate: date(2010, 5, 1)})
	child := childRel(tables.ChildColumns, models.ChildRecord{ChildID: "A", FamilyID: models.StringPtr("F1"), BirthDate: models.TimePtr(date(2008, 1, 1))})
	windows := DefaultWindows()

	severe, err := IdentifySevereCases(diagnosis, congenital(), windows.Diagnosis)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := severe.Count(); n != 1 {
		t.Fatalf("expected 1 severe case, got %d", n)
	}

	exposed, degraded, err := CreateExposedGroup(severe, child, windows.MaxAgeAtDiagnosis)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if degraded != nil {
		t.Fatalf("unexpected degradation %+v", degraded)
	}
	rows, err := exposed.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one exposed child, got %+v", rows)
	}
	got := rows[0]
	if got.FamilyID == nil || *got.FamilyID != "F1" || got.ChildID != "A" || !got.IndexDate.Equal(date(2010, 5, 1)) {
		t.Fatalf("unexpected exposed row %+v", got)
	}
	if got.BirthDate == nil || !got.BirthDate.Equal(date(2008, 1, 1)) {
		t.Fatalf("expected birth date carried through, got %v", got.BirthDate)
	}
}

func TestEmptyLookupSelectsNothing(t *testing.T) {
	diagnosis := diagnosisRel(models.DiagnosisRecord{PersonID: "A", DiagnosisCode: "Q20", DiagnosisDate: date(2010, 5, 1)})
	child := childRel(tables.ChildColumns, models.ChildRecord{ChildID: "A", FamilyID: models.StringPtr("F1"), BirthDate: models.TimePtr(date(2008, 1, 1))})
	windows := DefaultWindows()

	severe, err := IdentifySevereCases(diagnosis, terminology.Expand(nil), windows.Diagnosis)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exposed, _, err := CreateExposedGroup(severe, child, windows.MaxAgeAtDiagnosis)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool, err := CreateUnexposedGroup(child, windows.Birth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, matched := MatchCohorts(exposed, pool)

	for name, count := range map[string]func() (int, error){
		"severe":  severe.Count,
		"exposed": exposed.Count,
		"matched": matched.Count,
	} {
		n, err := count()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if n != 0 {
			t.Fatalf("%s: expected 0 rows, got %d", name, n)
		}
	}
}

func TestSevereCasesRespectDiagnosisWindow(t *testing.T) {
	diagnosis := diagnosisRel(
		models.DiagnosisRecord{PersonID: "early", DiagnosisCode: "Q20", DiagnosisDate: date(1999, 12, 31)},
		models.DiagnosisRecord{PersonID: "first", DiagnosisCode: "Q20", DiagnosisDate: date(2000, 1, 1)},
		models.DiagnosisRecord{PersonID: "last", DiagnosisCode: "Q20", DiagnosisDate: date(2018, 12, 31)},
		models.DiagnosisRecord{PersonID: "late", DiagnosisCode: "Q20", DiagnosisDate: date(2019, 1, 1)},
		models.DiagnosisRecord{PersonID: "other", DiagnosisCode: "J45", DiagnosisDate: date(2010, 1, 1)},
	)
	window := DefaultWindows().Diagnosis

	severe, err := IdentifySevereCases(diagnosis, congenital(), window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ := severe.Collect()
	var ids []string
	for _, r := range rows {
		if !window.Contains(r.DiagnosisDate) {
			t.Fatalf("row outside window: %+v", r)
		}
		ids = append(ids, r.PersonID)
	}
	if !reflect.DeepEqual(ids, []string{"first", "last"}) {
		t.Fatalf("unexpected severe cases %v", ids)
	}
}

func TestExposedGroupAgeCutoff(t *testing.T) {
	born := date(2005, 3, 1)
	maxAge := DefaultWindows().MaxAgeAtDiagnosis
	cases := diagnosisRel(
		models.DiagnosisRecord{PersonID: "C", DiagnosisCode: "Q20", DiagnosisDate: born.Add(maxAge)},
		models.DiagnosisRecord{PersonID: "C", DiagnosisCode: "Q20", DiagnosisDate: born.Add(maxAge + 24*time.Hour)},
		models.DiagnosisRecord{PersonID: "orphan", DiagnosisCode: "Q20", DiagnosisDate: born},
	)
	child := childRel(tables.ChildColumns, models.ChildRecord{ChildID: "C", FamilyID: models.StringPtr("F"), BirthDate: models.TimePtr(born)})

	exposed, _, err := CreateExposedGroup(cases, child, maxAge)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ := exposed.Collect()
	if len(rows) != 1 {
		t.Fatalf("expected only the row at the 1825 day boundary, got %+v", rows)
	}
	if gap := rows[0].IndexDate.Sub(*rows[0].BirthDate); gap > 1825*24*time.Hour {
		t.Fatalf("age gap %v exceeds cutoff", gap)
	}
}

func TestExposedGroupDeduplicates(t *testing.T) {
	cases := diagnosisRel(
		models.DiagnosisRecord{PersonID: "A", DiagnosisCode: "Q20", DiagnosisDate: date(2010, 5, 1)},
		models.DiagnosisRecord{PersonID: "A", DiagnosisCode: "Q21", DiagnosisDate: date(2010, 5, 1)},
	)
	child := childRel(tables.ChildColumns, models.ChildRecord{ChildID: "A", FamilyID: models.StringPtr("F1"), BirthDate: models.TimePtr(date(2008, 1, 1))})

	exposed, _, err := CreateExposedGroup(cases, child, DefaultWindows().MaxAgeAtDiagnosis)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := exposed.Count(); n != 1 {
		t.Fatalf("expected duplicate triples collapsed, got %d", n)
	}
}

func TestExposedGroupDegradedWithoutBirthDate(t *testing.T) {
	cases := diagnosisRel(
		models.DiagnosisRecord{PersonID: "A", DiagnosisCode: "Q20", DiagnosisDate: date(2017, 5, 1)},
		models.DiagnosisRecord{PersonID: "B", DiagnosisCode: "Q20", DiagnosisDate: date(2012, 5, 1)},
	)
	child := childRel([]string{tables.ColChildID, tables.ColFamilyID},
		models.ChildRecord{ChildID: "A", FamilyID: models.StringPtr("F1")},
	)

	exposed, degraded, err := CreateExposedGroup(cases, child, DefaultWindows().MaxAgeAtDiagnosis)
	if err != nil {
		t.Fatalf("expected degraded mode, got error %v", err)
	}
	if degraded == nil || degraded.Filter != "age_at_diagnosis" || !reflect.DeepEqual(degraded.Missing, []string{tables.ColBirthDate}) {
		t.Fatalf("unexpected degradation %+v", degraded)
	}
	rows, _ := exposed.Collect()
	if len(rows) != 2 {
		t.Fatalf("expected every joined row kept, got %+v", rows)
	}
	if rows[0].FamilyID == nil || *rows[0].FamilyID != "F1" || rows[0].BirthDate != nil {
		t.Fatalf("unexpected matched row %+v", rows[0])
	}
	if rows[1].ChildID != "B" || rows[1].FamilyID != nil {
		t.Fatalf("unexpected unmatched row %+v", rows[1])
	}
}

func TestUnexposedPoolRespectsBirthWindow(t *testing.T) {
	window := DefaultWindows().Birth
	child := childRel(tables.ChildColumns,
		models.ChildRecord{ChildID: "old", FamilyID: models.StringPtr("F1"), BirthDate: models.TimePtr(date(1994, 12, 31))},
		models.ChildRecord{ChildID: "in", FamilyID: models.StringPtr("F2"), BirthDate: models.TimePtr(date(1995, 1, 1))},
		models.ChildRecord{ChildID: "in", FamilyID: models.StringPtr("F2"), BirthDate: models.TimePtr(date(1995, 1, 1))},
		models.ChildRecord{ChildID: "edge", FamilyID: models.StringPtr("F3"), BirthDate: models.TimePtr(date(2018, 12, 31))},
		models.ChildRecord{ChildID: "new", FamilyID: models.StringPtr("F4"), BirthDate: models.TimePtr(date(2019, 1, 1))},
		models.ChildRecord{ChildID: "unknown", FamilyID: models.StringPtr("F5")},
	)

	pool, err := CreateUnexposedGroup(child, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ := pool.Collect()
	if len(rows) != 2 {
		t.Fatalf("expected two distinct candidates, got %+v", rows)
	}
	for _, r := range rows {
		if !window.Contains(r.BirthDate) {
			t.Fatalf("candidate outside birth window: %+v", r)
		}
	}
}

func TestUnexposedPoolRequiresBirthDate(t *testing.T) {
	child := childRel([]string{tables.ColChildID, tables.ColFamilyID})
	_, err := CreateUnexposedGroup(child, DefaultWindows().Birth)
	var missing *relation.MissingColumnError
	if !errors.As(err, &missing) || missing.Table != tables.Child {
		t.Fatalf("expected MissingColumnError for Child, got %v", err)
	}
}

func TestMissingTablesAndColumns(t *testing.T) {
	windows := DefaultWindows()

	_, err := IdentifySevereCases(relation.Relation[models.DiagnosisRecord]{}, congenital(), windows.Diagnosis)
	if !relation.IsMissingTable(err) {
		t.Fatalf("expected MissingTableError, got %v", err)
	}

	partial := relation.FromSlice[models.DiagnosisRecord](tables.Diagnosis, relation.NewColumns(tables.ColPersonID), nil)
	_, err = IdentifySevereCases(partial, congenital(), windows.Diagnosis)
	var missing *relation.MissingColumnError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingColumnError, got %v", err)
	}
	if !reflect.DeepEqual(missing.Columns, []string{tables.ColDiagnosisCode, tables.ColDiagnosisDate}) {
		t.Fatalf("unexpected missing columns %v", missing.Columns)
	}

	_, _, err = CreateExposedGroup(diagnosisRel(), relation.Relation[models.ChildRecord]{}, windows.MaxAgeAtDiagnosis)
	if !relation.IsMissingTable(err) {
		t.Fatalf("expected MissingTableError for Child, got %v", err)
	}
}

func TestStagesAreDeterministic(t *testing.T) {
	diagnosis := diagnosisRel(
		models.DiagnosisRecord{PersonID: "A", DiagnosisCode: "Q20", DiagnosisDate: date(2010, 5, 1)},
		models.DiagnosisRecord{PersonID: "B", DiagnosisCode: "Q20", DiagnosisDate: date(2011, 7, 1)},
		models.DiagnosisRecord{PersonID: "A", DiagnosisCode: "Q20", DiagnosisDate: date(2012, 1, 1)},
	)
	child := childRel(tables.ChildColumns,
		models.ChildRecord{ChildID: "A", FamilyID: models.StringPtr("F1"), BirthDate: models.TimePtr(date(2008, 1, 1))},
		models.ChildRecord{ChildID: "B", FamilyID: models.StringPtr("F2"), BirthDate: models.TimePtr(date(2009, 6, 1))},
		models.ChildRecord{ChildID: "C", FamilyID: models.StringPtr("F3"), BirthDate: models.TimePtr(date(2008, 1, 1))},
		models.ChildRecord{ChildID: "D", FamilyID: models.StringPtr("F4"), BirthDate: models.TimePtr(date(2009, 6, 1))},
	)

	run := func() ([]models.ExposedChild, []models.MatchedChild) {
		windows := DefaultWindows()
		severe, err := IdentifySevereCases(diagnosis, congenital(), windows.Diagnosis)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		exposed, _, err := CreateExposedGroup(severe, child, windows.MaxAgeAtDiagnosis)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pool, err := CreateUnexposedGroup(child, windows.Birth)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		exp, matched := MatchCohorts(exposed, pool)
		expRows, _ := exp.Collect()
		matchedRows, _ := matched.Collect()
		return expRows, matchedRows
	}

	exp1, m1 := run()
	exp2, m2 := run()
	if !reflect.DeepEqual(exp1, exp2) || !reflect.DeepEqual(m1, m2) {
		t.Fatal("repeated runs differ")
	}
	if len(exp1) != 3 {
		t.Fatalf("expected 3 exposed rows, got %+v", exp1)
	}
	// A matches itself and C, twice over two index dates; B matches itself and D.
	if len(m1) != 6 {
		t.Fatalf("expected 6 matched rows, got %+v", m1)
	}
}
