package linkage

import (
	"testing"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func exposedRel(rows ...models.ExposedChild) relation.Relation[models.ExposedChild] {
	return relation.FromSlice("ExposedGroup", nil, rows)
}

func poolRel(rows ...models.UnexposedCandidate) relation.Relation[models.UnexposedCandidate] {
	return relation.FromSlice("UnexposedPool", nil, rows)
}

func TestMatchAllKeepsEveryCandidate(t *testing.T) {
	born := day(2008, 1, 1)
	exposed := exposedRel(
		models.ExposedChild{ChildID: "E1", IndexDate: day(2010, 5, 1), BirthDate: models.TimePtr(born)},
		models.ExposedChild{ChildID: "E2", IndexDate: day(2011, 3, 1), BirthDate: models.TimePtr(born)},
	)
	pool := poolRel(
		models.UnexposedCandidate{ChildID: "U1", FamilyID: models.StringPtr("F1"), BirthDate: born},
		models.UnexposedCandidate{ChildID: "U2", FamilyID: models.StringPtr("F2"), BirthDate: born},
		models.UnexposedCandidate{ChildID: "U3", BirthDate: born},
	)

	exposedOut, matched := NewMatcher(PolicyAll, 0).Match(exposed, pool)
	rows, err := matched.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 2x2 matches without consumption, got %d: %+v", len(rows), rows)
	}
	if rows[0].ChildID != "U1" || rows[0].MatchedTo != "E1" || !rows[0].IndexDate.Equal(day(2010, 5, 1)) {
		t.Fatalf("unexpected first match %+v", rows[0])
	}
	if rows[2].ChildID != "U1" || rows[2].MatchedTo != "E2" || !rows[2].IndexDate.Equal(day(2011, 3, 1)) {
		t.Fatalf("expected U1 reused for E2, got %+v", rows[2])
	}
	for _, r := range rows {
		if r.ChildID == "U3" {
			t.Fatal("candidate without family_id must not match")
		}
	}

	n, _ := exposedOut.Count()
	if n != 2 {
		t.Fatalf("exposed cohort must be unchanged, got %d rows", n)
	}
}

func TestUnmatchedExposedOnlyInExposedCohort(t *testing.T) {
	exposed := exposedRel(
		models.ExposedChild{ChildID: "E1", IndexDate: day(2010, 5, 1), BirthDate: models.TimePtr(day(2008, 1, 1))},
		models.ExposedChild{ChildID: "E2", IndexDate: day(2010, 5, 1)},
	)
	pool := poolRel(models.UnexposedCandidate{ChildID: "U1", FamilyID: models.StringPtr("F1"), BirthDate: day(2009, 1, 1)})

	exposedOut, matched := NewMatcher(PolicyAll, 0).Match(exposed, pool)
	rows, _ := matched.Collect()
	if len(rows) != 0 {
		t.Fatalf("expected no matches, got %+v", rows)
	}
	all, _ := exposedOut.Collect()
	if len(all) != 2 {
		t.Fatalf("expected both exposed children kept, got %d", len(all))
	}
}

func TestWithoutReplacementConsumesCandidates(t *testing.T) {
	born := day(2008, 1, 1)
	exposed := exposedRel(
		models.ExposedChild{ChildID: "E1", IndexDate: day(2010, 5, 1), BirthDate: models.TimePtr(born)},
		models.ExposedChild{ChildID: "E2", IndexDate: day(2011, 3, 1), BirthDate: models.TimePtr(born)},
	)
	pool := poolRel(
		models.UnexposedCandidate{ChildID: "E1", FamilyID: models.StringPtr("FE"), BirthDate: born},
		models.UnexposedCandidate{ChildID: "U1", FamilyID: models.StringPtr("F1"), BirthDate: born},
		models.UnexposedCandidate{ChildID: "U2", FamilyID: models.StringPtr("F2"), BirthDate: born},
		models.UnexposedCandidate{ChildID: "U3", FamilyID: models.StringPtr("F3"), BirthDate: born},
	)

	_, matched := NewMatcher(PolicyWithoutReplacement, 1).Match(exposed, pool)
	rows, err := matched.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected one match per exposed child, got %+v", rows)
	}
	if rows[0].ChildID != "U1" || rows[0].MatchedTo != "E1" {
		t.Fatalf("unexpected first match %+v", rows[0])
	}
	if rows[1].ChildID != "U2" || rows[1].MatchedTo != "E2" {
		t.Fatalf("expected U1 consumed, got %+v", rows[1])
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": PolicyAll, "ALL": PolicyAll, "without_replacement": PolicyWithoutReplacement}
	for in, want := range cases {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("nearest"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
