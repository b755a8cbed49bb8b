package income

import (
	"reflect"
	"testing"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
)

func TestParentalIncomeSumsBothParents(t *testing.T) {
	child := relation.FromSlice(tables.Child, relation.NewColumns(tables.ChildColumns...), []models.ChildRecord{
		{ChildID: "C1"},
		{ChildID: "C2"},
		{ChildID: "C3"},
	})
	person := relation.FromSlice(tables.Person, relation.NewColumns(tables.PersonColumns...), []models.PersonRecord{
		{PersonID: "C1", MotherID: models.StringPtr("M1"), FatherID: models.StringPtr("P1")},
		{PersonID: "C2", MotherID: models.StringPtr("M2")},
	})
	income := relation.FromSlice(tables.Income, relation.NewColumns(tables.IncomeColumns...), []models.IncomeRecord{
		{PersonID: "M1", Year: 2010, TotalIncome: 100},
		{PersonID: "P1", Year: 2010, TotalIncome: 250},
		{PersonID: "P1", Year: 2011, TotalIncome: 300},
		{PersonID: "M2", Year: 2010, TotalIncome: 50},
	})

	links, err := LinkChildrenToParents(child, person)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	linked, _ := links.Collect()
	if len(linked) != 3 || linked[2].MotherID != nil {
		t.Fatalf("unexpected links %+v", linked)
	}

	prepared, err := PrepareParentalIncome(links, income)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := prepared.Collect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []models.ParentalIncome{
		{ChildID: "C1", Year: 2010, ParentalTotalIncome: 350},
		{ChildID: "C1", Year: 2011, ParentalTotalIncome: 300},
		{ChildID: "C2", Year: 2010, ParentalTotalIncome: 50},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("got %+v, want %+v", rows, want)
	}
}

func TestLinkRequiresPersonTable(t *testing.T) {
	child := relation.FromSlice[models.ChildRecord](tables.Child, relation.NewColumns(tables.ChildColumns...), nil)
	_, err := LinkChildrenToParents(child, relation.Relation[models.PersonRecord]{})
	if !relation.IsMissingTable(err) {
		t.Fatalf("expected MissingTableError, got %v", err)
	}
}
