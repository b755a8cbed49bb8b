package income

import (
	"sort"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
)

const (
	parentLinksRelation    = "ParentLinks"
	parentalIncomeRelation = "ParentalIncome"
)

// LinkChildrenToParents looks up each child's mother and father in the
// Person table. Children without a Person row keep nil parents.
func LinkChildrenToParents(child relation.Relation[models.ChildRecord], person relation.Relation[models.PersonRecord]) (relation.Relation[models.ParentLink], error) {
	if !child.Valid() {
		return relation.Relation[models.ParentLink]{}, &relation.MissingTableError{Table: tables.Child}
	}
	if !person.Valid() {
		return relation.Relation[models.ParentLink]{}, &relation.MissingTableError{Table: tables.Person}
	}
	if err := child.Require(tables.ColChildID); err != nil {
		return relation.Relation[models.ParentLink]{}, err
	}
	if err := person.Require(tables.PersonColumns...); err != nil {
		return relation.Relation[models.ParentLink]{}, err
	}

	joined := relation.LeftJoin(child, person,
		func(c models.ChildRecord) (string, bool) { return c.ChildID, c.ChildID != "" },
		func(p models.PersonRecord) (string, bool) { return p.PersonID, p.PersonID != "" },
	)
	links := relation.Project(joined, parentLinksRelation,
		relation.NewColumns(tables.ColChildID, tables.ColMotherID, tables.ColFatherID),
		func(row relation.Joined[models.ChildRecord, models.PersonRecord]) models.ParentLink {
			link := models.ParentLink{ChildID: row.Left.ChildID}
			if row.Matched {
				link.MotherID = row.Right.MotherID
				link.FatherID = row.Right.FatherID
			}
			return link
		})
	return relation.Distinct(links, func(l models.ParentLink) string { return l.ChildID }), nil
}

type childYear struct {
	childID string
	year    int
}

// PrepareParentalIncome sums both parents' total_income per child and year.
// Years where neither parent has an income row are left out. Output is
// ordered by child_id, then year.
func PrepareParentalIncome(links relation.Relation[models.ParentLink], income relation.Relation[models.IncomeRecord]) (relation.Relation[models.ParentalIncome], error) {
	if !income.Valid() {
		return relation.Relation[models.ParentalIncome]{}, &relation.MissingTableError{Table: tables.Income}
	}
	if err := income.Require(tables.IncomeColumns...); err != nil {
		return relation.Relation[models.ParentalIncome]{}, err
	}

	columns := relation.NewColumns(tables.ColChildID, tables.ColYear, "parental_total_income")
	return relation.New(parentalIncomeRelation, columns, func(yield func(models.ParentalIncome) bool) error {
		byPerson := make(map[string][]models.IncomeRecord)
		err := income.Each(func(rec models.IncomeRecord) error {
			byPerson[rec.PersonID] = append(byPerson[rec.PersonID], rec)
			return nil
		})
		if err != nil {
			return err
		}

		totals := make(map[childYear]float64)
		err = links.Each(func(link models.ParentLink) error {
			for _, parent := range []*string{link.MotherID, link.FatherID} {
				if parent == nil {
					continue
				}
				for _, rec := range byPerson[*parent] {
					totals[childYear{childID: link.ChildID, year: rec.Year}] += rec.TotalIncome
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		keys := make([]childYear, 0, len(totals))
		for k := range totals {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].childID != keys[j].childID {
				return keys[i].childID < keys[j].childID
			}
			return keys[i].year < keys[j].year
		})
		for _, k := range keys {
			if !yield(models.ParentalIncome{ChildID: k.childID, Year: k.year, ParentalTotalIncome: totals[k]}) {
				return nil
			}
		}
		return nil
	}), nil
}
