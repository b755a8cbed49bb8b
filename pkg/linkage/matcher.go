package linkage

import (
	"fmt"
	"strings"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
)

type Policy string

const (
	// PolicyAll keeps every candidate sharing the key. A candidate can be
	// matched to several exposed children, including to itself when the
	// exposed child is also in the pool.
	PolicyAll Policy = "all"
	// PolicyWithoutReplacement walks exposed children in order and hands out
	// each candidate at most once, never to the child itself.
	PolicyWithoutReplacement Policy = "without_replacement"
)

const matchedRelation = "UnexposedCohort"

var matchedColumns = relation.NewColumns("family_id", "child_id", "index_date", "matched_to")

func ParsePolicy(value string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(value))) {
	case "", PolicyAll:
		return PolicyAll, nil
	case PolicyWithoutReplacement:
		return PolicyWithoutReplacement, nil
	default:
		return "", fmt.Errorf("unknown match policy %q", value)
	}
}

type Matcher struct {
	policy Policy
	ratio  int
}

// NewMatcher builds a matcher. ratio caps matches per exposed child under
// PolicyWithoutReplacement; 0 means unlimited. PolicyAll ignores it.
func NewMatcher(policy Policy, ratio int) *Matcher {
	if policy == "" {
		policy = PolicyAll
	}
	if ratio < 0 {
		ratio = 0
	}
	return &Matcher{policy: policy, ratio: ratio}
}

func (m *Matcher) Policy() Policy {
	return m.policy
}

func (m *Matcher) Ratio() int {
	return m.ratio
}

// Key is the deterministic matching key: the birth date as a calendar day.
func Key(birthDate *time.Time) (string, bool) {
	if birthDate == nil {
		return "", false
	}
	return models.Date(*birthDate).Format("2006-01-02"), true
}

// Match pairs exposed children with candidates sharing their key. The
// exposed cohort is returned unchanged; exposed children without a
// candidate appear only there. Matched rows carry the candidate's family and
// child ids with the exposed child's index date. Candidates without a
// family_id never match.
func (m *Matcher) Match(exposed relation.Relation[models.ExposedChild], pool relation.Relation[models.UnexposedCandidate]) (relation.Relation[models.ExposedChild], relation.Relation[models.MatchedChild]) {
	if m.policy == PolicyWithoutReplacement {
		return exposed, m.withoutReplacement(exposed, pool)
	}

	joined := relation.LeftJoin(exposed, pool,
		func(e models.ExposedChild) (string, bool) { return Key(e.BirthDate) },
		func(c models.UnexposedCandidate) (string, bool) { return Key(&c.BirthDate) },
	)
	hits := joined.Filter(func(row relation.Joined[models.ExposedChild, models.UnexposedCandidate]) bool {
		return row.Matched && row.Right.FamilyID != nil
	})
	return exposed, relation.Project(hits, matchedRelation, matchedColumns, func(row relation.Joined[models.ExposedChild, models.UnexposedCandidate]) models.MatchedChild {
		return models.MatchedChild{
			FamilyID:  *row.Right.FamilyID,
			ChildID:   row.Right.ChildID,
			IndexDate: row.Left.IndexDate,
			MatchedTo: row.Left.ChildID,
		}
	})
}

func (m *Matcher) withoutReplacement(exposed relation.Relation[models.ExposedChild], pool relation.Relation[models.UnexposedCandidate]) relation.Relation[models.MatchedChild] {
	return relation.New(matchedRelation, matchedColumns, func(yield func(models.MatchedChild) bool) error {
		exposedIDs := make(map[string]struct{})
		rows, err := exposed.Collect()
		if err != nil {
			return err
		}
		for _, e := range rows {
			exposedIDs[e.ChildID] = struct{}{}
		}

		buckets := make(map[string][]models.UnexposedCandidate)
		err = pool.Each(func(c models.UnexposedCandidate) error {
			if c.FamilyID == nil {
				return nil
			}
			if _, isExposed := exposedIDs[c.ChildID]; isExposed {
				return nil
			}
			if k, ok := Key(&c.BirthDate); ok {
				buckets[k] = append(buckets[k], c)
			}
			return nil
		})
		if err != nil {
			return err
		}

		used := make(map[string]struct{})
		for _, e := range rows {
			k, ok := Key(e.BirthDate)
			if !ok {
				continue
			}
			taken := 0
			for _, c := range buckets[k] {
				if m.ratio > 0 && taken >= m.ratio {
					break
				}
				if _, dup := used[c.ChildID]; dup {
					continue
				}
				used[c.ChildID] = struct{}{}
				taken++
				if !yield(models.MatchedChild{
					FamilyID:  *c.FamilyID,
					ChildID:   c.ChildID,
					IndexDate: e.IndexDate,
					MatchedTo: e.ChildID,
				}) {
					return nil
				}
			}
		}
		return nil
	})
}
