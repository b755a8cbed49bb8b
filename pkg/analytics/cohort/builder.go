package cohort

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/cache"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/linkage"
	"github.com/synaptica-ai/registercohort/pkg/observability/metrics"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
	"github.com/synaptica-ai/registercohort/pkg/terminology"
)

// Stage names double as cache keys under cache.KeyByStage.
const (
	StageSevere    = "identify_severe_cases"
	StageExposed   = "create_exposed_group"
	StageUnexposed = "create_unexposed_group"
	StageMatch     = "match_cohorts"
)

// Sink persists a finished cohort pair and returns the locations written,
// keyed by output name.
type Sink interface {
	WriteCohorts(ctx context.Context, runID string, exposed []models.ExposedChild, matched []models.MatchedChild) (map[string]string, error)
}

type Builder struct {
	memo    *cache.Memo
	matcher *linkage.Matcher
	windows Windows
	sinks   []Sink
}

type Option func(*Builder)

func WithMemo(memo *cache.Memo) Option {
	return func(b *Builder) {
		b.memo = memo
	}
}

func WithMatcher(matcher *linkage.Matcher) Option {
	return func(b *Builder) {
		b.matcher = matcher
	}
}

func WithWindows(windows Windows) Option {
	return func(b *Builder) {
		b.windows = windows
	}
}

func WithSinks(sinks ...Sink) Option {
	return func(b *Builder) {
		b.sinks = append(b.sinks, sinks...)
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		matcher: linkage.NewMatcher(linkage.PolicyAll, 0),
		windows: DefaultWindows(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *Builder) Windows() Windows {
	return b.windows
}

type exposedStage struct {
	Rows        []models.ExposedChild `json:"rows"`
	Degradation *Degradation          `json:"degradation,omitempty"`
}

type matchStage struct {
	Exposed []models.ExposedChild `json:"exposed"`
	Matched []models.MatchedChild `json:"matched"`
}

// Build runs the four cohort stages through the memo and hands the result to
// every sink. Sinks are only written once all stages succeeded.
func (b *Builder) Build(ctx context.Context, runID string, provider tables.Provider, lookup terminology.Lookup) (models.CohortResult, error) {
	started := time.Now()
	result := models.CohortResult{RunID: runID, CacheKeying: string(b.memo.Keying())}

	unlock, err := b.memo.Lock(ctx)
	if err != nil {
		return result, fmt.Errorf("acquire cache lock: %w", err)
	}
	defer unlock()

	diagnosis, err := provider.Diagnosis(ctx)
	if err != nil {
		return result, err
	}
	child, err := provider.Child(ctx)
	if err != nil {
		return result, err
	}
	if err := diagnosis.Require(tables.DiagnosisColumns...); err != nil {
		return result, err
	}
	if err := child.Require(tables.ColChildID); err != nil {
		return result, err
	}

	degraded := ExposedDegradation(child.Columns())
	if degraded != nil {
		result.Degraded = true
		result.Warnings = append(result.Warnings, degraded.Warning())
	}

	severe, err := cache.Memoize(ctx, b.memo, StageSevere,
		func() (string, error) {
			rows, err := diagnosis.Collect()
			if err != nil {
				return "", err
			}
			return cache.Fingerprint(rows, lookup.Map(), b.windows.Diagnosis)
		},
		func() ([]models.DiagnosisRecord, error) {
			rel, err := IdentifySevereCases(diagnosis, lookup, b.windows.Diagnosis)
			if err != nil {
				return nil, err
			}
			return rel.Collect()
		})
	if err != nil {
		return result, err
	}
	result.SevereCases = len(severe)
	b.observe(runID, StageSevere, len(severe))

	exposed, err := cache.Memoize(ctx, b.memo, StageExposed,
		func() (string, error) {
			rows, err := child.Collect()
			if err != nil {
				return "", err
			}
			return cache.Fingerprint(severe, rows, child.Columns().Names(), b.windows.MaxAgeAtDiagnosis)
		},
		func() (exposedStage, error) {
			cases := relation.FromSlice(severeCasesRelation, diagnosis.Columns(), severe)
			rel, deg, err := CreateExposedGroup(cases, child, b.windows.MaxAgeAtDiagnosis)
			if err != nil {
				return exposedStage{}, err
			}
			rows, err := rel.Collect()
			return exposedStage{Rows: rows, Degradation: deg}, err
		})
	if err != nil {
		return result, err
	}
	result.ExposedCount = len(exposed.Rows)
	b.observe(runID, StageExposed, len(exposed.Rows))

	var pool []models.UnexposedCandidate
	if degraded != nil {
		// No birth dates means no pool and nothing to match on.
		pool = []models.UnexposedCandidate{}
		result.Warnings = append(result.Warnings, StageUnexposed+": skipped, Child table has no "+tables.ColBirthDate)
		logger.WithStage(runID, StageUnexposed).Warn("unexposed pool skipped without birth dates")
	} else {
		pool, err = cache.Memoize(ctx, b.memo, StageUnexposed,
			func() (string, error) {
				rows, err := child.Collect()
				if err != nil {
					return "", err
				}
				return cache.Fingerprint(rows, child.Columns().Names(), b.windows.Birth)
			},
			func() ([]models.UnexposedCandidate, error) {
				rel, err := CreateUnexposedGroup(child, b.windows.Birth)
				if err != nil {
					return nil, err
				}
				return rel.Collect()
			})
		if err != nil {
			return result, err
		}
	}
	result.UnexposedPool = len(pool)
	b.observe(runID, StageUnexposed, len(pool))

	matched, err := cache.Memoize(ctx, b.memo, StageMatch,
		func() (string, error) {
			return cache.Fingerprint(exposed.Rows, pool, b.matcher.Policy(), b.matcher.Ratio())
		},
		func() (matchStage, error) {
			exp, unexp := b.matcher.Match(
				relation.FromSlice(exposedRelation, exposedColumns, exposed.Rows),
				relation.FromSlice(unexposedRelation, unexposedColumns, pool),
			)
			expRows, err := exp.Collect()
			if err != nil {
				return matchStage{}, err
			}
			matchedRows, err := unexp.Collect()
			if err != nil {
				return matchStage{}, err
			}
			return matchStage{Exposed: expRows, Matched: matchedRows}, nil
		})
	if err != nil {
		return result, err
	}
	result.MatchedCount = len(matched.Matched)
	b.observe(runID, StageMatch, len(matched.Matched))

	for _, sink := range b.sinks {
		outputs, err := sink.WriteCohorts(ctx, runID, matched.Exposed, matched.Matched)
		if err != nil {
			return result, fmt.Errorf("persist cohorts: %w", err)
		}
		if len(outputs) > 0 && result.Outputs == nil {
			result.Outputs = make(map[string]string)
		}
		for name, location := range outputs {
			result.Outputs[name] = location
		}
	}

	result.BuildTime = time.Since(started)
	logger.WithFields(map[string]interface{}{
		"run_id":   runID,
		"severe":   result.SevereCases,
		"exposed":  result.ExposedCount,
		"pool":     result.UnexposedPool,
		"matched":  result.MatchedCount,
		"keying":   result.CacheKeying,
		"duration": result.BuildTime.String(),
		"warnings": len(result.Warnings),
	}).Info("cohorts created")
	return result, nil
}

func (b *Builder) observe(runID, stage string, rows int) {
	metrics.ObserveStageRows(stage, rows)
	logger.WithStage(runID, stage).WithField("rows", rows).Info("stage finished")
}

// MatchCohorts pairs exposed children with pool candidates sharing their
// birth date, keeping every candidate.
func MatchCohorts(exposed relation.Relation[models.ExposedChild], pool relation.Relation[models.UnexposedCandidate]) (relation.Relation[models.ExposedChild], relation.Relation[models.MatchedChild]) {
	return linkage.NewMatcher(linkage.PolicyAll, 0).Match(exposed, pool)
}

func joinNames(names []string) string {
	return strings.Join(names, ", ")
}
