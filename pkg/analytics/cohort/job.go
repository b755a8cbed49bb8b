package cohort

import (
	"context"
	"fmt"

	"github.com/synaptica-ai/registercohort/pkg/analytics/income"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/linkage"
	"github.com/synaptica-ai/registercohort/pkg/pipeline"
	"github.com/synaptica-ai/registercohort/pkg/relation"
	"github.com/synaptica-ai/registercohort/pkg/tables"
	"github.com/synaptica-ai/registercohort/pkg/terminology"
	"github.com/synaptica-ai/registercohort/pkg/validation"
)

type IncomeWriter interface {
	WriteParentalIncome(rows []models.ParentalIncome) (string, error)
}

type JobConfig struct {
	Provider  tables.Provider
	Lookup    terminology.Lookup
	Validator *validation.Validator
	// Options configure the Builder of every run; a request's match policy
	// is applied on top.
	Options []Option
	Income  IncomeWriter
}

// NewJob chains table validation, cohort construction and parental income
// preparation. Validation and income are skipped when not configured.
func NewJob(cfg JobConfig) Job {
	return func(ctx context.Context, runID string, req models.CohortBuildRequest) (models.CohortResult, error) {
		result := models.CohortResult{RunID: runID}

		opts := append([]Option{}, cfg.Options...)
		if req.MatchPolicy != "" {
			policy, err := linkage.ParsePolicy(req.MatchPolicy)
			if err != nil {
				return result, err
			}
			opts = append(opts, WithMatcher(linkage.NewMatcher(policy, req.MatchRatio)))
		}
		builder := NewBuilder(opts...)

		var warnings []string
		steps := pipeline.New("cohort").WithFields(map[string]interface{}{"run_id": runID})
		if req.ClearCache {
			steps.Add("clear_cache", func(ctx context.Context) error {
				return builder.memo.Clear(ctx)
			})
		}
		if cfg.Validator != nil {
			steps.Add("validate_tables", func(ctx context.Context) error {
				report, err := cfg.Validator.Validate(ctx, cfg.Provider)
				warnings = append(warnings, report.Warnings()...)
				return err
			})
		}
		steps.Add("create_cohorts", func(ctx context.Context) error {
			built, err := builder.Build(ctx, runID, cfg.Provider, cfg.Lookup)
			result = built
			return err
		})
		steps.Add("prepare_parental_income", func(ctx context.Context) error {
			rows, skipped, err := ParentalIncome(ctx, cfg.Provider)
			if err != nil {
				return err
			}
			if skipped != "" {
				result.Warnings = append(result.Warnings, skipped)
				return nil
			}
			result.ParentalIncome = len(rows)
			if cfg.Income == nil {
				return nil
			}
			path, err := cfg.Income.WriteParentalIncome(rows)
			if err != nil {
				return err
			}
			if result.Outputs == nil {
				result.Outputs = make(map[string]string)
			}
			result.Outputs["parental_income"] = path
			return nil
		})

		err := steps.Run(ctx)
		result.RunID = runID
		result.Warnings = append(warnings, result.Warnings...)
		return result, err
	}
}

// ParentalIncome links children to their parents and sums the parents'
// income per year. A missing Person or Income table skips the step and the
// returned message says why.
func ParentalIncome(ctx context.Context, provider tables.Provider) ([]models.ParentalIncome, string, error) {
	child, err := provider.Child(ctx)
	if err != nil {
		return nil, "", err
	}
	person, err := provider.Person(ctx)
	if relation.IsMissingTable(err) {
		return skipIncome(err)
	}
	if err != nil {
		return nil, "", err
	}
	incomes, err := provider.Income(ctx)
	if relation.IsMissingTable(err) {
		return skipIncome(err)
	}
	if err != nil {
		return nil, "", err
	}

	links, err := income.LinkChildrenToParents(child, person)
	if err != nil {
		return nil, "", err
	}
	prepared, err := income.PrepareParentalIncome(links, incomes)
	if err != nil {
		return nil, "", err
	}
	rows, err := prepared.Collect()
	if err != nil {
		return nil, "", fmt.Errorf("prepare parental income: %w", err)
	}
	return rows, "", nil
}

func skipIncome(err error) ([]models.ParentalIncome, string, error) {
	msg := "parental income skipped: " + err.Error()
	logger.Log.Warn(msg)
	return nil, msg, nil
}
