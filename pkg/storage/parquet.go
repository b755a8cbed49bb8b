package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
)

const (
	ExposedCohortFile   = "exposed_cohort.parquet"
	UnexposedCohortFile = "unexposed_cohort.parquet"
	ParentalIncomeFile  = "parental_income.parquet"
)

type CohortRow struct {
	FamilyID  *string   `parquet:"family_id,optional"`
	ChildID   string    `parquet:"child_id"`
	IndexDate time.Time `parquet:"index_date"`
}

type ParentalIncomeRow struct {
	ChildID             string  `parquet:"child_id"`
	Year                int32   `parquet:"year"`
	ParentalTotalIncome float64 `parquet:"parental_total_income"`
}

// ParquetWriter writes the cohort pair under one output directory.
type ParquetWriter struct {
	dir string
}

func NewParquetWriter(dir string) *ParquetWriter {
	return &ParquetWriter{dir: dir}
}

func (w *ParquetWriter) Dir() string {
	return w.dir
}

// WriteCohorts writes both files to temporary names first and only renames
// them into place once both are complete.
func (w *ParquetWriter) WriteCohorts(_ context.Context, runID string, exposed []models.ExposedChild, matched []models.MatchedChild) (map[string]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	exposedRows := make([]CohortRow, 0, len(exposed))
	for _, e := range exposed {
		exposedRows = append(exposedRows, CohortRow{FamilyID: e.FamilyID, ChildID: e.ChildID, IndexDate: e.IndexDate})
	}
	matchedRows := make([]CohortRow, 0, len(matched))
	for _, m := range matched {
		matchedRows = append(matchedRows, CohortRow{FamilyID: models.StringPtr(m.FamilyID), ChildID: m.ChildID, IndexDate: m.IndexDate})
	}

	exposedTmp, err := writeTemp(w.dir, ExposedCohortFile, exposedRows)
	if err != nil {
		return nil, err
	}
	matchedTmp, err := writeTemp(w.dir, UnexposedCohortFile, matchedRows)
	if err != nil {
		os.Remove(exposedTmp)
		return nil, err
	}

	outputs := map[string]string{
		"exposed_cohort":   filepath.Join(w.dir, ExposedCohortFile),
		"unexposed_cohort": filepath.Join(w.dir, UnexposedCohortFile),
	}
	if err := os.Rename(exposedTmp, outputs["exposed_cohort"]); err != nil {
		os.Remove(exposedTmp)
		os.Remove(matchedTmp)
		return nil, fmt.Errorf("publish %s: %w", ExposedCohortFile, err)
	}
	if err := os.Rename(matchedTmp, outputs["unexposed_cohort"]); err != nil {
		os.Remove(matchedTmp)
		return nil, fmt.Errorf("publish %s: %w", UnexposedCohortFile, err)
	}

	logger.WithFields(map[string]interface{}{
		"run_id":    runID,
		"exposed":   len(exposedRows),
		"unexposed": len(matchedRows),
		"dir":       w.dir,
	}).Info("cohorts written to parquet")
	return outputs, nil
}

func (w *ParquetWriter) WriteParentalIncome(rows []models.ParentalIncome) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	out := make([]ParentalIncomeRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, ParentalIncomeRow{ChildID: r.ChildID, Year: int32(r.Year), ParentalTotalIncome: r.ParentalTotalIncome})
	}
	tmp, err := writeTemp(w.dir, ParentalIncomeFile, out)
	if err != nil {
		return "", err
	}
	path := filepath.Join(w.dir, ParentalIncomeFile)
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish %s: %w", ParentalIncomeFile, err)
	}
	return path, nil
}

func writeTemp[T any](dir, name string, rows []T) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmp := f.Name()
	f.Close()
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return tmp, nil
}

// ReadCohort reads a file written by WriteCohorts.
func ReadCohort(path string) ([]CohortRow, error) {
	rows, err := parquet.ReadFile[CohortRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
