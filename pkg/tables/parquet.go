package tables

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
	"github.com/synaptica-ai/registercohort/pkg/relation"
)

const readBatch = 512

type DiagnosisRow struct {
	PersonID      string    `parquet:"person_id"`
	DiagnosisCode string    `parquet:"diagnosis_code"`
	DiagnosisDate time.Time `parquet:"diagnosis_date"`
}

type ChildRow struct {
	ChildID   string     `parquet:"child_id"`
	FamilyID  *string    `parquet:"family_id,optional"`
	BirthDate *time.Time `parquet:"birth_date,optional"`
}

type PersonRow struct {
	PersonID string  `parquet:"person_id"`
	MotherID *string `parquet:"mother_id,optional"`
	FatherID *string `parquet:"father_id,optional"`
}

type IncomeRow struct {
	PersonID    string  `parquet:"person_id"`
	Year        int32   `parquet:"year"`
	TotalIncome float64 `parquet:"total_income"`
}

// ParquetSource reads <dir>/<table>.parquet, e.g. data/tables/child.parquet.
// Files are opened when a relation is scanned, not when it is requested.
type ParquetSource struct {
	dir string
}

func NewParquetSource(dir string) *ParquetSource {
	return &ParquetSource{dir: dir}
}

func (s *ParquetSource) Path(table string) string {
	return filepath.Join(s.dir, strings.ToLower(table)+".parquet")
}

func (s *ParquetSource) Diagnosis(context.Context) (relation.Relation[models.DiagnosisRecord], error) {
	return openParquet(Diagnosis, s.Path(Diagnosis), func(r DiagnosisRow) models.DiagnosisRecord {
		return models.DiagnosisRecord{
			PersonID:      r.PersonID,
			DiagnosisCode: r.DiagnosisCode,
			DiagnosisDate: models.Date(r.DiagnosisDate),
		}
	})
}

func (s *ParquetSource) Child(context.Context) (relation.Relation[models.ChildRecord], error) {
	return openParquet(Child, s.Path(Child), func(r ChildRow) models.ChildRecord {
		rec := models.ChildRecord{ChildID: r.ChildID, FamilyID: r.FamilyID}
		if r.BirthDate != nil {
			rec.BirthDate = models.TimePtr(models.Date(*r.BirthDate))
		}
		return rec
	})
}

func (s *ParquetSource) Person(context.Context) (relation.Relation[models.PersonRecord], error) {
	return openParquet(Person, s.Path(Person), func(r PersonRow) models.PersonRecord {
		return models.PersonRecord{PersonID: r.PersonID, MotherID: r.MotherID, FatherID: r.FatherID}
	})
}

func (s *ParquetSource) Income(context.Context) (relation.Relation[models.IncomeRecord], error) {
	return openParquet(Income, s.Path(Income), func(r IncomeRow) models.IncomeRecord {
		return models.IncomeRecord{PersonID: r.PersonID, Year: int(r.Year), TotalIncome: r.TotalIncome}
	})
}

func openParquet[R, T any](name, path string, convert func(R) T) (relation.Relation[T], error) {
	columns, err := parquetColumns(path)
	if errors.Is(err, os.ErrNotExist) {
		return relation.Relation[T]{}, &relation.MissingTableError{Table: name}
	}
	if err != nil {
		return relation.Relation[T]{}, fmt.Errorf("open %s table %s: %w", name, path, err)
	}

	return relation.New(name, columns, func(yield func(T) bool) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		reader := parquet.NewGenericReader[R](f)
		defer reader.Close()

		buf := make([]R, readBatch)
		for {
			n, err := reader.Read(buf)
			for i := 0; i < n; i++ {
				if !yield(convert(buf[i])) {
					return nil
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
		}
	}), nil
}

func parquetColumns(path string) (relation.Columns, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, err
	}
	columns := relation.Columns{}
	for _, field := range pf.Schema().Fields() {
		columns[field.Name()] = struct{}{}
	}
	return columns, nil
}
