package tables

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/synaptica-ai/registercohort/pkg/relation"
)

type childWithoutBirthDate struct {
	ChildID  string  `parquet:"child_id"`
	FamilyID *string `parquet:"family_id,optional"`
}

func TestParquetSourceReportsFileColumns(t *testing.T) {
	dir := t.TempDir()
	family := "F1"
	rows := []childWithoutBirthDate{{ChildID: "A", FamilyID: &family}, {ChildID: "B"}}
	if err := parquet.WriteFile(filepath.Join(dir, "child.parquet"), rows); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := NewParquetSource(dir)
	child, err := src.Child(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if child.Columns().Has(ColBirthDate) {
		t.Fatal("birth_date must not be reported for a file without it")
	}
	if !child.Columns().Has(ColFamilyID) {
		t.Fatal("expected family_id column")
	}

	records, err := child.Collect()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].FamilyID == nil || *records[0].FamilyID != "F1" || records[1].FamilyID != nil {
		t.Fatalf("unexpected family ids %+v", records)
	}
	if records[0].BirthDate != nil {
		t.Fatal("expected nil birth date")
	}
}

func TestParquetSourceReadsDiagnosis(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2010, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []DiagnosisRow{{PersonID: "A", DiagnosisCode: "Q20", DiagnosisDate: date}}
	if err := parquet.WriteFile(filepath.Join(dir, "diagnosis.parquet"), rows); err != nil {
		t.Fatalf("write: %v", err)
	}

	diag, err := NewParquetSource(dir).Diagnosis(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := diag.Require(DiagnosisColumns...); err != nil {
		t.Fatalf("expected full schema: %v", err)
	}
	records, err := diag.Collect()
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 || !records[0].DiagnosisDate.Equal(date) || records[0].DiagnosisCode != "Q20" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestParquetSourceMissingFile(t *testing.T) {
	_, err := NewParquetSource(t.TempDir()).Income(context.Background())
	if !relation.IsMissingTable(err) {
		t.Fatalf("expected MissingTableError, got %v", err)
	}
}

func TestSetMissingTable(t *testing.T) {
	set := NewSet().WithChild(nil, ColChildID)
	if _, err := set.Diagnosis(context.Background()); !relation.IsMissingTable(err) {
		t.Fatalf("expected MissingTableError, got %v", err)
	}
	child, err := set.Child(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if child.Columns().Has(ColBirthDate) {
		t.Fatal("expected the explicit column set")
	}
}
