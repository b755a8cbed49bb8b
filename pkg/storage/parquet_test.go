package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/models"
)

func TestParquetWriterWritesCohortPair(t *testing.T) {
	dir := t.TempDir()
	writer := NewParquetWriter(dir)
	index := time.Date(2010, 5, 1, 0, 0, 0, 0, time.UTC)

	outputs, err := writer.WriteCohorts(context.Background(), "run-1",
		[]models.ExposedChild{
			{FamilyID: models.StringPtr("F1"), ChildID: "A", IndexDate: index},
			{ChildID: "B", IndexDate: index},
		},
		[]models.MatchedChild{{FamilyID: "F2", ChildID: "C", IndexDate: index, MatchedTo: "A"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exposed, err := ReadCohort(outputs["exposed_cohort"])
	if err != nil {
		t.Fatalf("read exposed: %v", err)
	}
	if len(exposed) != 2 || exposed[0].FamilyID == nil || *exposed[0].FamilyID != "F1" || exposed[1].FamilyID != nil {
		t.Fatalf("unexpected exposed rows %+v", exposed)
	}
	if !exposed[0].IndexDate.Equal(index) {
		t.Fatalf("index date changed: %v", exposed[0].IndexDate)
	}

	unexposed, err := ReadCohort(filepath.Join(dir, UnexposedCohortFile))
	if err != nil {
		t.Fatalf("read unexposed: %v", err)
	}
	if len(unexposed) != 1 || unexposed[0].ChildID != "C" {
		t.Fatalf("unexpected unexposed rows %+v", unexposed)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestParquetWriterEmptyCohorts(t *testing.T) {
	writer := NewParquetWriter(filepath.Join(t.TempDir(), "out"))
	outputs, err := writer.WriteCohorts(context.Background(), "run-1", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := ReadCohort(outputs["unexposed_cohort"])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty file, got %d rows", len(rows))
	}
}
