package cohort

import (
	"fmt"
	"time"

	"github.com/synaptica-ai/registercohort/pkg/common/config"
	"github.com/synaptica-ai/registercohort/pkg/common/models"
)

const day = 24 * time.Hour

// Window is an inclusive range of calendar days.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewWindow(start, end time.Time) Window {
	return Window{Start: models.Date(start), End: models.Date(end)}
}

func (w Window) Contains(t time.Time) bool {
	d := models.Date(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(config.DateLayout), w.End.Format(config.DateLayout))
}

type Windows struct {
	Diagnosis Window `json:"diagnosis"`
	Birth     Window `json:"birth"`
	// MaxAgeAtDiagnosis is compared against index_date - birth_date in whole
	// days, without leap-year adjustment.
	MaxAgeAtDiagnosis time.Duration `json:"max_age_at_diagnosis"`
}

func DefaultWindows() Windows {
	return Windows{
		Diagnosis:         NewWindow(date(2000, 1, 1), date(2018, 12, 31)),
		Birth:             NewWindow(date(1995, 1, 1), date(2018, 12, 31)),
		MaxAgeAtDiagnosis: 5 * 365 * day,
	}
}

// WindowsFromSpec starts from the defaults and applies every value the
// pipeline file sets.
func WindowsFromSpec(spec config.WindowsSpec) (Windows, error) {
	w := DefaultWindows()
	start, end, err := spec.Diagnosis.Parse()
	if err != nil {
		return w, fmt.Errorf("diagnosis window: %w", err)
	}
	if !start.IsZero() {
		w.Diagnosis = NewWindow(start, end)
	}
	start, end, err = spec.Birth.Parse()
	if err != nil {
		return w, fmt.Errorf("birth window: %w", err)
	}
	if !start.IsZero() {
		w.Birth = NewWindow(start, end)
	}
	if spec.MaxAgeDays < 0 {
		return w, fmt.Errorf("max_age_days must not be negative")
	}
	if spec.MaxAgeDays > 0 {
		w.MaxAgeAtDiagnosis = time.Duration(spec.MaxAgeDays) * day
	}
	return w, nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
