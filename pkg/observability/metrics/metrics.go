package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64
	degradedRuns  atomic.Int64

	stageMu   sync.RWMutex
	stageRows = map[string]int64{}
)

func ObserveCacheLookup(hit bool) {
	if hit {
		cacheHits.Add(1)
		return
	}
	cacheMisses.Add(1)
}

func ObserveStageRows(stage string, rows int) {
	stageMu.Lock()
	stageRows[stage] = int64(rows)
	stageMu.Unlock()
}

func ObserveRun(failed, degraded bool) {
	if failed {
		runsFailed.Add(1)
	} else {
		runsCompleted.Add(1)
	}
	if degraded {
		degradedRuns.Add(1)
	}
}

type Snapshot struct {
	CacheHits     int64
	CacheMisses   int64
	RunsCompleted int64
	RunsFailed    int64
	DegradedRuns  int64
	StageRows     map[string]int64
}

func Read() Snapshot {
	stageMu.RLock()
	rows := make(map[string]int64, len(stageRows))
	for k, v := range stageRows {
		rows[k] = v
	}
	stageMu.RUnlock()
	return Snapshot{
		CacheHits:     cacheHits.Load(),
		CacheMisses:   cacheMisses.Load(),
		RunsCompleted: runsCompleted.Load(),
		RunsFailed:    runsFailed.Load(),
		DegradedRuns:  degradedRuns.Load(),
		StageRows:     rows,
	}
}

func WritePrometheus(w http.ResponseWriter) {
	snap := Read()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP cohort_cache_hits_total Stage results served from the cache.\n")
	fmt.Fprintf(w, "# TYPE cohort_cache_hits_total counter\n")
	fmt.Fprintf(w, "cohort_cache_hits_total %d\n", snap.CacheHits)

	fmt.Fprintf(w, "# HELP cohort_cache_misses_total Stage results computed because no artifact existed.\n")
	fmt.Fprintf(w, "# TYPE cohort_cache_misses_total counter\n")
	fmt.Fprintf(w, "cohort_cache_misses_total %d\n", snap.CacheMisses)

	fmt.Fprintf(w, "# HELP cohort_runs_completed_total Cohort builds that persisted both cohorts.\n")
	fmt.Fprintf(w, "# TYPE cohort_runs_completed_total counter\n")
	fmt.Fprintf(w, "cohort_runs_completed_total %d\n", snap.RunsCompleted)

	fmt.Fprintf(w, "# HELP cohort_runs_failed_total Cohort builds aborted by an error.\n")
	fmt.Fprintf(w, "# TYPE cohort_runs_failed_total counter\n")
	fmt.Fprintf(w, "cohort_runs_failed_total %d\n", snap.RunsFailed)

	fmt.Fprintf(w, "# HELP cohort_runs_degraded_total Cohort builds that bypassed the age-at-diagnosis filter.\n")
	fmt.Fprintf(w, "# TYPE cohort_runs_degraded_total counter\n")
	fmt.Fprintf(w, "cohort_runs_degraded_total %d\n", snap.DegradedRuns)

	stages := make([]string, 0, len(snap.StageRows))
	for stage := range snap.StageRows {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	fmt.Fprintf(w, "# HELP cohort_stage_rows Rows produced by each stage in the latest build.\n")
	fmt.Fprintf(w, "# TYPE cohort_stage_rows gauge\n")
	for _, stage := range stages {
		fmt.Fprintf(w, "cohort_stage_rows{stage=%q} %d\n", stage, snap.StageRows[stage])
	}
}
