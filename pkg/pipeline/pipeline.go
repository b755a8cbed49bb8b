package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
)

type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError names the step that stopped a pipeline.
type StepError struct {
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type Pipeline struct {
	name  string
	steps []Step
	log   *logrus.Entry
}

func New(name string, steps ...Step) *Pipeline {
	return &Pipeline{name: name, steps: steps, log: logger.WithField("pipeline", name)}
}

func (p *Pipeline) Add(name string, run func(ctx context.Context) error) *Pipeline {
	p.steps = append(p.steps, Step{Name: name, Run: run})
	return p
}

func (p *Pipeline) WithFields(fields logrus.Fields) *Pipeline {
	p.log = p.log.WithFields(fields)
	return p
}

// Run executes the steps in order and stops at the first failure. A
// cancelled context stops the run before the next step starts.
func (p *Pipeline) Run(ctx context.Context) error {
	started := time.Now()
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.Name, Index: i + 1, Err: err}
		}
		entry := p.log.WithFields(logrus.Fields{"step": step.Name, "index": i + 1, "total": len(p.steps)})
		entry.Info("step started")
		stepStart := time.Now()
		if err := step.Run(ctx); err != nil {
			entry.WithError(err).Error("step failed")
			return &StepError{Step: step.Name, Index: i + 1, Err: err}
		}
		entry.WithField("duration", time.Since(stepStart).String()).Info("step finished")
	}
	p.log.WithField("duration", time.Since(started).String()).Info("pipeline completed")
	return nil
}
