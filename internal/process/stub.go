package process

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/akazachkov/queryflow/pkg/models"
)

// StubProcessor simulates the real pipeline: a fixed number of steps with a
// progress report per step. It stands in until the inference services are
// wired up, and doubles as the processor for local runs.
type StubProcessor struct {
	Steps     int
	StepDelay time.Duration
}

// NewStubProcessor returns a stub with the reference timing: ten one-second
// steps per job.
func NewStubProcessor() *StubProcessor {
	return &StubProcessor{Steps: 10, StepDelay: time.Second}
}

type stubResult struct {
	JobID         string `json:"job_id"`
	InputKind     string `json:"input_kind"`
	Transcript    string `json:"transcript,omitempty"`
	Questionnaire string `json:"questionnaire,omitempty"`
	Answer        string `json:"answer"`
}

func (p *StubProcessor) Execute(ctx context.Context, task models.TaskPayload, report ProgressFunc) (json.RawMessage, error) {
	for i := 0; i < p.Steps; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.StepDelay):
		}
		report(i+1, p.Steps, fmt.Sprintf("processing step %d/%d", i+1, p.Steps))
	}

	res := stubResult{
		JobID:     task.JobID,
		InputKind: task.InputKind,
	}
	switch task.InputKind {
	case models.InputKindAudio:
		res.Transcript = fmt.Sprintf("transcript of %s", filepath.Base(task.AudioPath))
		res.Answer = "recommendation derived from transcript"
	default:
		res.Questionnaire = task.Questionnaire
		res.Answer = fmt.Sprintf("recommendation for: %s", task.Questionnaire)
	}
	return json.Marshal(res)
}
