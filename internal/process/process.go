// Package process defines the boundary to the domain-specific pipeline
// (speech-to-text, retrieval, recommendation). The orchestration core never
// interprets job inputs; it hands them to an injected Processor.
package process

import (
	"context"
	"encoding/json"

	"github.com/akazachkov/queryflow/pkg/models"
)

// ProgressFunc reports incremental progress. Calls overwrite the previous
// report; delivery to the record store is best-effort.
type ProgressFunc func(current, total int, message string)

// Processor executes one job. Implementations MUST be safe to invoke more
// than once for the same task: delivery is at-least-once, so a worker crash
// before acknowledgment re-runs the task and the later run's writes win.
// A returned error marks the job FAILURE; there is no automatic retry.
type Processor interface {
	Execute(ctx context.Context, task models.TaskPayload, report ProgressFunc) (json.RawMessage, error)
}

// Func adapts a plain function to the Processor interface.
type Func func(ctx context.Context, task models.TaskPayload, report ProgressFunc) (json.RawMessage, error)

func (f Func) Execute(ctx context.Context, task models.TaskPayload, report ProgressFunc) (json.RawMessage, error) {
	return f(ctx, task, report)
}
