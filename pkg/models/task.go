package models

// TaskPayload is the message body handed to the task queue at submission and
// decoded by the worker on delivery. The core treats the input as opaque;
// only the processing callback interprets it.
type TaskPayload struct {
	JobID         string `json:"job_id"`
	InputKind     string `json:"input_kind"`
	AudioPath     string `json:"audio_path,omitempty"`
	Questionnaire string `json:"questionnaire,omitempty"`
}
