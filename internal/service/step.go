package service

// StepStatus is the outcome of a single pipeline step.
type StepStatus string

const (
	StepSuccess     StepStatus = "success"
	StepAlreadyDone StepStatus = "already_done"
	StepFailed      StepStatus = "failed"
)

// StepResult is one entry of a pipeline trace. Multi-step pipelines return
// the full trace so partial failures are diagnosable without server logs.
type StepResult struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
	Hash   string     `json:"transactionHash,omitempty"`
}
