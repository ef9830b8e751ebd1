package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskShortageScan compares open-order requirements with availability.
	TaskShortageScan = "production:shortage_scan"
	// TaskRequirementsWarmup pre-builds BOM expansion cache entries.
	TaskRequirementsWarmup = "bom:requirements_warmup"
)

// ShortageScanPayload configures one shortage scan run.
type ShortageScanPayload struct {
	// Notify marks the run as alerting, logged at warn level per material.
	Notify bool `json:"notify"`
}

// NewShortageScanTask constructs an Asynq task.
func NewShortageScanTask(payload ShortageScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskShortageScan, data), nil
}

// RequirementsWarmupPayload configures one warmup run.
type RequirementsWarmupPayload struct {
	// Limit caps how many active BOMs are warmed, newest first. Zero warms all.
	Limit int `json:"limit"`
}

// NewRequirementsWarmupTask constructs an Asynq task.
func NewRequirementsWarmupTask(payload RequirementsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRequirementsWarmup, data), nil
}
