package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan is the task type for the dangling role-code scan.
	TaskIntegrityScan = "permissions:integrity_scan"
	// DefaultIntegrityScanCron runs the scan once a day.
	DefaultIntegrityScanCron = "0 3 * * *"
)

// IntegrityScanPayload configures one integrity scan run.
type IntegrityScanPayload struct {
	// Trigger records who asked for the run ("cron" or "manual").
	Trigger string `json:"trigger"`
}

// NewIntegrityScanTask constructs an Asynq task.
func NewIntegrityScanTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityScanPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, data), nil
}
