package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/hibiken/asynq"
)

const TypeProbeCapability = "capability:probe"

type ProbeCapabilityPayload struct {
	Capability  capability.Capability `json:"capability"`
	StorageName string                `json:"storage_name,omitempty"`
	RequestedAt time.Time             `json:"requested_at"`
}

func NewProbeCapabilityTask(payload ProbeCapabilityPayload) (*asynq.Task, error) {
	if _, err := capability.Parse(string(payload.Capability)); err != nil {
		return nil, fmt.Errorf("build probe task: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal probe payload: %w", err)
	}
	return asynq.NewTask(TypeProbeCapability, body), nil
}

func ParseProbeCapabilityPayload(task *asynq.Task) (ProbeCapabilityPayload, error) {
	var payload ProbeCapabilityPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProbeCapabilityPayload{}, fmt.Errorf("unmarshal probe payload: %w", err)
	}
	c, err := capability.Parse(string(payload.Capability))
	if err != nil {
		return ProbeCapabilityPayload{}, fmt.Errorf("probe payload: %w", err)
	}
	payload.Capability = c
	return payload, nil
}
