package models

import (
	"time"

	"github.com/google/uuid"
)

// LatestTag is the floating tag pushed alongside every pinned release tag.
const LatestTag = "latest"

// ReleaseAction names the workflow that produced a release event
type ReleaseAction string

const (
	ActionBuild    ReleaseAction = "BUILD"
	ActionDeploy   ReleaseAction = "DEPLOY"
	ActionRollback ReleaseAction = "ROLLBACK"
)

// Outcome is the convergence result of a service update
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeStable   Outcome = "STABLE"
	OutcomeTimedOut Outcome = "TIMED_OUT"
)

// ImageRef joins a registry location and a release identifier.
func ImageRef(registryURI, identifier string) string {
	return registryURI + ":" + identifier
}

// ReleaseEvent records one finished workflow invocation
type ReleaseEvent struct {
	ID             uuid.UUID     `json:"id" yaml:"id"`
	Action         ReleaseAction `json:"action" yaml:"action"`
	Cluster        string        `json:"cluster" yaml:"cluster"`
	Service        string        `json:"service" yaml:"service"`
	Family         string        `json:"family" yaml:"family"`
	Identifier     string        `json:"identifier" yaml:"identifier"`
	ImageRef       string        `json:"image_ref" yaml:"image_ref"`
	TaskDefinition string        `json:"task_definition,omitempty" yaml:"task_definition,omitempty"`
	Outcome        Outcome       `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	CreatedAt      time.Time     `json:"created_at" yaml:"created_at"`
}

// NewReleaseEvent creates an event with a fresh ID and timestamp
func NewReleaseEvent(action ReleaseAction) *ReleaseEvent {
	return &ReleaseEvent{
		ID:        uuid.New(),
		Action:    action,
		CreatedAt: time.Now().UTC(),
	}
}
