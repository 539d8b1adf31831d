// Package notify publishes decision events for downstream consumers such as
// irrigation controllers. Events are notifications, not a record.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/irrigation/irrigation"
)

// DecisionEvent is emitted once per decision
type DecisionEvent struct {
	ID           string             `json:"id"`
	Mode         string             `json:"mode"`
	Verdict      irrigation.Verdict `json:"verdict"`
	Crop         string             `json:"crop"`
	CropIndex    int                `json:"cropIndex"`
	CropKnown    bool               `json:"cropKnown"`
	Region       string             `json:"region,omitempty"`
	SoilMoisture float64            `json:"soil"`
	Temperature  float64            `json:"temp"`
	Humidity     float64            `json:"humidity"`
	Timestamp    time.Time          `json:"timestamp"`
}

// NewDecisionEvent stamps a fresh ID and the current time
func NewDecisionEvent(mode string, v irrigation.Verdict, s irrigation.EnvironmentSample, crop string, cropIdx int, known bool, region string) DecisionEvent {
	return DecisionEvent{
		ID:           uuid.NewString(),
		Mode:         mode,
		Verdict:      v,
		Crop:         crop,
		CropIndex:    cropIdx,
		CropKnown:    known,
		Region:       region,
		SoilMoisture: s.SoilMoisture,
		Temperature:  s.Temperature,
		Humidity:     s.Humidity,
		Timestamp:    time.Now().UTC(),
	}
}

// Publisher delivers decision events
type Publisher interface {
	Publish(ctx context.Context, ev DecisionEvent) error
	Close()
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, DecisionEvent) error { return nil }
func (NopPublisher) Close()                                       {}
