package locate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TargetMessage is the payload published per located target
type TargetMessage struct {
	ID                 string  `json:"id"`
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	Z                  float64 `json:"z"`
	SupportingRayCount int     `json:"rays"`
	MeanResidual       float64 `json:"meanResidual"`
	RMSResidual        float64 `json:"rmsResidual"`
	SolutionID         string  `json:"solutionId"`
	Timestamp          int64   `json:"timestamp"`
}

// SolutionMessage is the payload published on the combined targets topic
type SolutionMessage struct {
	SolutionID string          `json:"solutionId"`
	RayCount   int             `json:"rayCount"`
	Unassigned int             `json:"unassigned"`
	Targets    []TargetMessage `json:"targets"`
	Timestamp  int64           `json:"timestamp"`
}

// Publisher publishes solutions to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *SolutionMessage
	mu            sync.RWMutex
}

// NewPublisher creates a solution publisher. prefix falls back to
// MQTT_PUBLISH_PREFIX and then to "skylocate".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = os.Getenv("MQTT_PUBLISH_PREFIX")
	}
	if prefix == "" {
		prefix = "skylocate"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// Prefix returns the topic prefix
func (p *Publisher) Prefix() string {
	return p.publishPrefix
}

// PublishSolution publishes every target to {prefix}/target/{id} and the
// whole solution to {prefix}/targets
func (p *Publisher) PublishSolution(sol *Solution) error {
	if sol == nil {
		return fmt.Errorf("publishing solution: nil solution")
	}
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := newSolutionMessage(sol)

	p.mu.Lock()
	p.last = msg
	p.mu.Unlock()

	for _, t := range msg.Targets {
		topic := fmt.Sprintf("%s/target/%s", p.publishPrefix, t.ID)
		if err := p.publishJSON(topic, t); err != nil {
			log.Printf("[MQTT] error publishing %s: %v", t.ID, err)
			return err
		}
	}

	topic := fmt.Sprintf("%s/targets", p.publishPrefix)
	if err := p.publishJSON(topic, msg); err != nil {
		log.Printf("[MQTT] error publishing solution %s: %v", sol.ID, err)
		return err
	}

	log.Printf("[MQTT] published solution %s with %d targets", sol.ID, len(msg.Targets))
	return nil
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

func newSolutionMessage(sol *Solution) *SolutionMessage {
	msg := &SolutionMessage{
		SolutionID: sol.ID,
		RayCount:   sol.RayCount,
		Unassigned: sol.Unassigned,
		Targets:    make([]TargetMessage, 0, len(sol.Targets)),
		Timestamp:  sol.SolvedAt,
	}
	for _, t := range sol.Targets {
		msg.Targets = append(msg.Targets, TargetMessage{
			ID:                 t.ID,
			X:                  t.Position.X,
			Y:                  t.Position.Y,
			Z:                  t.Position.Z,
			SupportingRayCount: t.SupportingRayCount,
			MeanResidual:       t.MeanResidual,
			RMSResidual:        t.RMSResidual,
			SolutionID:         sol.ID,
			Timestamp:          sol.SolvedAt,
		})
	}
	return msg
}

// LastPublished returns the last solution message handed to MQTT
func (p *Publisher) LastPublished() (*SolutionMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.last != nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
