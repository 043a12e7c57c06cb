package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/liamcoop/loanpolicy/policy"
)

// DecisionEvent is the compact record published after each evaluation.
// Storage of the full audit trail stays with the caller.
type DecisionEvent struct {
	ApplicationID     string    `json:"applicationId"`
	Decision          string    `json:"decision"`
	PoliciesEvaluated int       `json:"policiesEvaluated"`
	PoliciesMatched   int       `json:"policiesMatched"`
	RulesMatched      int       `json:"rulesMatched"`
	Actions           []string  `json:"actions"`
	DurationMs        int64     `json:"durationMs"`
	EvaluatedAt       time.Time `json:"evaluatedAt"`
}

// NewDecisionEvent summarizes an evaluation response.
func NewDecisionEvent(resp *policy.EvaluationResponse) DecisionEvent {
	actions := make([]string, 0, len(resp.TriggeredActions))
	for _, a := range resp.TriggeredActions {
		actions = append(actions, string(a.ActionType))
	}
	return DecisionEvent{
		ApplicationID:     resp.ApplicationID,
		Decision:          string(resp.OverallDecision),
		PoliciesEvaluated: resp.PoliciesEvaluated,
		PoliciesMatched:   resp.PoliciesMatched,
		RulesMatched:      resp.RulesMatched,
		Actions:           actions,
		DurationMs:        resp.EvaluationDurationMs,
		EvaluatedAt:       resp.EvaluatedAt,
	}
}

// Publisher emits decision events. Publishing is best effort: callers log
// failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, event DecisionEvent) error
	Close()
}

// KafkaPublisher writes decision events to a Kafka topic keyed by application ID.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher connects a producer to brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Publish produces one record and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, event DecisionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode decision event: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.ApplicationID),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce decision event: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// LogPublisher writes decision events to a structured logger. It is used
// when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs events.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event DecisionEvent) error {
	p.logger.Info("decision",
		"application_id", event.ApplicationID,
		"decision", event.Decision,
		"policies_evaluated", event.PoliciesEvaluated,
		"policies_matched", event.PoliciesMatched,
		"rules_matched", event.RulesMatched,
		"actions", event.Actions,
		"duration_ms", event.DurationMs)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() {}
