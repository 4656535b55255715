package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/superagent-run/superagent/eventbus"
)

// MonitorAgent subscribes to every event type and maintains counters and
// per-task health signals for observability, without participating in the
// plan/step control flow itself.
type MonitorAgent struct {
	mu            sync.RWMutex
	eventsTotal   *prometheus.CounterVec
	stepFailures  *prometheus.CounterVec
	taskStatus    map[string]string
	logger        *zap.Logger
}

// NewMonitorAgent registers subscriptions for all known event types and
// exposes prometheus counters under namespace.
func NewMonitorAgent(bus *eventbus.Bus, namespace string, logger *zap.Logger) *MonitorAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MonitorAgent{
		taskStatus: make(map[string]string),
		logger:     logger.With(zap.String("component", "monitor_agent")),
		eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestrator_events_total",
			Help:      "Total events observed on the event bus, by type.",
		}, []string{"event_type"}),
		stepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestrator_step_failures_total",
			Help:      "Total STEP_FAILED events observed, by task.",
		}, []string{"task_id"}),
	}

	for _, eventType := range []eventbus.EventType{
		eventbus.EventPlanRequested, eventbus.EventPlanReady, eventbus.EventPlanFailed, eventbus.EventPlanCompleted,
		eventbus.EventStepRequested, eventbus.EventStepStarted, eventbus.EventStepCompleted, eventbus.EventStepFailed,
		eventbus.EventContextRequest, eventbus.EventContextResponse,
		eventbus.EventGoalCancelled,
	} {
		bus.Subscribe(eventType, m.handle)
	}
	return m
}

func (m *MonitorAgent) handle(event eventbus.Event) error {
	m.eventsTotal.WithLabelValues(string(event.Type)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch event.Type {
	case eventbus.EventPlanCompleted:
		if data, ok := event.Data.(PlanReadyData); ok {
			m.taskStatus[data.Plan.TaskID] = "completed"
		}
	case eventbus.EventPlanFailed:
		if data, ok := event.Data.(PlanFailedData); ok {
			m.taskStatus[data.TaskID] = "failed"
		}
	case eventbus.EventStepFailed:
		if data, ok := event.Data.(StepFailedData); ok {
			m.stepFailures.WithLabelValues(data.TaskID).Inc()
		}
	}
	return nil
}

// TaskStatus returns the last known terminal status for taskID, if any.
func (m *MonitorAgent) TaskStatus(taskID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.taskStatus[taskID]
	return status, ok
}
