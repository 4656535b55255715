package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/superagent-run/superagent/eventbus"
)

func TestMonitorAgent_TracksTerminalTaskStatus(t *testing.T) {
	bus := newTestBus()
	monitor := NewMonitorAgent(bus, "monitor_test_terminal_status", nil)

	bus.Publish(eventbus.NewEvent(eventbus.EventPlanFailed, "test", PlanFailedData{TaskID: "t1", Error: "boom"}, "corr-1"))

	status, ok := monitor.TaskStatus("t1")
	assert.True(t, ok)
	assert.Equal(t, "failed", status)
}

func TestMonitorAgent_UnknownTaskHasNoStatus(t *testing.T) {
	bus := newTestBus()
	monitor := NewMonitorAgent(bus, "monitor_test_unknown_status", nil)

	_, ok := monitor.TaskStatus("never-seen")
	assert.False(t, ok)
}
