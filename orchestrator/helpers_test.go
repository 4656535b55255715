package orchestrator

import (
	"go.uber.org/zap"

	"github.com/superagent-run/superagent/eventbus"
)

func zapNop() *zap.Logger {
	return zap.NewNop()
}

func newTestBus() *eventbus.Bus {
	return eventbus.New(eventbus.Config{}, zap.NewNop())
}
