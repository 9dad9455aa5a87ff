package probe

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Request describes one fan-out invocation: the same workflow, prompt, and
// reference images replicated against every configured endpoint.
type Request struct {
	Kind   Kind
	Prompt string
	Images []ReferenceImage
	Token  string
}

// Orchestrator fans a workflow out to all endpoints concurrently. Endpoint
// runs are independent: no ordering between them, no shared mutable state
// beyond each endpoint's own slot in the state store.
type Orchestrator struct {
	fleet  *Fleet
	runner *Runner
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator over the fleet.
func NewOrchestrator(fleet *Fleet, runner *Runner, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fleet:  fleet,
		runner: runner,
		logger: logger.Named("orchestrator"),
	}
}

// Launch starts one run per endpoint and returns immediately. Outcomes are
// observable through the state store.
func (o *Orchestrator) Launch(ctx context.Context, req *Request) {
	endpoints := o.fleet.All()
	o.logger.Info("launching fleet run",
		zap.String("workflow", string(req.Kind)),
		zap.Int("endpoints", len(endpoints)))

	for _, ep := range endpoints {
		o.wg.Add(1)
		go func(ep Endpoint) {
			defer o.wg.Done()
			o.runner.Run(ctx, ep, req.Kind, req.Prompt, req.Images, req.Token)
		}(ep)
	}
}

// RunAll launches a fleet run and blocks until every endpoint reaches a
// terminal state.
func (o *Orchestrator) RunAll(ctx context.Context, req *Request) {
	o.Launch(ctx, req)
	o.Wait()
}

// Wait blocks until all in-flight endpoint runs have completed.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
