package server

import (
	"context"
	"sync"

	"github.com/teemow/inboxpilot/internal/agent"
)

// QueryHandler answers a natural-language query. Satisfied by
// agent.Orchestrator.
type QueryHandler interface {
	HandleQuery(ctx context.Context, text string) *agent.Response
}

// Pinger is a cheap reachability probe against an upstream service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerContext holds the shared state of the API server: the query
// handler and the per-service probes backing the status endpoint.
type ServerContext struct {
	ctx     context.Context
	cancel  context.CancelFunc
	handler QueryHandler
	probes  map[string]Pinger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context around the given query
// handler. Probes for unconfigured services are simply not registered;
// the status endpoint reports those as not configured.
func NewServerContext(ctx context.Context, handler QueryHandler) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:     shutdownCtx,
		cancel:  cancel,
		handler: handler,
		probes:  make(map[string]Pinger),
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Handler returns the query handler.
func (sc *ServerContext) Handler() QueryHandler {
	return sc.handler
}

// RegisterProbe registers a reachability probe for a service name.
func (sc *ServerContext) RegisterProbe(service string, p Pinger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.probes[service] = p
}

// Probe returns the probe registered for a service, or nil.
func (sc *ServerContext) Probe(service string) Pinger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.probes[service]
}

// Probes returns a copy of the registered probes keyed by service name.
func (sc *ServerContext) Probes() map[string]Pinger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make(map[string]Pinger, len(sc.probes))
	for name, p := range sc.probes {
		out[name] = p
	}
	return out
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
