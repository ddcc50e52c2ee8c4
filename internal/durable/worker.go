package durable

import (
	"fmt"
	"sync"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Options configures a durable Worker.
type Options struct {
	TaskQueue     string
	Namespace     string
	MaxConcurrent int
}

func (o *Options) setDefaults() {
	if o.TaskQueue == "" {
		o.TaskQueue = "tasksup-durable"
	}
	if o.Namespace == "" {
		o.Namespace = "default"
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 10
	}
}

// Worker hosts the durable activities and workflows backing
// RunDependencyWavesWorkflow. Start/Stop are idempotent and mutex-guarded.
type Worker struct {
	mu      sync.RWMutex
	started bool

	client client.Client
	worker worker.Worker
	opts   Options
}

// NewWorker dials the Temporal client and registers the worker, without
// starting it.
func NewWorker(opts Options) (*Worker, error) {
	opts.setDefaults()

	c, err := client.Dial(client.Options{HostPort: client.DefaultHostPort, Namespace: opts.Namespace})
	if err != nil {
		return nil, fmt.Errorf("dialing temporal: %w", err)
	}

	w := worker.New(c, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: opts.MaxConcurrent,
	})

	dw := &Worker{client: c, worker: w, opts: opts}
	dw.RegisterWorkflow(RunDependencyWavesWorkflow)
	dw.RegisterActivity((&Activities{}).ExecuteTask)
	return dw, nil
}

// RegisterWorkflow registers a workflow function before Start is called.
func (w *Worker) RegisterWorkflow(fn any) {
	w.worker.RegisterWorkflow(fn)
}

// RegisterActivity registers an activity function before Start is called.
func (w *Worker) RegisterActivity(fn any) {
	w.worker.RegisterActivity(fn)
}

// Start runs the worker in the background. Calling Start twice is a no-op.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("starting durable worker: %w", err)
	}
	w.started = true
	return nil
}

// Stop shuts the worker down. Calling Stop on a never-started or
// already-stopped worker is a no-op.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.worker.Stop()
	w.started = false
}

// Close releases the underlying Temporal client connection.
func (w *Worker) Close() {
	w.client.Close()
}

// Client exposes the underlying Temporal client for callers that need to
// start or signal workflows directly.
func (w *Worker) Client() client.Client { return w.client }
