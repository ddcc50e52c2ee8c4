package durable

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"
)

// DependencyTask is one unit of work in a durable task tree: a name, the
// names of tasks it depends on, and an opaque payload passed to the
// activity that executes it.
type DependencyTask struct {
	Name    string
	Depends []string
	Payload string
}

// WavesInput is the argument to RunDependencyWavesWorkflow.
type WavesInput struct {
	Tasks []DependencyTask
}

// WavesResult reports which tasks completed and which failed.
type WavesResult struct {
	Completed map[string]string
	Failed    map[string]string
}

// Activities hosts the durable activity implementations.
type Activities struct{}

// ExecuteTask is the activity a durable wave invokes for each ready task.
// It runs off the workflow goroutine so the workflow itself stays
// deterministic. It records a heartbeat and returns "completed:<name>"; the
// Payload is not read.
func (a *Activities) ExecuteTask(ctx context.Context, t DependencyTask) (string, error) {
	activity.RecordHeartbeat(ctx, "running")
	return fmt.Sprintf("completed:%s", t.Name), nil
}

func getReadyTasks(tasks []DependencyTask, completed map[string]bool) []DependencyTask {
	var ready []DependencyTask
	for _, t := range tasks {
		if completed[t.Name] {
			continue
		}
		allMet := true
		for _, dep := range t.Depends {
			if !completed[dep] {
				allMet = false
				break
			}
		}
		if allMet {
			ready = append(ready, t)
		}
	}
	return ready
}

// RunDependencyWavesWorkflow executes tasks one dependency-satisfying wave
// at a time: every task whose dependencies are all complete runs in the
// current wave, concurrently, and the workflow only advances once the wave
// drains. Deadlocked input (no ready task but work remaining) fails fast.
func RunDependencyWavesWorkflow(ctx workflow.Context, input WavesInput) (*WavesResult, error) {
	logger := workflow.GetLogger(ctx)
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	result := &WavesResult{Completed: map[string]string{}, Failed: map[string]string{}}
	completed := map[string]bool{}
	var a *Activities

	for len(completed) < len(input.Tasks) {
		ready := getReadyTasks(input.Tasks, completed)
		if len(ready) == 0 {
			return result, fmt.Errorf("no ready tasks but %d/%d incomplete: dependency deadlock", len(input.Tasks)-len(completed), len(input.Tasks))
		}

		selector := workflow.NewSelector(ctx)
		futures := make(map[string]workflow.Future, len(ready))
		for _, t := range ready {
			future := workflow.ExecuteActivity(ctx, a.ExecuteTask, t)
			futures[t.Name] = future
			name := t.Name
			selector.AddFuture(future, func(f workflow.Future) {
				var out string
				if err := f.Get(ctx, &out); err != nil {
					logger.Error("task failed", "name", name, "error", err)
					result.Failed[name] = err.Error()
				} else {
					result.Completed[name] = out
				}
				completed[name] = true
			})
		}
		for range futures {
			selector.Select(ctx)
		}
	}
	return result, nil
}
