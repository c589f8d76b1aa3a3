// Package scheduler submits wizard inputs to the external solver. The solving
// itself happens elsewhere; this package only guards and carries the request.
package scheduler

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/arnavshah/timetable-wizard-go/pkg/models"
	"github.com/arnavshah/timetable-wizard-go/pkg/webhook"
	"golang.org/x/sync/semaphore"
)

// Solver sends one solve request and returns the raw result.
type Solver interface {
	Solve(ctx context.Context, req models.SolveRequest) (json.RawMessage, error)
}

// Client posts solve requests to the solve webhook.
type Client struct {
	hook *webhook.Client
}

func NewClient(hook *webhook.Client) *Client {
	return &Client{hook: hook}
}

// Solve sends {assignments, timeFrame, constraints} and returns the body verbatim.
func (c *Client) Solve(ctx context.Context, req models.SolveRequest) (json.RawMessage, error) {
	body, err := c.hook.PostJSON(ctx, "scheduler.Solve", req)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// Orchestrator allows a single outstanding solve request and rejects the rest.
type Orchestrator struct {
	solver  Solver
	slot    *semaphore.Weighted
	pending atomic.Bool
}

func NewOrchestrator(solver Solver) *Orchestrator {
	return &Orchestrator{
		solver: solver,
		slot:   semaphore.NewWeighted(1),
	}
}

// RequestSchedule validates req, then forwards it to the solver. An empty assignment
// list fails without any network call. There are no retries.
func (o *Orchestrator) RequestSchedule(ctx context.Context, req models.SolveRequest) (json.RawMessage, error) {
	const op = "scheduler.RequestSchedule"
	if len(req.Assignments) == 0 {
		return nil, errs.Validation(op, "add at least one assignment before scheduling")
	}
	if !o.slot.TryAcquire(1) {
		return nil, errs.Busy(op)
	}
	o.pending.Store(true)
	defer func() {
		o.pending.Store(false)
		o.slot.Release(1)
	}()

	if req.TimeFrame == nil {
		req.TimeFrame = []models.TimeFrameDay{}
	}
	if req.Constraints == nil {
		req.Constraints = []models.Constraint{}
	}
	return o.solver.Solve(ctx, req)
}

// Pending reports whether a request is in flight.
func (o *Orchestrator) Pending() bool { return o.pending.Load() }
