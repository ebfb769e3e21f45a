package agent

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/llm"
	"github.com/BaSui01/canvasflow/tools"
	"github.com/BaSui01/canvasflow/types"
)

// StepRecorder receives per-step execution outcomes for metrics.
type StepRecorder interface {
	RecordPlanStep(tool, status string)
}

// Executor runs the plan-then-execute loop: one planning call, then
// strictly sequential tool invocations. Any failure aborts the task and
// discards results collected so far.
type Executor struct {
	planner  *llm.Planner
	registry *tools.Registry
	recorder StepRecorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// NewExecutor creates an executor. recorder may be nil.
func NewExecutor(planner *llm.Planner, registry *tools.Registry, recorder StepRecorder, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		planner:  planner,
		registry: registry,
		recorder: recorder,
		tracer:   otel.Tracer("canvasflow/agent"),
		logger:   logger.With(zap.String("component", "executor")),
	}
}

// ExecuteTask plans and executes an instruction, returning the collected
// step results joined by newlines.
func (e *Executor) ExecuteTask(ctx context.Context, instruction string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "agent.execute_task",
		trace.WithAttributes(attribute.Int("instruction_len", len(instruction))))
	defer span.End()

	steps, err := e.planner.Plan(ctx, instruction)
	if err != nil {
		span.SetStatus(codes.Error, "planning failed")
		return "", err
	}

	e.logger.Debug("plan ready", zap.Int("steps", len(steps)))

	results := make([]string, 0, len(steps))
	for i, step := range steps {
		// Cancellation is observed between steps; an in-flight handler runs
		// to completion.
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return "", err
		}

		out, err := e.executeStep(ctx, i, step)
		if err != nil {
			span.SetStatus(codes.Error, "step failed")
			return "", err
		}
		results = append(results, out)
	}

	return strings.Join(results, "\n"), nil
}

func (e *Executor) executeStep(ctx context.Context, index int, step llm.PlanStep) (string, error) {
	ctx, span := e.tracer.Start(ctx, "agent.step",
		trace.WithAttributes(
			attribute.Int("step_index", index),
			attribute.String("tool", step.Tool)))
	defer span.End()

	desc, ok := e.registry.Get(step.Tool)
	if !ok {
		e.recordStep(step.Tool, "unknown")
		return "", types.NewUnknownToolError(step.Tool)
	}

	if res := e.registry.Validate(step.Tool, step.Params); !res.Valid {
		e.recordStep(step.Tool, "invalid")
		return "", types.NewToolValidationError(step.Tool, strings.Join(res.Errors, "; "))
	}

	out, err := desc.Handler(ctx, step.Params)
	if err != nil {
		e.recordStep(step.Tool, "error")
		return "", types.NewError(types.ErrToolExecution, fmt.Sprintf("tool %s failed", step.Tool)).WithCause(err)
	}
	e.recordStep(step.Tool, "success")

	return stringifyResult(out), nil
}

func (e *Executor) recordStep(tool, status string) {
	if e.recorder != nil {
		e.recorder.RecordPlanStep(tool, status)
	}
}

// stringifyResult renders a handler result for the aggregated output:
// strings pass through, maps contribute their data field, everything else
// is formatted verbatim.
func stringifyResult(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if data, ok := v["data"]; ok {
			return fmt.Sprintf("%v", data)
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
