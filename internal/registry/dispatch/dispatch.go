// Package dispatch routes validated commands to their flows and wraps the
// outcome in the protocol response envelope.
package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/registrolabs/corenic/internal/epp"
	apperrors "github.com/registrolabs/corenic/internal/platform/errors"
	"github.com/registrolabs/corenic/internal/platform/id"
	"github.com/registrolabs/corenic/internal/registry/flows"
	"github.com/registrolabs/corenic/internal/registry/storage"
	"github.com/registrolabs/corenic/internal/registry/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const serverTRIDPrefix = "SRV-"

// Dispatcher executes commands end to end: envelope validation, flow
// routing, transactional execution, and response assembly. Every command
// gets a response; failures are encoded in the result code, never panics
// or transport errors.
type Dispatcher struct {
	Engine    *flows.Engine
	Flows     *flows.Flows
	Telemetry *telemetry.Emitter
	Metrics   *Metrics
	Logger    *log.Logger
	// Tracer overrides the default tracer, for tests.
	Tracer trace.Tracer
	// Now overrides the telemetry clock, for tests.
	Now func() time.Time
}

func (d *Dispatcher) tracer() trace.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}
	return otel.Tracer("corenic/dispatch")
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Dispatch executes one command and always returns a response envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd epp.Command) epp.Response {
	start := d.now()
	serverTRID := serverTRIDPrefix + id.MustNewID()

	ctx, span := d.tracer().Start(ctx, "epp.command",
		trace.WithAttributes(
			attribute.String("epp.op", string(cmd.Op)),
			attribute.String("epp.resource", string(cmd.Resource)),
			attribute.String("epp.target", cmd.Target),
			attribute.String("epp.registrar", cmd.RegistrarID),
			attribute.Bool("epp.dry_run", cmd.DryRun),
		),
	)
	defer span.End()

	result := d.execute(ctx, cmd)

	response := epp.Response{
		Result: epp.ResultFor(result.Code),
		TRID: epp.TRID{
			ClientTransactionID: cmd.ClientTRID,
			ServerTransactionID: serverTRID,
		},
		ResData: result.ResData,
	}

	if response.Result.IsSuccess() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, response.Result.Message)
	}
	span.SetAttributes(attribute.Int("epp.result_code", response.Result.Code))

	elapsed := d.now().Sub(start)
	d.Metrics.observe(string(cmd.Op), string(cmd.Resource), response.Result.Code, elapsed)

	if err := d.Telemetry.Emit(ctx, storage.TelemetryEvent{
		Timestamp:   start,
		Command:     string(cmd.Op),
		Resource:    string(cmd.Resource),
		Target:      cmd.Target,
		RegistrarID: cmd.RegistrarID,
		ResultCode:  response.Result.Code,
		ServerTRID:  serverTRID,
		ClientTRID:  cmd.ClientTRID,
		DurationMS:  elapsed.Milliseconds(),
		DryRun:      cmd.DryRun,
	}); err != nil && d.Logger != nil {
		d.Logger.Printf("telemetry emit %s: %v", serverTRID, err)
	}

	return response
}

func (d *Dispatcher) execute(ctx context.Context, cmd epp.Command) flows.Result {
	if err := cmd.Validate(); err != nil {
		return flows.Result{Code: apperrors.GetCode(err).EPPCode()}
	}

	fn, err := d.Flows.ForCommand(cmd)
	if err != nil {
		return flows.Result{Code: apperrors.GetCode(err).EPPCode()}
	}

	mode := flows.ModeLive
	if cmd.DryRun {
		mode = flows.ModeDryRun
	}

	result, err := d.Engine.Run(ctx, mode, fn)
	if err != nil && d.Logger != nil && result.Code == apperrors.EPPCommandFailed {
		d.Logger.Printf("command %s %s %s failed: %v", cmd.Op, cmd.Resource, cmd.Target, err)
	}
	return result
}
