// ViolationLogger emits an ERROR log record for every lifecycle violation.
// The record body is the full diagnostic report.
package otelbridge

import (
	"context"

	"github.com/andrewh/obscheck/pkg/observation"
	"github.com/andrewh/obscheck/pkg/validator"
	"go.opentelemetry.io/otel/log"
)

// ViolationLogger is a validator.Listener that logs via the OTel Logs API.
type ViolationLogger struct {
	logger log.Logger
}

var _ validator.Listener = (*ViolationLogger)(nil)

// NewViolationLogger creates a ViolationLogger that emits logs via the given LoggerProvider.
func NewViolationLogger(lp log.LoggerProvider) *ViolationLogger {
	return &ViolationLogger{logger: lp.Logger(instrumentationName)}
}

// OnViolation emits one record describing err.
func (l *ViolationLogger) OnViolation(ctx *observation.Context, err *validator.InvalidObservationError) {
	var rec log.Record
	rec.SetSeverity(log.SeverityError)
	rec.SetSeverityText("ERROR")
	rec.SetBody(log.StringValue(err.Report()))
	rec.AddAttributes(
		log.String("observation.name", ctx.Name),
		log.String("observation.id", ctx.ID.String()),
		log.String("observation.signal", err.Kind.String()),
		log.String("observation.precondition", err.Precondition.String()),
		log.Int("observation.history.length", len(err.History)),
	)
	l.logger.Emit(context.Background(), rec)
}
