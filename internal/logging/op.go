package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Op represents one account operation (login, validate, ...) for the purpose
// of correlated logging.
type Op struct {
	logger *slog.Logger
	start  time.Time
}

// StartOp derives an operation-scoped logger, tagging it with the operation
// name and a fresh operation id. It returns the derived context and a handle
// used to emit the completion entry.
func StartOp(ctx context.Context, name string) (context.Context, *Op) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx).With(
		slog.String("op", name),
		slog.String("op_id", uuid.NewString()),
	)
	ctx = WithLogger(ctx, logger)

	return ctx, &Op{logger: logger, start: time.Now()}
}

// End emits the completion entry with the final HTTP status of the operation.
func (o *Op) End(status int, err error) {
	if o == nil {
		return
	}
	if err != nil {
		o.logger.Warn("operation failed",
			slog.Int("status", status),
			slog.Duration("duration", time.Since(o.start)),
			slog.String("error", err.Error()),
		)
		return
	}
	o.logger.Info("operation completed",
		slog.Int("status", status),
		slog.Duration("duration", time.Since(o.start)),
	)
}
