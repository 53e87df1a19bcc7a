package logger

import (
	"context"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	stackDepth  = 16
	modulePath  = "lastmile-backend/"
	fieldStack  = "stack"
	consoleTime = "15:04:05"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	// Level is a zerolog level name; empty or unknown means info.
	Level string
	// WarnStack attaches a caller stack to warnings as well as errors.
	WarnStack bool
	// Format is "json" (default) or "console".
	Format string
	Output io.Writer
}

// Logger writes zerolog entries. Request-scoped fields travel on the
// context through zerolog's own context integration.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	level := ParseLevel(opts.Level)
	var w io.Writer = os.Stdout
	if opts.Output != nil {
		w = opts.Output
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTime}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	return &Logger{
		root:      zerolog.New(w).Level(level).With().Timestamp().Str("service", opts.ServiceName).Logger(),
		warnStack: opts.WarnStack,
	}
}

// ParseLevel maps LASTMILE_LOG_LEVEL to a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// scoped returns the logger attached to ctx, or the root logger.
func (l *Logger) scoped(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if attached := zerolog.Ctx(ctx); attached != zerolog.DefaultContextLogger && attached.GetLevel() != zerolog.Disabled {
			return attached
		}
	}
	return &l.root
}

func (l *Logger) extend(ctx context.Context, add func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	child := add(l.scoped(ctx).With()).Logger()
	return child.WithContext(ctx)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.withString(ctx, "request_id", requestID)
}

func (l *Logger) WithUserID(ctx context.Context, userID string) context.Context {
	return l.withString(ctx, "user_id", userID)
}

func (l *Logger) WithActorRole(ctx context.Context, role string) context.Context {
	return l.withString(ctx, "actor_role", role)
}

// WithShipment tags entries with the shipment and, when known, its order.
func (l *Logger) WithShipment(ctx context.Context, shipmentID, orderID string) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context {
		c = c.Str("shipment_id", shipmentID)
		if orderID == "" {
			return c
		}
		return c.Str("order_id", orderID)
	})
}

func (l *Logger) withString(ctx context.Context, key, value string) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context { return c.Str(key, value) })
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.scoped(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.scoped(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.scoped(ctx).Warn()
	if l.warnStack && ev.Enabled() {
		ev.Strs(fieldStack, stack(3))
	}
	ev.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	ev := l.scoped(ctx).Error()
	if !ev.Enabled() {
		return
	}
	if err != nil {
		ev.Err(err)
	}
	ev.Strs(fieldStack, stack(3)).Msg(msg)
}

// stack renders the caller frames outside the Go runtime, skip frames up.
func stack(skip int) []string {
	pcs := make([]uintptr, stackDepth)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs)])
	var out []string
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			out = append(out, f.Function+" "+relative(f.File)+":"+strconv.Itoa(f.Line))
		}
		if !more {
			return out
		}
	}
}

func relative(file string) string {
	if _, rest, ok := strings.Cut(file, modulePath); ok {
		return rest
	}
	return file
}
