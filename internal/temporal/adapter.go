package temporal

import (
	"fmt"
	"reflect"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// ZapAdapter routes Temporal SDK logs into zap
type ZapAdapter struct {
	logger *zap.Logger
}

var (
	_ log.Logger     = (*ZapAdapter)(nil)
	_ log.WithLogger = (*ZapAdapter)(nil)
)

func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...interface{}) { z.logger.Debug(msg, fields(keyvals)...) }
func (z *ZapAdapter) Info(msg string, keyvals ...interface{})  { z.logger.Info(msg, fields(keyvals)...) }
func (z *ZapAdapter) Warn(msg string, keyvals ...interface{})  { z.logger.Warn(msg, fields(keyvals)...) }
func (z *ZapAdapter) Error(msg string, keyvals ...interface{}) { z.logger.Error(msg, fields(keyvals)...) }

func (z *ZapAdapter) With(keyvals ...interface{}) log.Logger {
	return &ZapAdapter{logger: z.logger.With(fields(keyvals)...)}
}

// fields pairs up keyvals; a non-string key or a trailing key is kept
// under a positional name instead of being dropped.
func fields(keyvals []interface{}) []zap.Field {
	out := make([]zap.Field, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("arg%d", i)
		}
		if i+1 >= len(keyvals) {
			out = append(out, zap.String(key, "<missing>"))
			break
		}
		out = append(out, field(key, keyvals[i+1]))
	}
	return out
}

func field(key string, val interface{}) (f zap.Field) {
	defer func() {
		if r := recover(); r != nil {
			f = zap.String(key, fmt.Sprintf("<unserializable: %v>", r))
		}
	}()
	if val == nil {
		return zap.String(key, "<nil>")
	}
	if err, ok := val.(error); ok {
		return zap.NamedError(key, err)
	}
	switch reflect.ValueOf(val).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return zap.String(key, fmt.Sprintf("<%T>", val))
	default:
		return zap.Any(key, val)
	}
}

// Dial connects to the Temporal frontend with SDK logs routed through zap
func Dial(hostPort, namespace string, logger *zap.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    NewZapAdapter(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", hostPort, err)
	}
	return c, nil
}
