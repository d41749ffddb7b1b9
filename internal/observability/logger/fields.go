package logger

import (
	"time"

	"go.uber.org/zap"
)

// ─── HTTP ───

func RequestID(v string) zap.Field         { return zap.String("request_id", v) }
func Method(v string) zap.Field            { return zap.String("method", v) }
func Path(v string) zap.Field              { return zap.String("path", v) }
func Status(v int) zap.Field               { return zap.Int("status", v) }
func Bytes(v int) zap.Field                { return zap.Int("bytes", v) }
func DurationMs(v int64) zap.Field         { return zap.Int64("duration_ms", v) }
func ClientIP(v string) zap.Field          { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field         { return zap.String("user_agent", v) }
func RetryAfter(v time.Duration) zap.Field { return zap.Duration("retry_after", v) }

// ─── Dominio ───

// UserID identifica al usuario. Para intentos con email desconocido se usa el id de sistema.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// EventType es el tipo de evento de auditoría.
func EventType(v string) zap.Field { return zap.String("event_type", v) }

func DeviceID(v string) zap.Field { return zap.String("device_id", v) }
func RateKey(v string) zap.Field  { return zap.String("rate_key", v) }
func Driver(v string) zap.Field   { return zap.String("driver", v) }
func Outcome(v string) zap.Field  { return zap.String("outcome", v) }

// ─── Sistema ───

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }

// ─── Genéricos ───

func Count(v int) zap.Field               { return zap.Int("count", v) }
func Int64(key string, v int64) zap.Field { return zap.Int64(key, v) }
func String(key, v string) zap.Field      { return zap.String(key, v) }
func Int(key string, v int) zap.Field     { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field   { return zap.Bool(key, v) }
func Any(key string, v any) zap.Field     { return zap.Any(key, v) }
