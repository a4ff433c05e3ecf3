package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments r and logs its traffic at debug level under the given role
// (sessions, leaderboard, pubsub).
func MonitorRedis(r redis.UniversalClient, role string) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLog{l: slog.Default().With("redis", role)})
	return nil
}

type redisLog struct {
	l *slog.Logger
}

func (h redisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			h.l.WarnContext(ctx, "redis: dial failed", "addr", addr, "error", err)
			return conn, err
		}
		h.l.InfoContext(ctx, "redis: connected", "network", network, "addr", addr)
		return conn, nil
	}
}

func (h redisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := hook(ctx, cmd)
		h.l.DebugContext(ctx, "redis: command", "cmd", cmd.Name(), "error", ignoreNil(err))
		return err
	}
}

func (h redisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := hook(ctx, cmds)
		h.l.DebugContext(ctx, "redis: pipeline", "cmds", len(cmds), "error", ignoreNil(err))
		return err
	}
}

// ignoreNil hides redis.Nil, which only means a key is missing.
func ignoreNil(err error) error {
	if err == redis.Nil {
		return nil
	}
	return err
}
