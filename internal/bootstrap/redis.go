package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mammoth/config"
)

const redisPingTimeout = 5 * time.Second

// redisTarget is a constructed client plus a credential-free description for logs.
type redisTarget struct {
	client redis.UniversalClient
	desc   string
}

// ConnectRedis opens the Redis client selected by cfg (cluster, sentinel or a
// single node) and pings it. It returns (nil, nil) when Redis is disabled.
//
//nolint:ireturn // the concrete client type depends on the deployment topology.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // disabled is not an error
	}

	var (
		target redisTarget
		err    error
	)
	switch {
	case cfg.UseCluster:
		target, err = clusterTarget(cfg)
	case cfg.UseSentinel:
		target, err = sentinelTarget(cfg)
	default:
		target, err = directTarget(cfg)
	}
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if pingErr := target.client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := target.client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis %s: %w", target.desc, pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "redis connected", "addr", target.desc)
	}
	return target.client, nil
}

func clusterTarget(cfg config.RedisConfig) (redisTarget, error) {
	opts := &redis.ClusterOptions{
		Addrs:    normalizeAddrs(cfg.ClusterNodes),
		Password: cfg.Password,
	}
	if len(opts.Addrs) == 0 {
		// A single seed address from REDIS_URI is enough for cluster discovery.
		seed, err := parseSeed(cfg.URI, cfg.Password)
		if err != nil {
			return redisTarget{}, err
		}
		if seed.addr != "" {
			opts.Addrs = []string{seed.addr}
			opts.Username = seed.username
			opts.Password = seed.password
			opts.TLSConfig = seed.tls
		}
	}
	if len(opts.Addrs) == 0 {
		return redisTarget{}, errors.New("redis cluster configuration requires at least one address")
	}
	return redisTarget{
		client: redis.NewClusterClient(opts),
		desc:   "cluster:" + strings.Join(opts.Addrs, ","),
	}, nil
}

func sentinelTarget(cfg config.RedisConfig) (redisTarget, error) {
	nodes := normalizeAddrs(cfg.SentinelNodes)
	if len(nodes) == 0 {
		return redisTarget{}, errors.New("redis sentinel configuration requires at least one sentinel node")
	}
	return redisTarget{
		client: redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.SentinelMasterName,
			SentinelAddrs:    nodes,
			Password:         cfg.Password,
			SentinelPassword: cfg.SentinelPassword,
		}),
		desc: "sentinel:" + cfg.SentinelMasterName,
	}, nil
}

func directTarget(cfg config.RedisConfig) (redisTarget, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return redisTarget{}, errors.New("redis direct configuration requires a URI")
	}
	if !isRedisURL(uri) {
		return redisTarget{
			client: redis.NewClient(&redis.Options{Addr: uri, Password: cfg.Password}),
			desc:   uri,
		}, nil
	}

	opt, err := redis.ParseURL(uri)
	if err != nil {
		return redisTarget{}, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.Password == "" {
		opt.Password = cfg.Password
	}
	return redisTarget{client: redis.NewClient(opt), desc: redactURL(uri, opt.Addr)}, nil
}

type redisSeed struct {
	addr     string
	username string
	password string
	tls      *tls.Config
}

func parseSeed(uri, defaultPassword string) (redisSeed, error) {
	trimmed := strings.TrimSpace(uri)
	if !isRedisURL(trimmed) {
		return redisSeed{addr: trimmed, password: defaultPassword}, nil
	}
	opt, err := redis.ParseURL(trimmed)
	if err != nil {
		return redisSeed{}, fmt.Errorf("parse redis cluster url: %w", err)
	}
	seed := redisSeed{addr: opt.Addr, username: opt.Username, password: defaultPassword, tls: opt.TLSConfig}
	if opt.Password != "" {
		seed.password = opt.Password
	}
	return seed, nil
}

func normalizeAddrs(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}

// redactURL hides credentials; it falls back to addr when uri does not parse.
func redactURL(uri, addr string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return addr
	}
	if u.User != nil {
		u.User = url.User("*")
	}
	return u.Redacted()
}
