package config

import "strings"

// RedisConfig contains Redis configuration. Redis is optional; it backs the
// lost-outcome store and the remote stop channel.
type RedisConfig struct {
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`

	StopChannel     string `env:"STOP_CHANNEL"      envDefault:"mammoth:stop"`
	LostOutcomesKey string `env:"LOST_OUTCOMES_KEY" envDefault:"mammoth:lost-outcomes"`
}

// Sanitize trims key names and restores defaults when blank.
func (c *RedisConfig) Sanitize() {
	c.URI = strings.TrimSpace(c.URI)
	if c.StopChannel = strings.TrimSpace(c.StopChannel); c.StopChannel == "" {
		c.StopChannel = "mammoth:stop"
	}
	if c.LostOutcomesKey = strings.TrimSpace(c.LostOutcomesKey); c.LostOutcomesKey == "" {
		c.LostOutcomesKey = "mammoth:lost-outcomes"
	}
}
