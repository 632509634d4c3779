package primebox

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log     LogConfig     `toml:"log"`
	DB      DBConfig      `toml:"db"`
	Redis   RedisConfig   `toml:"redis"`
	Chain   ChainConfig   `toml:"chain"`
	Boxes   BoxesConfig   `toml:"boxes"`
	Webhook WebhookConfig `toml:"webhook"`
	Spaces  SpacesConfig  `toml:"spaces"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	PoolSize int    `toml:"pool_size"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type ChainConfig struct {
	// Endpoints are the RPC nodes the connection pool rotates over.
	Endpoints []string `toml:"endpoints"`
	ProgramID string   `toml:"program_id"`
	// AuthorityKey is the base58 ed25519 seed of the co-signing authority.
	AuthorityKey   string `toml:"authority_key"`
	PassCollection string `toml:"pass_collection"`
	// Operators are wallets allowed to manage boxes, verified by signed message.
	Operators []string `toml:"operators"`
}

type BoxesConfig struct {
	// PreferUnshuffled biases item selection to never-reshuffled items.
	PreferUnshuffled bool  `toml:"prefer_unshuffled"`
	CooldownSeconds  int64 `toml:"cooldown_seconds"`
}

type WebhookConfig struct {
	URL string `toml:"url"`
}

type SpacesConfig struct {
	Key      string `toml:"key"`
	Secret   string `toml:"secret"`
	Region   string `toml:"region"`
	Bucket   string `toml:"bucket"`
	ItemRoot string `toml:"itemroot"`
}
