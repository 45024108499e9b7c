// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the application.
type Config struct {
	GlobalAdminAlias string          `mapstructure:"global_admin_alias"`
	Schema           SchemaConfig    `mapstructure:"schema"`
	Store            StoreConfig     `mapstructure:"store"`
	Broadcast        BroadcastConfig `mapstructure:"broadcast"`
	Kafka            KafkaConfig     `mapstructure:"kafka"`
	Redis            RedisConfig     `mapstructure:"redis"`
	Actor            ActorConfig     `mapstructure:"actor"`
	Health           HealthConfig    `mapstructure:"health"`
}

type SchemaConfig struct {
	// Dir is an optional directory of extra module descriptor files,
	// loaded after the built-in modules.
	Dir string `mapstructure:"dir"`
}

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

const (
	BroadcastBackendLocal    = "local"
	BroadcastBackendPostgres = "postgres"
	BroadcastBackendKafka    = "kafka"
	BroadcastBackendRedis    = "redis"
)

type BroadcastConfig struct {
	Backend           string        `mapstructure:"backend"`
	Channel           string        `mapstructure:"channel"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`

	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"` // "SCRAM-SHA-256", "SCRAM-SHA-512" or "PLAIN"
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`

	TLSEnabled    bool `mapstructure:"tls_enabled"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	ConsumerGroupPrefix string        `mapstructure:"consumer_group_prefix"`
	ConnectionTimeout   time.Duration `mapstructure:"connection_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ActorConfig struct {
	// AdminKeysFile lists global admin API keys.
	AdminKeysFile string `mapstructure:"admin_keys_file"`
}

type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		GlobalAdminAlias: "admin",
		Store: StoreConfig{
			Backend: StoreBackendPostgres,
		},
		Broadcast: BroadcastConfig{
			Backend:           BroadcastBackendLocal,
			Channel:           "oae-config",
			ReconnectInterval: 5 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:             []string{"localhost:9092"},
			Topic:               "tenantconf.invalidations",
			SASLMechanism:       "SCRAM-SHA-256",
			ConsumerGroupPrefix: "tenantconf",
			ConnectionTimeout:   10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Health: HealthConfig{
			Port: 8090,
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "TENANTCONF" and the dot character
// in keys is replaced by an underscore. For example, "kafka.brokers" becomes
// "TENANTCONF_KAFKA_BROKERS".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("TENANTCONF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = strings.Split(b, ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backend names.
func (c *Config) Validate() error {
	if c.GlobalAdminAlias == "" {
		return fmt.Errorf("global_admin_alias must not be empty")
	}
	switch c.Store.Backend {
	case StoreBackendPostgres, StoreBackendMemory:
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	switch c.Broadcast.Backend {
	case BroadcastBackendLocal, BroadcastBackendPostgres, BroadcastBackendKafka, BroadcastBackendRedis:
	default:
		return fmt.Errorf("unsupported broadcast backend: %s", c.Broadcast.Backend)
	}
	if c.Broadcast.Backend == BroadcastBackendPostgres && c.Store.Backend != StoreBackendPostgres {
		return fmt.Errorf("the postgres broadcast backend requires the postgres store")
	}
	if c.Broadcast.Channel == "" {
		return fmt.Errorf("broadcast.channel must not be empty")
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
