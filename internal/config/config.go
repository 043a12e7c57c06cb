package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config captures server configuration read from the environment.
type Config struct {
	Port        string `koanf:"port"`
	DatabaseURL string `koanf:"database_url"` // empty: in-memory policy store

	RedisURL       string        `koanf:"redis_url"` // empty: in-memory policy cache
	PolicyCacheTTL time.Duration `koanf:"policy_cache_ttl"`

	PolicyFile  string `koanf:"policy_file"`  // YAML policies loaded at startup
	PolicyWatch bool   `koanf:"policy_watch"` // reload PolicyFile on change

	KafkaBrokers       []string `koanf:"kafka_brokers"` // empty: decision events are logged
	KafkaDecisionTopic string   `koanf:"kafka_decision_topic"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

func defaultConfig() Config {
	return Config{
		Port:               "8080",
		PolicyCacheTTL:     5 * time.Minute,
		KafkaDecisionTopic: "loan-policy-decisions",
		ShutdownTimeout:    30 * time.Second,
	}
}

// FromEnv builds a Config from environment variables so main stays lean.
// Variable names are the upper-cased koanf keys (POLICY_CACHE_TTL). Unset
// or empty variables keep their defaults.
func FromEnv() (Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if strings.TrimSpace(value) == "" {
			return "", nil
		}
		return strings.ToLower(key), value
	}), nil); err != nil {
		return cfg, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           &cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				secondsOrDurationHook(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)

	if cfg.PolicyWatch && cfg.PolicyFile == "" {
		return cfg, fmt.Errorf("POLICY_WATCH requires POLICY_FILE")
	}
	return cfg, nil
}

// secondsOrDurationHook accepts Go durations ("90s") or whole seconds ("90").
func secondsOrDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != durationType {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if secs, err := strconv.Atoi(s); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return d, nil
	}
}

func compact(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
