package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendDisk     = "disk"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

type Config struct {
	Port        string        `yaml:"port"`
	Env         string        `yaml:"env"`
	CORSOrigins []string      `yaml:"cors_origins"`
	LLM         LLMConfig     `yaml:"llm"`
	Sandbox     SandboxConfig `yaml:"sandbox"`
	Cache       CacheConfig   `yaml:"cache"`
}

type LLMConfig struct {
	Provider string        `yaml:"provider"`
	APIKey   string        `yaml:"-"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	RPS      float64       `yaml:"rps"`
	Burst    int           `yaml:"burst"`
	Timeout  time.Duration `yaml:"timeout"`
}

type SandboxConfig struct {
	Root               string        `yaml:"root"`
	Timeout            time.Duration `yaml:"timeout"`
	Workers            int           `yaml:"workers"`
	DefaultTestCommand string        `yaml:"default_test_command"`
	MaxOutputBytes     int           `yaml:"max_output_bytes"`
}

type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	TTL         time.Duration `yaml:"ttl"`
	MaxEntries  int           `yaml:"max_entries"`
	DiskRoot    string        `yaml:"disk_root"`
	PostgresDSN string        `yaml:"-"`
	S3          S3Config      `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Default is the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port: ":8081",
		Env:  "local",
		LLM: LLMConfig{
			Timeout: 60 * time.Second,
		},
		Sandbox: SandboxConfig{
			Timeout:            10 * time.Second,
			DefaultTestCommand: "python index.py",
		},
		Cache: CacheConfig{
			Backend:    BackendMemory,
			TTL:        time.Hour,
			MaxEntries: 1024,
			DiskRoot:   "tmp/result-cache",
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "codementor-cache",
				Prefix: "result-cache",
				UseSSL: true,
			},
		},
	}
}

// Load layers .env, the optional YAML file named by CODEMENTOR_CONFIG, environment
// variables and finally command-line flags.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CODEMENTOR_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "server port")
	fs.StringVar(&cfg.LLM.Provider, "llm-provider", cfg.LLM.Provider, "gemini, openai or fake")
	fs.StringVar(&cfg.Cache.Backend, "cache-backend", cfg.Cache.Backend, "memory, disk, postgres or s3")
	fs.IntVar(&cfg.Sandbox.Workers, "sandbox-workers", cfg.Sandbox.Workers, "sandbox worker goroutines (0 = NumCPU)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Port = normalizePort(cfg.Port)
	cfg.resolveCredential()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	setString(&c.Port, "PORT")
	setString(&c.Env, "APP_ENV")
	if v := env("CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	errs = append(errs,
		setFloat(&c.LLM.RPS, "LLM_RPS"),
		setInt(&c.LLM.Burst, "LLM_BURST"),
		setDuration(&c.LLM.Timeout, "AGENT_TIMEOUT"),
	)

	setString(&c.Sandbox.Root, "SANDBOX_ROOT")
	setString(&c.Sandbox.DefaultTestCommand, "SANDBOX_DEFAULT_TEST_COMMAND")
	errs = append(errs,
		setDuration(&c.Sandbox.Timeout, "SANDBOX_TIMEOUT"),
		setInt(&c.Sandbox.Workers, "SANDBOX_WORKERS"),
		setInt(&c.Sandbox.MaxOutputBytes, "SANDBOX_MAX_OUTPUT_BYTES"),
	)

	setString(&c.Cache.Backend, "CACHE_BACKEND")
	setString(&c.Cache.DiskRoot, "CACHE_DISK_ROOT")
	setString(&c.Cache.PostgresDSN, "CACHE_PG_DSN")
	setString(&c.Cache.S3.Endpoint, "CACHE_S3_ENDPOINT")
	setString(&c.Cache.S3.Region, "CACHE_S3_REGION")
	setString(&c.Cache.S3.AccessKey, "CACHE_S3_ACCESS_KEY")
	setString(&c.Cache.S3.SecretKey, "CACHE_S3_SECRET_KEY")
	setString(&c.Cache.S3.Bucket, "CACHE_S3_BUCKET")
	setString(&c.Cache.S3.Prefix, "CACHE_S3_PREFIX")
	errs = append(errs,
		setDuration(&c.Cache.TTL, "CACHE_TTL"),
		setInt(&c.Cache.MaxEntries, "CACHE_MAX_ENTRIES"),
		setBool(&c.Cache.S3.UseSSL, "CACHE_S3_USE_SSL"),
	)
	return errors.Join(errs...)
}

// resolveCredential runs after every layer so the key always matches the final provider.
func (c *Config) resolveCredential() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	openaiKey := env("OPENAI_API_KEY")
	geminiKey := firstNonEmpty(env("GEMINI_API_KEY"), env("GOOGLE_API_KEY"))
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
		if openaiKey != "" && geminiKey == "" {
			c.LLM.Provider = "openai"
		}
	}
	switch c.LLM.Provider {
	case "openai":
		c.LLM.APIKey = openaiKey
	case "gemini":
		c.LLM.APIKey = geminiKey
	default:
		c.LLM.APIKey = ""
	}
}

func (c *Config) Validate() error {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	switch c.Cache.Backend {
	case BackendMemory, BackendDisk:
	case BackendPostgres:
		if c.Cache.PostgresDSN == "" {
			return errors.New("CACHE_PG_DSN is required for the postgres cache backend")
		}
	case BackendS3:
		if strings.TrimSpace(c.Cache.S3.Endpoint) == "" || strings.TrimSpace(c.Cache.S3.Bucket) == "" {
			return errors.New("CACHE_S3_ENDPOINT and CACHE_S3_BUCKET are required for the s3 cache backend")
		}
		if strings.TrimSpace(c.Cache.S3.AccessKey) == "" || strings.TrimSpace(c.Cache.S3.SecretKey) == "" {
			return errors.New("CACHE_S3_ACCESS_KEY and CACHE_S3_SECRET_KEY are required for the s3 cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	switch c.LLM.Provider {
	case "gemini", "openai", "fake":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Sandbox.Workers < 0 {
		return fmt.Errorf("sandbox workers must be >= 0, got %d", c.Sandbox.Workers)
	}
	return nil
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

// setDuration accepts Go durations ("90s") or a bare number of seconds.
func setDuration(dst *time.Duration, key string) error {
	v := env(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
