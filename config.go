package storekit

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gobeaver/beaver-kit/config"
	"github.com/mitchellh/mapstructure"
)

// BackendConfig declares one named backend: a registered type plus the
// type-specific options its factory decodes.
type BackendConfig struct {
	Type    string         `mapstructure:"type" validate:"required"`
	Options map[string]any `mapstructure:"options"`
}

// StoreProfile declares one named store: a reference to a backend
// config plus the root prefix the store is scoped under.
type StoreProfile struct {
	Backend  string `mapstructure:"backend" validate:"required"`
	RootPath string `mapstructure:"root_path"`
}

// RegistryConfig is the full declarative configuration a Registry is
// built from.
type RegistryConfig struct {
	Backends map[string]BackendConfig `mapstructure:"backends" validate:"required,min=1,dive"`
	Stores   map[string]StoreProfile  `mapstructure:"stores" validate:"required,min=1,dive"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the configuration shape and cross-references: every
// store profile must point at a declared backend, and every root path
// must be valid. Runs eagerly at registry construction so wiring
// mistakes surface before any backend is built.
func (c RegistryConfig) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid registry config: %w", err)
	}
	available := c.backendNames()
	for name, profile := range c.Stores {
		if _, ok := c.Backends[profile.Backend]; !ok {
			return fmt.Errorf(
				"store %q references unknown backend %q. Available backends: %s",
				name, profile.Backend, strings.Join(available, ", "))
		}
		if profile.RootPath != "" {
			if _, err := NewPath(profile.RootPath); err != nil {
				return fmt.Errorf("store %q has an invalid root_path: %w", name, err)
			}
		}
	}
	return nil
}

func (c RegistryConfig) backendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c RegistryConfig) storeNames() []string {
	names := make([]string, 0, len(c.Stores))
	for name := range c.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfigFromMap decodes a generic map (parsed YAML/JSON,
// settings blob) into a RegistryConfig and validates it.
func RegistryConfigFromMap(data map[string]any) (RegistryConfig, error) {
	var cfg RegistryConfig
	if err := mapstructure.Decode(data, &cfg); err != nil {
		return RegistryConfig{}, fmt.Errorf("cannot decode registry config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RegistryConfig{}, err
	}
	return cfg, nil
}

// EnvConfig is the flat environment-variable configuration for the
// common single-backend setup. RegistryConfigFromEnv expands it into a
// one-backend, one-store RegistryConfig named "default".
type EnvConfig struct {
	// Backend type to use (local, s3, s3-hybrid, sftp, memory)
	Backend  string `env:"STOREKIT_BACKEND,default:local"`
	RootPath string `env:"STOREKIT_ROOT_PATH"`

	// Local backend configuration
	LocalRoot string `env:"STOREKIT_LOCAL_ROOT,default:./storage"`

	// S3 backend configuration (shared by s3 and s3-hybrid)
	S3Region          string `env:"STOREKIT_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"STOREKIT_S3_BUCKET"`
	S3Endpoint        string `env:"STOREKIT_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"STOREKIT_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"STOREKIT_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"STOREKIT_S3_FORCE_PATH_STYLE,default:false"`

	// SFTP backend configuration
	SFTPHost           string `env:"STOREKIT_SFTP_HOST"`
	SFTPPort           int    `env:"STOREKIT_SFTP_PORT,default:22"`
	SFTPUsername       string `env:"STOREKIT_SFTP_USERNAME"`
	SFTPPassword       string `env:"STOREKIT_SFTP_PASSWORD"`
	SFTPPrivateKey     string `env:"STOREKIT_SFTP_PRIVATE_KEY"`
	SFTPPrivateKeyFile string `env:"STOREKIT_SFTP_PRIVATE_KEY_FILE"`
	SFTPBasePath       string `env:"STOREKIT_SFTP_BASE_PATH,default:/"`
	SFTPHostKeyPolicy  string `env:"STOREKIT_SFTP_HOST_KEY_POLICY,default:strict"`
	SFTPKnownHostKeys  string `env:"STOREKIT_SFTP_KNOWN_HOST_KEYS"`
}

// GetEnvConfig returns config loaded from environment
func GetEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RegistryConfigFromEnv loads EnvConfig and expands it into a
// single-store RegistryConfig named "default".
func RegistryConfigFromEnv() (RegistryConfig, error) {
	env, err := GetEnvConfig()
	if err != nil {
		return RegistryConfig{}, err
	}
	return env.RegistryConfig()
}

// RegistryConfig expands the flat env settings into a declarative
// registry config with one backend and one store, both named
// "default".
func (e *EnvConfig) RegistryConfig() (RegistryConfig, error) {
	var options map[string]any
	switch e.Backend {
	case "local":
		options = map[string]any{"root": e.LocalRoot}
	case "s3", "s3-hybrid":
		options = map[string]any{
			"bucket":            e.S3Bucket,
			"region":            e.S3Region,
			"endpoint":          e.S3Endpoint,
			"access_key_id":     e.S3AccessKeyID,
			"secret_access_key": e.S3SecretAccessKey,
			"force_path_style":  e.S3ForcePathStyle,
		}
	case "sftp":
		options = map[string]any{
			"host":             e.SFTPHost,
			"port":             e.SFTPPort,
			"username":         e.SFTPUsername,
			"password":         e.SFTPPassword,
			"private_key":      e.SFTPPrivateKey,
			"private_key_file": e.SFTPPrivateKeyFile,
			"base_path":        e.SFTPBasePath,
			"host_key_policy":  e.SFTPHostKeyPolicy,
			"known_host_keys":  e.SFTPKnownHostKeys,
		}
	case "memory":
		options = map[string]any{}
	default:
		return RegistryConfig{}, fmt.Errorf(
			"unknown backend type %q. Registered types: %s",
			e.Backend, strings.Join(RegisteredBackends(), ", "))
	}

	cfg := RegistryConfig{
		Backends: map[string]BackendConfig{
			"default": {Type: e.Backend, Options: options},
		},
		Stores: map[string]StoreProfile{
			"default": {Backend: "default", RootPath: e.RootPath},
		},
	}
	if err := cfg.Validate(); err != nil {
		return RegistryConfig{}, err
	}
	return cfg, nil
}
