package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/pingcap/tidb/br/pkg/storage"
)

const (
	// DefaultCatalog is the platform's built-in catalog; it is never provisioned.
	DefaultCatalog = "hive_metastore"

	// LighthouseWorkers is the fixed worker count of the lighthouse profile.
	LighthouseWorkers = 8

	defaultScratchRoot = "/local_disk0"
	defaultRuntime     = "java"
	defaultHeap        = "2g"
	defaultVolumesRoot = "/Volumes"
	defaultPrincipal   = "account users"
	defaultDriver      = "mysql"
	defaultLogLevel    = "info"
)

type S3Config struct {
	Region          string `toml:"region,omitempty"`
	AccessKey       string `toml:"access_key,omitempty"`
	SecretAccessKey string `toml:"secret_key,omitempty"`
	Provider        string `toml:"provider,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	Force           bool   `toml:"force,omitempty"`
	RoleArn         string `toml:"role_arn,omitempty"`
}

type GCSConfig struct {
	Credential string `toml:"credential,omitempty"`
}

// RunConfig holds the fully resolved parameters of a single run. It is built
// once by Load/Normalize and only read afterwards.
type RunConfig struct {
	ScaleFactor   string `toml:"scale_factor"`
	Catalog       string `toml:"catalog"`
	ToolDir       string `toml:"tool_dir"`
	Destination   string `toml:"destination"`
	ManagedVolume bool   `toml:"managed_volume"`
	Lighthouse    bool   `toml:"lighthouse"`
	ScratchRoot   string `toml:"scratch_root"`

	// DefaultParallelism is the ambient parallelism of the execution
	// environment, supplied by the caller.
	DefaultParallelism int `toml:"default_parallelism"`
}

type GeneratorConfig struct {
	Runtime string `toml:"runtime"`
	Heap    string `toml:"heap"`

	// HeapBytes is derived at runtime and not read from config.
	HeapBytes int64 `toml:"-"`
}

type CatalogConfig struct {
	VolumesRoot string `toml:"volumes_root"`
	Principal   string `toml:"principal"`
	Driver      string `toml:"driver,omitempty"`
	DSN         string `toml:"dsn,omitempty"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file,omitempty"`
}

type Config struct {
	Run       RunConfig       `toml:"run"`
	Generator GeneratorConfig `toml:"generator"`
	Catalog   CatalogConfig   `toml:"catalog"`
	Log       LogConfig       `toml:"log"`
	S3Config  *S3Config       `toml:"s3,omitempty"`
	GCSConfig *GCSConfig      `toml:"gcs,omitempty"`
}

// Load decodes a TOML file. An empty path yields a zero Config that flags and
// Normalize can fill in.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Annotatef(err, "failed to decode config %s", path)
	}
	return cfg, nil
}

// Normalize fills defaults and resolves derived config values after loading.
func Normalize(cfg *Config) error {
	cfg.Run.ScaleFactor = strings.TrimSpace(cfg.Run.ScaleFactor)
	cfg.Run.Catalog = strings.TrimSpace(cfg.Run.Catalog)
	if cfg.Run.ScratchRoot == "" {
		cfg.Run.ScratchRoot = defaultScratchRoot
	}
	if cfg.Generator.Runtime == "" {
		cfg.Generator.Runtime = defaultRuntime
	}
	if cfg.Generator.Heap == "" {
		cfg.Generator.Heap = defaultHeap
	}
	if cfg.Catalog.VolumesRoot == "" {
		cfg.Catalog.VolumesRoot = defaultVolumesRoot
	}
	if cfg.Catalog.Principal == "" {
		cfg.Catalog.Principal = defaultPrincipal
	}
	if cfg.Catalog.Driver == "" {
		cfg.Catalog.Driver = defaultDriver
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}

	heapBytes, err := cfg.Generator.resolveHeapBytes()
	if err != nil {
		return err
	}
	cfg.Generator.HeapBytes = heapBytes
	return nil
}

// Validate returns a user-friendly error if the configuration is invalid.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Run.ScaleFactor == "" {
		errs = append(errs, "run.scale_factor is required")
	} else if sf, err := strconv.ParseFloat(cfg.Run.ScaleFactor, 64); err != nil || sf <= 0 {
		errs = append(errs, "run.scale_factor must be a positive number")
	}
	if cfg.Run.Destination == "" {
		errs = append(errs, "run.destination is required")
	}
	if cfg.Run.ToolDir == "" {
		errs = append(errs, "run.tool_dir is required")
	}
	if cfg.Run.ManagedVolume && cfg.Run.Catalog == "" {
		errs = append(errs, "run.catalog is required when run.managed_volume is set")
	}
	if !cfg.Run.Lighthouse && cfg.Run.DefaultParallelism <= 0 {
		errs = append(errs, "run.default_parallelism must be greater than 0")
	}
	if cfg.Generator.HeapBytes <= 0 {
		errs = append(errs, "generator.heap must be greater than 0")
	}
	if cfg.S3Config != nil && cfg.GCSConfig != nil {
		errs = append(errs, "only one of [s3] or [gcs] can be configured")
	}

	if len(errs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("invalid config:\n")
	for _, err := range errs {
		sb.WriteString(" - ")
		sb.WriteString(err)
		sb.WriteString("\n")
	}
	return fmt.Errorf("%s", strings.TrimRight(sb.String(), "\n"))
}

// Workers returns the migration worker count for the selected parallelism
// profile.
func (c *RunConfig) Workers() int {
	if c.Lighthouse {
		return LighthouseWorkers
	}
	return c.DefaultParallelism
}

// NeedsProvisioning reports whether catalog, schema and volume must be
// registered before files are written.
func (c *RunConfig) NeedsProvisioning() bool {
	return c.ManagedVolume && c.Catalog != DefaultCatalog
}

// HeapFlag renders the heap bound as a JVM -Xmx flag.
func (c *GeneratorConfig) HeapFlag() string {
	return "-Xmx" + strings.ToLower(c.Heap)
}

func (c *GeneratorConfig) resolveHeapBytes() (int64, error) {
	bytes, err := units.RAMInBytes(c.Heap)
	if err != nil {
		return 0, fmt.Errorf("invalid heap %q: %w", c.Heap, err)
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("invalid heap %q: must be greater than 0", c.Heap)
	}
	return bytes, nil
}

// BackendOptions converts the [s3]/[gcs] sections into storage options.
func (c *Config) BackendOptions() *storage.BackendOptions {
	if c.S3Config != nil {
		return &storage.BackendOptions{S3: storage.S3BackendOptions{
			Region:          c.S3Config.Region,
			AccessKey:       c.S3Config.AccessKey,
			SecretAccessKey: c.S3Config.SecretAccessKey,
			Provider:        c.S3Config.Provider,
			Endpoint:        c.S3Config.Endpoint,
			ForcePathStyle:  c.S3Config.Force,
			RoleARN:         c.S3Config.RoleArn,
		}}
	} else if c.GCSConfig != nil {
		return &storage.BackendOptions{GCS: storage.GCSBackendOptions{
			CredentialsFile: c.GCSConfig.Credential,
		}}
	}
	return nil
}

// GetStore initializes and returns an ExternalStorage rooted at path, which may
// be a local directory or a storage URI.
func GetStore(ctx context.Context, path string, op *storage.BackendOptions) (storage.ExternalStorage, error) {
	s, err := storage.ParseBackend(path, op)
	if err != nil {
		return nil, errors.Trace(err)
	}

	store, err := storage.NewWithDefaultOpt(ctx, s)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return store, nil
}

// IsLocal reports whether path resolves to a local filesystem backend.
func IsLocal(path string) bool {
	s, err := storage.ParseBackend(path, nil)
	if err != nil {
		return false
	}
	return s.GetLocal() != nil
}
