package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Run: RunConfig{
			ScaleFactor:        "10",
			Catalog:            "tpcdi",
			ToolDir:            "/Workspace/src/tools/datagen",
			Destination:        "/Volumes/tpcdi/tpcdi_raw_data/tpcdi_volume/",
			ManagedVolume:      true,
			DefaultParallelism: 4,
		},
	}
}

func TestLoadDecodesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datagen.toml")
	content := `
[run]
scale_factor = "100"
catalog = "bench"
tool_dir = "/opt/datagen"
destination = "s3://bucket/tpcdi/"
managed_volume = false
lighthouse = true

[generator]
heap = "4g"

[s3]
region = "us-west-2"
force = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Normalize(cfg))
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "100", cfg.Run.ScaleFactor)
	assert.Equal(t, "bench", cfg.Run.Catalog)
	assert.True(t, cfg.Run.Lighthouse)
	assert.Equal(t, "/local_disk0", cfg.Run.ScratchRoot)
	assert.Equal(t, "java", cfg.Generator.Runtime)
	assert.Equal(t, int64(4<<30), cfg.Generator.HeapBytes)
	assert.Equal(t, "-Xmx4g", cfg.Generator.HeapFlag())
	require.NotNil(t, cfg.BackendOptions())
	assert.Equal(t, "us-west-2", cfg.BackendOptions().S3.Region)
	assert.True(t, cfg.BackendOptions().S3.ForcePathStyle)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Run.ScaleFactor = " 10 "
	require.NoError(t, Normalize(cfg))

	assert.Equal(t, "10", cfg.Run.ScaleFactor)
	assert.Equal(t, "2g", cfg.Generator.Heap)
	assert.Equal(t, int64(2<<30), cfg.Generator.HeapBytes)
	assert.Equal(t, "/Volumes", cfg.Catalog.VolumesRoot)
	assert.Equal(t, "account users", cfg.Catalog.Principal)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestNormalizeRejectsBadHeap(t *testing.T) {
	cfg := validConfig()
	cfg.Generator.Heap = "lots"
	require.Error(t, Normalize(cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing scale factor",
			mutate:  func(c *Config) { c.Run.ScaleFactor = "" },
			wantErr: "run.scale_factor is required",
		},
		{
			name:    "non numeric scale factor",
			mutate:  func(c *Config) { c.Run.ScaleFactor = "ten" },
			wantErr: "run.scale_factor must be a positive number",
		},
		{
			name:    "zero scale factor",
			mutate:  func(c *Config) { c.Run.ScaleFactor = "0" },
			wantErr: "run.scale_factor must be a positive number",
		},
		{
			name:    "missing destination",
			mutate:  func(c *Config) { c.Run.Destination = "" },
			wantErr: "run.destination is required",
		},
		{
			name:    "managed volume without catalog",
			mutate:  func(c *Config) { c.Run.Catalog = "" },
			wantErr: "run.catalog is required",
		},
		{
			name: "legacy mode without catalog",
			mutate: func(c *Config) {
				c.Run.Catalog = ""
				c.Run.ManagedVolume = false
			},
		},
		{
			name:    "no parallelism",
			mutate:  func(c *Config) { c.Run.DefaultParallelism = 0 },
			wantErr: "run.default_parallelism",
		},
		{
			name: "lighthouse ignores default parallelism",
			mutate: func(c *Config) {
				c.Run.DefaultParallelism = 0
				c.Run.Lighthouse = true
			},
		},
		{
			name: "two backends",
			mutate: func(c *Config) {
				c.S3Config = &S3Config{}
				c.GCSConfig = &GCSConfig{}
			},
			wantErr: "only one of [s3] or [gcs]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			require.NoError(t, Normalize(cfg))
			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWorkers(t *testing.T) {
	rc := RunConfig{DefaultParallelism: 3}
	assert.Equal(t, 3, rc.Workers())
	rc.Lighthouse = true
	assert.Equal(t, LighthouseWorkers, rc.Workers())
}

func TestNeedsProvisioning(t *testing.T) {
	assert.True(t, (&RunConfig{ManagedVolume: true, Catalog: "tpcdi"}).NeedsProvisioning())
	assert.False(t, (&RunConfig{ManagedVolume: true, Catalog: DefaultCatalog}).NeedsProvisioning())
	assert.False(t, (&RunConfig{ManagedVolume: false, Catalog: "tpcdi"}).NeedsProvisioning())
}

func TestIsLocal(t *testing.T) {
	assert.True(t, IsLocal(t.TempDir()))
	assert.True(t, IsLocal("/dbfs/tmp/tpcdi/sf=10"))
	assert.False(t, IsLocal("s3://bucket/prefix"))
}
