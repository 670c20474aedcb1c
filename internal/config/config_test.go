package config

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestDefaultIsUnconfigured(t *testing.T) {
	cfg := Default()
	assert.Check(t, !cfg.Configured())
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.NilError(t, err)
	assert.Check(t, !cfg.Configured())
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vmcr.toml")
	content := `
image_dir = "/var/lib/vmcr/images"
engine_path = "/usr/local/bin/criu-engine"
default_fd_policy = "close"
heap_dump_on_failure = true
`
	assert.NilError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	assert.NilError(t, err)
	assert.Check(t, cfg.Configured())
	assert.Equal(t, cfg.EnginePath, "/usr/local/bin/criu-engine")
	assert.Check(t, cfg.HeapDumpOnFailure)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	assert.NilError(t, os.WriteFile(path, []byte("image_dir = ["), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse")
}
