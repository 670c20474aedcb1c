package engine

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func TestResolveAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "criu-engine")
	assert.NilError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	c := Config{Path: bin}
	got, err := c.Resolve()
	assert.NilError(t, err)
	assert.Equal(t, got, bin)
}

func TestResolveRelativeToVMLibDir(t *testing.T) {
	root := t.TempDir()
	lib := filepath.Join(root, "lib", "server")
	assert.NilError(t, os.MkdirAll(lib, 0o755))
	bin := filepath.Join(root, "bin", "engine")
	assert.NilError(t, os.MkdirAll(filepath.Dir(bin), 0o755))
	assert.NilError(t, os.WriteFile(bin, []byte("x"), 0o755))

	c := Config{Path: "bin/engine", VMLibDir: lib}
	got, err := c.Resolve()
	assert.NilError(t, err)
	assert.Equal(t, got, bin)
}

func TestResolveMissingEngineIsUnavailable(t *testing.T) {
	c := Config{Path: "/nonexistent/engine/binary"}
	_, err := c.Resolve()
	assert.ErrorContains(t, err, "resolve")
}

func TestExtraTokensParsesCommaEscaped(t *testing.T) {
	c := Config{ExtraArgs: `--tcp-established,--shell-job,path\,with\,commas`}
	tokens, err := c.ExtraTokens()
	assert.NilError(t, err)
	assert.DeepEqual(t, tokens, []string{"--tcp-established", "--shell-job", "path,with,commas"})
}

func TestExtraTokensOverflow(t *testing.T) {
	args := ""
	for i := 0; i < maxExtraTokens+1; i++ {
		if i > 0 {
			args += ","
		}
		args += "x"
	}
	c := Config{ExtraArgs: args}
	_, err := c.ExtraTokens()
	assert.ErrorContains(t, err, "exceeds limit")
}

func TestStateMachineLabels(t *testing.T) {
	assert.Equal(t, Idle.String(), "Idle")
	assert.Equal(t, Restoring.String(), "Restoring")
}
