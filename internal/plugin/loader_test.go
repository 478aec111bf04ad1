package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktkit/internal/core"
	plugin "firestige.xyz/pktkit/pkg/plugin"
)

func TestNewLoader(t *testing.T) {
	r := NewRegistry()
	config := LoaderConfig{
		Mode:     DynamicMode,
		Path:     "./testdata/plugins",
		Patterns: []string{"*.so"},
	}

	loader := NewLoader(config, r)

	assert.NotNil(t, loader)
	assert.Equal(t, config, loader.config)
	assert.Equal(t, r, loader.registry)
}

func TestNewLoader_Defaults(t *testing.T) {
	loader := NewLoader(LoaderConfig{}, NewRegistry())
	assert.Equal(t, StaticMode, loader.config.Mode)
	assert.Equal(t, []string{"*.so"}, loader.config.Patterns)
}

func TestLoader_Load_Static(t *testing.T) {
	loader := NewLoader(LoaderConfig{Mode: StaticMode}, NewRegistry())
	assert.NoError(t, loader.Load())
}

func TestLoader_Load_UnknownMode(t *testing.T) {
	loader := NewLoader(LoaderConfig{Mode: "remote"}, NewRegistry())
	assert.ErrorContains(t, loader.Load(), "unknown plugin load mode")
}

func TestLoader_Load_Sealed(t *testing.T) {
	r := NewRegistry()
	r.Seal()
	loader := NewLoader(LoaderConfig{}, r)
	assert.ErrorIs(t, loader.Load(), core.ErrRegistrySealed)
}

func TestLoader_Discover_Plugins(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.so", "b.so", "readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	r := NewRegistry()
	loader := NewLoader(LoaderConfig{Mode: DynamicMode, Path: dir}, r)
	var opened []string
	loader.open = func(path string) (func(plugin.Registry) error, error) {
		opened = append(opened, filepath.Base(path))
		return func(reg plugin.Registry) error {
			return reg.Register(core.KindUDPPort, 9999, newFixed("custom", 4))
		}, nil
	}

	require.NoError(t, loader.Load())
	assert.Equal(t, []string{"a.so", "b.so"}, opened)

	d, ok := r.Lookup(core.KindUDPPort, 9999)
	require.True(t, ok)
	assert.Equal(t, "custom", d.Name())
}

func TestLoader_Discover_PluginsNotFound(t *testing.T) {
	loader := NewLoader(LoaderConfig{Mode: DynamicMode, Path: t.TempDir()}, NewRegistry())
	assert.ErrorContains(t, loader.Load(), "no plugin files found")
}

func TestLoader_Discover_InvalidPattern(t *testing.T) {
	loader := NewLoader(LoaderConfig{Mode: DynamicMode, Path: t.TempDir(), Patterns: []string{"[a-"}}, NewRegistry())
	assert.ErrorContains(t, loader.Load(), "failed to discover plugin files")
}

func TestLoader_LoadPlugin_RegisterFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.so"), nil, 0o644))

	loader := NewLoader(LoaderConfig{Mode: DynamicMode, Path: dir}, NewRegistry())
	loader.open = func(string) (func(plugin.Registry) error, error) {
		return func(plugin.Registry) error { return errors.New("boom") }, nil
	}
	err := loader.Load()
	assert.ErrorContains(t, err, "registration failed")
	assert.ErrorContains(t, err, "boom")
}

func TestLoader_LoadPlugin_FileNotFound(t *testing.T) {
	_, err := openPlugin(filepath.Join(t.TempDir(), "missing.so"))
	assert.ErrorContains(t, err, "failed to open plugin file")
}

func TestApplyBindings(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(core.KindTCPPort, 80, newFixed("http", 0)))
	require.NoError(t, r.Register(core.KindEtherType, 0x0800, newFixed("ipv4", 20)))

	err := ApplyBindings(r, []Binding{
		{Kind: "tcp.port", Code: "8000", Protocol: "http"},
		{Kind: "ethertype", Code: "0x9100", Protocol: "ipv4"},
	})
	require.NoError(t, err)

	d, ok := r.Lookup(core.KindTCPPort, 8000)
	require.True(t, ok)
	assert.Equal(t, "http", d.Name())
	_, ok = r.Lookup(core.KindEtherType, 0x9100)
	assert.True(t, ok)
}

func TestApplyBindings_AggregatesErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(core.KindTCPPort, 80, newFixed("http", 0)))

	err := ApplyBindings(r, []Binding{
		{Kind: "", Code: "1", Protocol: "http"},
		{Kind: "tcp.port", Code: "eighty", Protocol: "http"},
		{Kind: "tcp.port", Code: "81", Protocol: "gopher"},
		{Kind: "tcp.port", Code: "82", Protocol: "http"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binding 0: empty kind")
	assert.Contains(t, err.Error(), "binding 1: invalid code 'eighty'")
	assert.Contains(t, err.Error(), "binding 2: protocol 'gopher'")
	assert.ErrorIs(t, err, core.ErrProtocolUnknown)

	// valid entries are still applied
	_, ok := r.Lookup(core.KindTCPPort, 82)
	assert.True(t, ok)
}

func TestApplyBindings_Empty(t *testing.T) {
	assert.NoError(t, ApplyBindings(NewRegistry(), nil))
}
