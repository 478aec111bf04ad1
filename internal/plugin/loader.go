package plugin

import (
	"fmt"
	"path/filepath"
	goplugin "plugin"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/internal/log"
	plugin "firestige.xyz/pktkit/pkg/plugin"
)

type LoadMode string

const (
	StaticMode  LoadMode = "static"  // dissectors compiled in, nothing to load
	DynamicMode LoadMode = "dynamic" // open .so files exporting Register(plugin.Registry) error
)

// RegisterSymbol is the symbol a dynamic dissector plugin must export.
const RegisterSymbol = "Register"

type LoaderConfig struct {
	Mode     LoadMode
	Path     string   // directory to load plugins from in DynamicMode
	Patterns []string // file patterns to match plugins in DynamicMode
}

// Binding adds a (kind, code) entry for an already registered protocol.
// Code accepts decimal or 0x-prefixed hex, e.g. "8080" or "0x86dd".
type Binding struct {
	Kind     string `mapstructure:"kind" yaml:"kind"`
	Code     string `mapstructure:"code" yaml:"code"`
	Protocol string `mapstructure:"protocol" yaml:"protocol"`
}

type Loader struct {
	config   LoaderConfig
	registry plugin.Registry

	// open is swapped in tests; the stdlib plugin package needs real .so files.
	open func(path string) (func(plugin.Registry) error, error)
}

func NewLoader(config LoaderConfig, registry plugin.Registry) *Loader {
	if config.Mode == "" {
		config.Mode = StaticMode
	}
	if len(config.Patterns) == 0 {
		config.Patterns = []string{"*.so"}
	}
	return &Loader{
		config:   config,
		registry: registry,
		open:     openPlugin,
	}
}

func (l *Loader) Load() error {
	if l.registry == nil {
		return fmt.Errorf("loader has no registry")
	}
	if l.registry.Sealed() {
		return fmt.Errorf("load plugins: %w", core.ErrRegistrySealed)
	}

	switch l.config.Mode {
	case StaticMode:
		// Built-in dissectors register themselves at init time.
		return nil
	case DynamicMode:
		return l.loadDynamicPlugins()
	default:
		return fmt.Errorf("unknown plugin load mode '%s'", l.config.Mode)
	}
}

func (l *Loader) loadDynamicPlugins() error {
	pluginFiles, err := l.discoverPluginFiles()
	if err != nil {
		return fmt.Errorf("failed to discover plugin files: %w", err)
	}

	if len(pluginFiles) == 0 {
		return fmt.Errorf("no plugin files found in path: %s", l.config.Path)
	}

	for _, file := range pluginFiles {
		if err := l.loadPlugin(file); err != nil {
			return fmt.Errorf("failed to load plugin %s: %w", file, err)
		}
	}
	return nil
}

func (l *Loader) discoverPluginFiles() ([]string, error) {
	files := make([]string, 0)
	for _, pattern := range l.config.Patterns {
		fullPattern := filepath.Join(l.config.Path, pattern)
		matches, err := filepath.Glob(fullPattern)
		if err != nil {
			return nil, fmt.Errorf("failed to match pattern %s: %w", fullPattern, err)
		}
		files = append(files, matches...)
	}
	return files, nil
}

func (l *Loader) loadPlugin(file string) error {
	register, err := l.open(file)
	if err != nil {
		return err
	}
	if err := register(l.registry); err != nil {
		return fmt.Errorf("plugin %s registration failed: %w", file, err)
	}

	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	log.GetLogger().WithField("plugin", name).Info("Loaded dissector plugin")
	return nil
}

func openPlugin(file string) (func(plugin.Registry) error, error) {
	p, err := goplugin.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin file %s: %w", file, err)
	}

	sym, err := p.Lookup(RegisterSymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin %s does not export %s function: %w", file, RegisterSymbol, err)
	}

	switch fn := sym.(type) {
	case func(plugin.Registry) error:
		return fn, nil
	case *func(plugin.Registry) error:
		return *fn, nil
	default:
		return nil, fmt.Errorf("plugin %s %s function has invalid signature", file, RegisterSymbol)
	}
}

// ApplyBindings registers every binding against the protocol it names.
// All invalid bindings are reported together.
func ApplyBindings(reg plugin.Registry, bindings []Binding) error {
	var result *multierror.Error
	for i, b := range bindings {
		if b.Kind == "" {
			result = multierror.Append(result, fmt.Errorf("binding %d: empty kind", i))
			continue
		}
		code, err := cast.ToUint32E(b.Code)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("binding %d: invalid code '%s': %w", i, b.Code, err))
			continue
		}
		d, ok := reg.Dissector(b.Protocol)
		if !ok {
			result = multierror.Append(result, fmt.Errorf("binding %d: protocol '%s': %w", i, b.Protocol, core.ErrProtocolUnknown))
			continue
		}
		if err := reg.Register(core.Kind(b.Kind), core.Code(code), d); err != nil {
			result = multierror.Append(result, fmt.Errorf("binding %d: %w", i, err))
		}
	}
	return result.ErrorOrNil()
}
