package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/logging"
	"github.com/themizzi/sitetest/internal/repository"
)

// ErrKernelNotBooted is returned by operations that need a container.
var ErrKernelNotBooted = errors.New("kernel is not booted")

// KernelOptions binds a kernel to one site.
type KernelOptions struct {
	SitePath string
	Conn     *database.Conn
	Settings *Settings
	Statics  *Statics
	Logger   *log.Logger
}

// Kernel owns the live container of a site. There is at most one live
// container per kernel; rebuilds replace it atomically.
type Kernel struct {
	mu        sync.Mutex
	opts      KernelOptions
	container *Container
}

// NewKernel creates an unbooted kernel.
func NewKernel(opts KernelOptions) *Kernel {
	if opts.Statics == nil {
		opts.Statics = NewStatics()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Kernel{opts: opts}
}

// SitePath returns the site directory.
func (k *Kernel) SitePath() string { return k.opts.SitePath }

// Settings returns the site settings.
func (k *Kernel) Settings() *Settings { return k.opts.Settings }

// Boot builds the container, reusing a cached definition when it still
// matches the enabled modules.
func (k *Kernel) Boot(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.container != nil {
		return nil
	}

	key := definitionKey(k.opts.SitePath, k.opts.Conn.Prefix())
	definitions.Lock()
	def := definitions.m[key]
	definitions.Unlock()

	if def != nil {
		enabled, err := enabledModules(ctx, repository.NewConfigRepository(k.opts.Conn))
		if err != nil {
			return err
		}
		if !slices.Equal(enabled, def.modules) {
			def = nil
		}
	}
	if def == nil {
		var err error
		if def, err = k.compile(ctx); err != nil {
			return err
		}
	}
	k.container = newContainer(def, k.opts.Conn, k.opts.Settings, k.opts.Statics, k.opts.Logger)
	return nil
}

func (k *Kernel) compile(ctx context.Context) (*definition, error) {
	def, err := compileDefinition(ctx, k.opts.Conn, k.opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to compile container: %w", err)
	}
	definitions.Lock()
	definitions.m[definitionKey(k.opts.SitePath, k.opts.Conn.Prefix())] = def
	definitions.Unlock()
	return def, nil
}

// InvalidateContainer forgets the cached definition so the next Boot
// compiles from storage.
func (k *Kernel) InvalidateContainer() {
	definitions.Lock()
	delete(definitions.m, definitionKey(k.opts.SitePath, k.opts.Conn.Prefix()))
	definitions.Unlock()
}

// Container returns the live container, or nil before Boot.
func (k *Kernel) Container() *Container {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.container
}

// RebuildContainer compiles a new container from storage and swaps it in.
// The current user and the request stack carry over.
func (k *Kernel) RebuildContainer(ctx context.Context) (*Container, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	def, err := k.compile(ctx)
	if err != nil {
		return nil, err
	}
	next := newContainer(def, k.opts.Conn, k.opts.Settings, k.opts.Statics, k.opts.Logger)
	if prev := k.container; prev != nil {
		next.CurrentUser.SetAccount(prev.CurrentUser.Account())
		next.RequestStack = prev.RequestStack
	}
	k.container = next
	k.opts.Logger.Debug("container rebuilt", "id", next.ID, "modules", next.Modules)
	return next, nil
}

// InstallModules enables names and their dependencies, then rebuilds the
// container.
func (k *Kernel) InstallModules(ctx context.Context, names []string) error {
	if k.Container() == nil {
		return ErrKernelNotBooted
	}
	if err := installModules(ctx, repository.NewConfigRepository(k.opts.Conn), names); err != nil {
		return err
	}
	_, err := k.RebuildContainer(ctx)
	return err
}

// Shutdown releases the container. The kernel can be booted again.
func (k *Kernel) Shutdown() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.container = nil
}

func installModules(ctx context.Context, configs *repository.ConfigRepository, names []string) error {
	ordered, err := ResolveDependencies(names)
	if err != nil {
		return err
	}
	extension, _, err := configs.Read(ctx, ExtensionConfig)
	if err != nil {
		return err
	}
	if extension == nil {
		extension = map[string]any{}
	}
	enabled, err := enabledModules(ctx, configs)
	if err != nil {
		return err
	}

	for _, name := range ordered {
		if slices.Contains(enabled, name) {
			continue
		}
		m, _ := LookupModule(name)
		for objectName, data := range m.DefaultConfig {
			_, exists, err := configs.Read(ctx, objectName)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := configs.Write(ctx, objectName, deepCopy(data)); err != nil {
				return err
			}
		}
		enabled = append(enabled, name)
	}

	extension["module"] = enabled
	return configs.Write(ctx, ExtensionConfig, extension)
}
