package app

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/repository"
)

// ExtensionConfig is the config object listing enabled modules.
const ExtensionConfig = "core.extension"

// Container is the compiled service graph of a booted site.
type Container struct {
	ID         string
	Modules    []string
	Parameters map[string]any

	Conn     *database.Conn
	Settings *Settings
	Statics  *Statics
	Logger   *log.Logger

	Tags           *CacheTags
	Config         *ConfigFactory
	State          *State
	Permissions    *PermissionRegistry
	Users          *repository.UserRepository
	Roles          *repository.RoleRepository
	Sessions       *repository.SessionRepository
	CurrentUser    *AccountProxy
	RequestStack   *RequestStack
	RequestContext *RequestContext
	URLGenerator   *URLGenerator
	Mail           *MailManager
}

// ModuleExists reports whether name is enabled.
func (c *Container) ModuleExists(name string) bool {
	return slices.Contains(c.Modules, name)
}

// Parameter returns a services file parameter.
func (c *Container) Parameter(name string) (any, bool) {
	v, ok := c.Parameters[name]
	return v, ok
}

// definition is what a compile produces before services are instantiated.
type definition struct {
	modules    []string
	parameters map[string]any
}

var definitions = struct {
	sync.Mutex
	m map[string]*definition
}{m: map[string]*definition{}}

func definitionKey(sitePath, prefix string) string {
	return sitePath + "|" + prefix
}

func compileDefinition(ctx context.Context, conn *database.Conn, settings *Settings) (*definition, error) {
	enabled, err := enabledModules(ctx, repository.NewConfigRepository(conn))
	if err != nil {
		return nil, err
	}
	params, err := LoadServiceParameters(settings.ContainerYAMLs)
	if err != nil {
		return nil, err
	}
	return &definition{modules: enabled, parameters: params}, nil
}

func enabledModules(ctx context.Context, configs *repository.ConfigRepository) ([]string, error) {
	data, _, err := configs.Read(ctx, ExtensionConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to read enabled modules: %w", err)
	}
	var enabled []string
	if list, ok := data["module"].([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				enabled = append(enabled, s)
			}
		}
	}
	return enabled, nil
}

func newContainer(def *definition, conn *database.Conn, settings *Settings, statics *Statics, logger *log.Logger) *Container {
	tags := NewCacheTags(repository.NewKeyValueRepository(conn, "cache_tags"), statics)
	configs := NewConfigFactory(repository.NewConfigRepository(conn), tags, settings.Config)
	state := NewState(repository.NewKeyValueRepository(conn, "state"))
	roles := repository.NewRoleRepository(conn)
	rc := &RequestContext{}

	return &Container{
		ID:             uuid.NewString(),
		Modules:        slices.Clone(def.modules),
		Parameters:     def.parameters,
		Conn:           conn,
		Settings:       settings,
		Statics:        statics,
		Logger:         logger,
		Tags:           tags,
		Config:         configs,
		State:          state,
		Permissions:    NewPermissionRegistry(def.modules),
		Users:          repository.NewUserRepository(conn),
		Roles:          roles,
		Sessions:       repository.NewSessionRepository(conn),
		CurrentUser:    NewAccountProxy(roles),
		RequestStack:   &RequestStack{},
		RequestContext: rc,
		URLGenerator:   NewURLGenerator(def.modules, rc),
		Mail:           NewMailManager(configs, state, logger),
	}
}
