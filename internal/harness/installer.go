package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/models"
)

// Root account of every installed test site.
const (
	RootName = "admin"
	RootMail = "admin@example.com"
	SiteMail = "simpletest@example.com"
)

// testOverrides are applied to every installed site.
var testOverrides = []struct {
	config string
	key    string
	value  any
}{
	{"system.mail", "interface.default", app.MailCollector},
	{"system.logging", "error_level", "verbose"},
	{"system.performance", "css.preprocess", false},
	{"system.performance", "js.preprocess", false},
}

// Installer installs the application into a prepared sandbox.
type Installer struct {
	Env *Environment
	// OriginalSite may hold settings.testing.toml and testing.services.yml
	// overrides that are layered onto every test site.
	OriginalSite string
	Logger       *log.Logger
}

// Install writes the site settings, runs the installer against the run's
// table prefix, boots a freshly compiled kernel, applies the test overrides
// and enables modules. A failure to enable modules is returned as an
// *app.ModuleInstallError naming them.
func (i *Installer) Install(ctx context.Context, run *RunContext, profile string, modules []string) (*app.Kernel, error) {
	if run.Conn == nil {
		return nil, fault("install", errors.New("sandbox is not prepared"))
	}

	root, err := i.rootAccount()
	if err != nil {
		return nil, fault("install", err)
	}
	settings := &app.Settings{
		HashSalt:        run.Prefix,
		Database:        app.DatabaseSettings{Driver: run.Conn.Driver(), Prefix: run.Prefix},
		FilePublicPath:  run.PublicPath,
		FilePrivatePath: run.PrivatePath,
		FileTempPath:    run.TempPath,
		TranslationPath: run.TranslationsPath,
		PasswordCost:    bcrypt.MinCost,
	}
	if err := i.layerOverrides(run, settings); err != nil {
		return nil, fault("install", err)
	}
	if err := app.WriteSettings(run.SitePath, settings); err != nil {
		return nil, fault("install", err)
	}

	err = app.Install(ctx, run.Conn, run.SitePath, app.InstallParameters{
		Profile:  profile,
		Langcode: "en",
		SiteName: "Drupal",
		SiteMail: SiteMail,
		Account:  app.InstallAccount{Name: root.Name, Mail: root.Mail, Pass: root.PassRaw},
	}, i.logger())
	if err != nil {
		return nil, fault("install", err)
	}
	root.ID = models.RootID
	run.Root = root

	// The installer rewrites the settings file.
	settings, err = app.LoadSettings(run.SitePath)
	if err != nil {
		return nil, fault("install", err)
	}
	if err := os.Chmod(run.SitePath, 0o755); err != nil {
		return nil, fault("install", err)
	}

	kernel := app.NewKernel(app.KernelOptions{
		SitePath: run.SitePath,
		Conn:     run.Conn,
		Settings: settings,
		Statics:  i.Env.Statics,
		Logger:   i.logger(),
	})
	// Another environment may have compiled a container for the same path.
	kernel.InvalidateContainer()
	if err := kernel.Boot(ctx); err != nil {
		return nil, fault("install", err)
	}

	c := kernel.Container()
	for _, o := range testOverrides {
		cfg, err := c.Config.GetEditable(ctx, o.config)
		if err != nil {
			return nil, fault("install", err)
		}
		if err := cfg.Set(o.key, o.value).Save(ctx); err != nil {
			return nil, fault("install", err)
		}
	}

	if modules = uniqueModules(modules); len(modules) > 0 {
		if err := kernel.InstallModules(ctx, modules); err != nil {
			var missing *app.ModuleInstallError
			if errors.As(err, &missing) {
				return kernel, missing
			}
			return kernel, &app.ModuleInstallError{Requested: modules, Err: err}
		}
	}

	i.Env.Statics.ResetAll()
	c, err = kernel.RebuildContainer(ctx)
	if err != nil {
		return kernel, fault("install", err)
	}
	c.Config.Reset()
	c.State.ResetCache()
	i.logger().Info("test site installed", "prefix", run.Prefix, "profile", profile, "modules", strings.Join(c.Modules, ","))
	return kernel, nil
}

func (i *Installer) rootAccount() (*models.Account, error) {
	return models.NewAccount(RootName, RootMail, RandomName(8), bcrypt.MinCost)
}

// layerOverrides copies the original site's testing overrides into the
// sandbox.
func (i *Installer) layerOverrides(run *RunContext, settings *app.Settings) error {
	if i.OriginalSite == "" {
		return nil
	}
	if err := copyIfExists(filepath.Join(i.OriginalSite, app.TestingSettingsFile), filepath.Join(run.SitePath, app.TestingSettingsFile)); err != nil {
		return err
	}
	services := filepath.Join(run.SitePath, app.ServicesFile)
	copied, err := copyFile(filepath.Join(i.OriginalSite, app.TestingServicesFile), services)
	if err != nil {
		return err
	}
	if copied {
		settings.ContainerYAMLs = append(settings.ContainerYAMLs, services)
	}
	return nil
}

func copyIfExists(src, dst string) error {
	_, err := copyFile(src, dst)
	return err
}

func copyFile(src, dst string) (bool, error) {
	data, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return true, nil
}

func uniqueModules(modules []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range modules {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func (i *Installer) logger() *log.Logger {
	if i.Logger == nil {
		return log.Default()
	}
	return i.Logger
}
