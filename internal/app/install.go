package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/models"
	"github.com/themizzi/sitetest/internal/repository"
)

// InstallAccount describes the root account created by the installer.
type InstallAccount struct {
	Name string
	Mail string
	Pass string
}

// InstallParameters are the non-interactive answers to the installer.
type InstallParameters struct {
	Profile  string
	Langcode string
	SiteName string
	SiteMail string
	Account  InstallAccount
}

// Install creates the schema of a fresh site in conn's namespace, enables
// the profile's modules and creates the root account. The settings file in
// sitePath must exist; Install records the config sync directory in it.
func Install(ctx context.Context, conn *database.Conn, sitePath string, params InstallParameters, logger *log.Logger) error {
	modules, ok := Profiles[params.Profile]
	if !ok {
		return fmt.Errorf("unknown install profile %q", params.Profile)
	}
	settings, err := LoadSettings(sitePath)
	if err != nil {
		return err
	}

	if err := database.CreateSchema(ctx, conn); err != nil {
		return err
	}

	configs := repository.NewConfigRepository(conn)
	if err := configs.Write(ctx, ExtensionConfig, map[string]any{"module": []string{}, "profile": params.Profile}); err != nil {
		return err
	}
	if err := installModules(ctx, configs, modules); err != nil {
		return fmt.Errorf("failed to install profile %s: %w", params.Profile, err)
	}

	site, _, err := configs.Read(ctx, "system.site")
	if err != nil {
		return err
	}
	site["uuid"] = uuid.NewString()
	site["name"] = params.SiteName
	site["mail"] = params.SiteMail
	site["langcode"] = params.Langcode
	if err := configs.Write(ctx, "system.site", site); err != nil {
		return err
	}

	roles := repository.NewRoleRepository(conn)
	for _, rid := range []string{models.RoleAnonymous, models.RoleAuthenticated} {
		role, _ := models.NewRole(rid, "", 0)
		if err := roles.Create(ctx, role); err != nil {
			return err
		}
	}

	root, err := models.NewAccount(params.Account.Name, params.Account.Mail, params.Account.Pass, settings.PasswordCost)
	if err != nil {
		return fmt.Errorf("invalid root account: %w", err)
	}
	root.ID = models.RootID
	if err := repository.NewUserRepository(conn).Create(ctx, root); err != nil {
		return err
	}

	// Sync directory name is derived from the salt so it cannot be guessed.
	sum := sha256.Sum256([]byte(settings.HashSalt))
	settings.ConfigSyncDirectory = filepath.Join(settings.FilePublicPath, "config_"+hex.EncodeToString(sum[:])[:16], "sync")
	if err := os.MkdirAll(settings.ConfigSyncDirectory, 0o755); err != nil {
		return fmt.Errorf("failed to create config sync directory: %w", err)
	}
	if err := WriteSettings(sitePath, settings); err != nil {
		return err
	}

	logger.Info("site installed", "profile", params.Profile, "modules", modules, "prefix", conn.Prefix())
	return nil
}
