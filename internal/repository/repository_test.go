package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/themizzi/sitetest/internal/models"
	"github.com/themizzi/sitetest/internal/repository/testutil"
)

func TestUserRepository_CreateAndLoad(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()
	users := NewUserRepository(testDB.Conn)
	roles := NewRoleRepository(testDB.Conn)

	editor, _ := models.NewRole("editor", "Editor", 1)
	if err := roles.Create(ctx, editor); err != nil {
		t.Fatalf("Create role: %v", err)
	}

	root, err := models.NewAccount("admin", "admin@example.com", "pass", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	root.ID = models.RootID
	if err := users.Create(ctx, root); err != nil {
		t.Fatalf("Create root: %v", err)
	}

	account, _ := models.NewAccount("jane", "jane@example.com", "secret", bcrypt.MinCost)
	account.Roles = append(account.Roles, "editor")
	if err := users.Create(ctx, account); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if account.ID != 2 {
		t.Errorf("expected next uid 2, got %d", account.ID)
	}

	loaded, err := users.LoadByName(ctx, "jane")
	if err != nil {
		t.Fatalf("LoadByName: %v", err)
	}
	if loaded.ID != account.ID || loaded.Mail != "jane@example.com" {
		t.Errorf("unexpected account %+v", loaded)
	}
	if !reflect.DeepEqual(loaded.Roles, []string{models.RoleAuthenticated, "editor"}) {
		t.Errorf("unexpected roles %v", loaded.Roles)
	}
	if !loaded.CheckPassword("secret") {
		t.Error("expected stored hash to verify")
	}
	if loaded.PassRaw != "" {
		t.Error("plaintext password must not come back from storage")
	}

	if _, err := users.Load(ctx, 99); !errors.Is(err, models.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}

	if err := users.UpdateStatus(ctx, account.ID, models.StatusBlocked); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	loaded, _ = users.Load(ctx, account.ID)
	if loaded.IsActive() {
		t.Error("expected blocked account")
	}

	n, err := users.Count(ctx)
	if err != nil || n != 2 {
		t.Errorf("expected 2 users, got %d (%v)", n, err)
	}

	duplicate, _ := models.NewAccount("jane", "other@example.com", "x", bcrypt.MinCost)
	if err := users.Create(ctx, duplicate); err == nil {
		t.Error("expected duplicate name to fail")
	}
}

func TestRoleRepository_GrantAndReadBack(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()
	roles := NewRoleRepository(testDB.Conn)

	role, _ := models.NewRole("reviewer", "", 0)
	if err := roles.Create(ctx, role); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := roles.Create(ctx, role); !errors.Is(err, models.ErrRoleExists) {
		t.Errorf("expected ErrRoleExists, got %v", err)
	}

	if err := roles.Grant(ctx, "reviewer", "access content", "create content", "access content"); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if err := roles.Revoke(ctx, "reviewer", "create content"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	loaded, err := roles.Load(ctx, "reviewer")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded.Permissions, []string{"access content"}) {
		t.Errorf("expected exactly [access content], got %v", loaded.Permissions)
	}

	ok, err := roles.HasPermission(ctx, []string{"authenticated", "reviewer"}, "access content")
	if err != nil || !ok {
		t.Errorf("expected permission through reviewer role, got %v (%v)", ok, err)
	}

	w, err := roles.NextWeight(ctx)
	if err != nil || w != 1 {
		t.Errorf("expected next weight 1, got %d (%v)", w, err)
	}

	if _, err := roles.Load(ctx, "ghost"); !errors.Is(err, models.ErrRoleNotFound) {
		t.Errorf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestSessionRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()
	sessions := NewSessionRepository(testDB.Conn)
	sid := models.NewSessionID()

	if err := sessions.Create(ctx, sid, 5, "127.0.0.1"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var stored string
	if err := testDB.Conn.QueryRowContext(ctx, "SELECT sid FROM {sessions}").Scan(&stored); err != nil {
		t.Fatal(err)
	}
	if stored != models.HashSessionID(sid) {
		t.Errorf("expected the hashed id to be stored, got %q", stored)
	}

	if ok, _ := sessions.Exists(ctx, sid, 5); !ok {
		t.Error("expected session to exist for uid 5")
	}
	if ok, _ := sessions.Exists(ctx, sid, 6); ok {
		t.Error("session must not match another uid")
	}

	if err := sessions.Delete(ctx, sid); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := sessions.Lookup(ctx, sid); ok {
		t.Error("expected session to be gone")
	}
}

func TestConfigAndKeyValueRepositories(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()
	configs := NewConfigRepository(testDB.Conn)

	if _, ok, err := configs.Read(ctx, "system.site"); ok || err != nil {
		t.Fatalf("expected missing object, got %v %v", ok, err)
	}

	site := map[string]any{"name": "Drupal", "page": map[string]any{"front": "/user/login"}}
	if err := configs.Write(ctx, "system.site", site); err != nil {
		t.Fatalf("Write: %v", err)
	}
	site["name"] = "Renamed"
	if err := configs.Write(ctx, "system.site", site); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, ok, err := configs.Read(ctx, "system.site")
	if err != nil || !ok {
		t.Fatalf("Read: %v %v", ok, err)
	}
	if data["name"] != "Renamed" {
		t.Errorf("expected overwritten name, got %v", data["name"])
	}

	names, err := configs.ListAll(ctx, "system.")
	if err != nil || !reflect.DeepEqual(names, []string{"system.site"}) {
		t.Errorf("unexpected names %v (%v)", names, err)
	}

	state := NewKeyValueRepository(testDB.Conn, "state")
	if err := state.Set(ctx, "system.cron_last", 1234); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var last int
	if ok, err := state.Get(ctx, "system.cron_last", &last); !ok || err != nil || last != 1234 {
		t.Errorf("expected 1234, got %d (%v %v)", last, ok, err)
	}
	other := NewKeyValueRepository(testDB.Conn, "other")
	if ok, _ := other.Get(ctx, "system.cron_last", &last); ok {
		t.Error("collections must not share keys")
	}
	if err := state.Delete(ctx, "system.cron_last"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := state.Get(ctx, "system.cron_last", &last); ok {
		t.Error("expected value to be deleted")
	}
}
