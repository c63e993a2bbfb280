package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("EDGEBRIDGE_TEAM_NAME", "example")
	t.Setenv("EDGEBRIDGE_AUDIENCE", "app-a")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Access.TeamName != "example" {
		t.Errorf("TeamName = %q, want %q", cfg.Access.TeamName, "example")
	}
	if cfg.Access.IssuerDomain != "cloudflareaccess.com" {
		t.Errorf("IssuerDomain = %q, want cloudflareaccess.com", cfg.Access.IssuerDomain)
	}
	if cfg.Access.CookieName != "CF_Authorization" {
		t.Errorf("CookieName = %q, want CF_Authorization", cfg.Access.CookieName)
	}
	if cfg.Access.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Access.MaxAttempts)
	}
	if cfg.Access.Leeway != time.Minute {
		t.Errorf("Leeway = %v, want 1m", cfg.Access.Leeway)
	}
	if cfg.Access.KeyFreshTTL != 7*24*time.Hour {
		t.Errorf("KeyFreshTTL = %v, want 168h", cfg.Access.KeyFreshTTL)
	}
	if cfg.Access.KeyMarkerTTL != 30*24*time.Hour {
		t.Errorf("KeyMarkerTTL = %v, want 720h", cfg.Access.KeyMarkerTTL)
	}
	if cfg.Provision.AutoProvision {
		t.Error("AutoProvision should default to false")
	}
	if cfg.Provision.DefaultRole != "subscriber" {
		t.Errorf("DefaultRole = %q, want subscriber", cfg.Provision.DefaultRole)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EDGEBRIDGE_AUDIENCE", "app-a, app-b")
	t.Setenv("EDGEBRIDGE_MAX_ATTEMPTS", "5")
	t.Setenv("EDGEBRIDGE_LEEWAY", "30s")
	t.Setenv("EDGEBRIDGE_AUTO_PROVISION", "true")
	t.Setenv("EDGEBRIDGE_DEFAULT_ROLE", "editor")
	t.Setenv("EDGEBRIDGE_COOKIE_NAME", "CF_Custom")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if len(cfg.Access.Audiences) != 2 || cfg.Access.Audiences[0] != "app-a" || cfg.Access.Audiences[1] != "app-b" {
		t.Errorf("Audiences = %v, want [app-a app-b]", cfg.Access.Audiences)
	}
	if cfg.Access.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Access.MaxAttempts)
	}
	if cfg.Access.Leeway != 30*time.Second {
		t.Errorf("Leeway = %v, want 30s", cfg.Access.Leeway)
	}
	if !cfg.Provision.AutoProvision {
		t.Error("AutoProvision should be true")
	}
	if cfg.Provision.DefaultRole != "editor" {
		t.Errorf("DefaultRole = %q, want editor", cfg.Provision.DefaultRole)
	}
	if cfg.Access.CookieName != "CF_Custom" {
		t.Errorf("CookieName = %q, want CF_Custom", cfg.Access.CookieName)
	}
}

func TestLoadConfig_MissingTeamName(t *testing.T) {
	t.Setenv("EDGEBRIDGE_AUDIENCE", "app-a")

	_, err := LoadConfig()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("LoadConfig() error = %v, want *ConfigError", err)
	}
	if cfgErr.Field != "team_name" {
		t.Errorf("Field = %q, want team_name", cfgErr.Field)
	}
}

func TestLoadConfig_MissingAudience(t *testing.T) {
	t.Setenv("EDGEBRIDGE_TEAM_NAME", "example")

	_, err := LoadConfig()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("LoadConfig() error = %v, want *ConfigError", err)
	}
	if cfgErr.Field != "audiences" {
		t.Errorf("Field = %q, want audiences", cfgErr.Field)
	}
}

func TestLoadConfig_InvalidMaxAttempts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("EDGEBRIDGE_MAX_ATTEMPTS", "0")

	_, err := LoadConfig()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("LoadConfig() error = %v, want *ConfigError", err)
	}
}

func TestLoadFile(t *testing.T) {
	raw := `
access:
  team_name: fileteam
  audiences:
    - app-file
  max_attempts: 4
provision:
  auto_provision: true
  default_role: editor
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Access.TeamName != "fileteam" {
		t.Errorf("TeamName = %q, want fileteam", cfg.Access.TeamName)
	}
	if cfg.Access.MaxAttempts != 4 {
		t.Errorf("MaxAttempts = %d, want 4", cfg.Access.MaxAttempts)
	}
	if !cfg.Provision.AutoProvision {
		t.Error("AutoProvision should be true")
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}
}

func TestLoadFile_EnvWins(t *testing.T) {
	raw := `
access:
  team_name: fileteam
  audiences: [app-file]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("EDGEBRIDGE_TEAM_NAME", "envteam")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Access.TeamName != "envteam" {
		t.Errorf("TeamName = %q, want envteam", cfg.Access.TeamName)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile() should fail for a missing file")
	}
}

func TestConfigError_Error(t *testing.T) {
	err := &ConfigError{Field: "team_name", Reason: "is required"}
	if got := err.Error(); got != "config: team_name is required" {
		t.Errorf("Error() = %q", got)
	}
}
