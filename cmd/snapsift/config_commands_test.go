package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	tmp := t.TempDir()
	target := filepath.Join(tmp, "config.toml")
	out, _, err = runCLI(t, env.configPath, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// Without --overwrite a second init must refuse.
	if _, _, err := runCLI(t, env.configPath, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error for existing config file")
	}
	if _, _, err := runCLI(t, env.configPath, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "images_root")
	requireContains(t, out, "stub")
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	tmp := t.TempDir()
	broken := filepath.Join(tmp, "config.toml")
	if err := os.WriteFile(broken, []byte("[analysis]\nproviders = [\"nope\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := runCLI(t, broken, "config", "validate"); err == nil {
		t.Fatal("expected validation failure for unknown provider")
	}
}
