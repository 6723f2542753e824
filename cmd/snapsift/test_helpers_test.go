package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	imagesRoot string
	cachePath  string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	imagesRoot := filepath.Join(base, "images")
	if err := os.MkdirAll(imagesRoot, 0o755); err != nil {
		t.Fatalf("mkdir images: %v", err)
	}

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		imagesRoot: imagesRoot,
		cachePath:  filepath.Join(base, "cache", "analysis_cache.json"),
	}

	content := fmt.Sprintf(`[paths]
images_root = %q
cache_file = %q
sweep_root = %q
log_dir = %q
viewer_bind = "127.0.0.1:0"

[analysis]
providers = ["stub"]
`,
		imagesRoot,
		env.cachePath,
		filepath.Join(base, "sweep"),
		filepath.Join(base, "logs"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

// addImage writes a small PNG with a solid tint so every fixture file has
// distinct bytes.
func (e *cliTestEnv) addImage(t *testing.T, name string, tint uint8) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: tint, G: uint8(x * 8), B: uint8(y * 8), A: 255})
		}
	}
	path := filepath.Join(e.imagesRoot, name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image: %v", err)
	}
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encode image: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = []string{"--config", configPath}
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
