package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "WARDEN_TEST_FROM_FILE=file-value\nWARDEN_TEST_PRESET=file-value\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("WARDEN_TEST_PRESET", "env-value")
	os.Unsetenv("WARDEN_TEST_FROM_FILE")
	t.Cleanup(func() { os.Unsetenv("WARDEN_TEST_FROM_FILE") })

	Load(envFile)

	if v, ok := Get("WARDEN_TEST_FROM_FILE"); !ok || v != "file-value" {
		t.Fatalf("expected file value, got %q ok=%v", v, ok)
	}
	if v, _ := Get("WARDEN_TEST_PRESET"); v != "env-value" {
		t.Fatalf("environment should win over file, got %q", v)
	}
}

func TestLoad_MissingFileIsNotFatal(t *testing.T) {
	Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
}

func TestGet_EmptyValueIsAbsent(t *testing.T) {
	t.Setenv("WARDEN_TEST_EMPTY", "")
	if _, ok := Get("WARDEN_TEST_EMPTY"); ok {
		t.Fatal("empty value should report absent")
	}
}
