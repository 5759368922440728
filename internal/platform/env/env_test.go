package env

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestString_Default(t *testing.T) {
	got := String("LOADER_ENV_STRING_DOES_NOT_EXIST", "fallback")
	if got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
}

func TestString_Override(t *testing.T) {
	t.Setenv("LOADER_ENV_STRING_KEY", "value")
	got := String("LOADER_ENV_STRING_KEY", "fallback")
	if got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestFirst_PrefersEarlierKey(t *testing.T) {
	t.Setenv("LOADER_ENV_FIRST_A", "postgres://a")
	t.Setenv("LOADER_ENV_FIRST_B", "postgres://b")
	got, key, ok := First("LOADER_ENV_FIRST_A", "LOADER_ENV_FIRST_B")
	if !ok || got != "postgres://a" || key != "LOADER_ENV_FIRST_A" {
		t.Fatalf("First()=%q,%q,%v", got, key, ok)
	}
}

func TestFirst_SkipsBlank(t *testing.T) {
	t.Setenv("LOADER_ENV_FIRST_A", "  ")
	t.Setenv("LOADER_ENV_FIRST_B", "postgres://b")
	got, key, ok := First("LOADER_ENV_FIRST_A", "LOADER_ENV_FIRST_B")
	if !ok || got != "postgres://b" || key != "LOADER_ENV_FIRST_B" {
		t.Fatalf("First()=%q,%q,%v", got, key, ok)
	}
}

func TestFirst_None(t *testing.T) {
	if _, _, ok := First("LOADER_ENV_FIRST_MISSING_1", "LOADER_ENV_FIRST_MISSING_2"); ok {
		t.Fatalf("First() expected no match")
	}
}

func TestDuration_Override(t *testing.T) {
	t.Setenv("LOADER_ENV_DURATION_KEY", "250ms")
	got, err := Duration("LOADER_ENV_DURATION_KEY", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, want 250ms", got)
	}
}

func TestDuration_Invalid(t *testing.T) {
	t.Setenv("LOADER_ENV_DURATION_KEY_INVALID", "not-a-duration")
	if _, err := Duration("LOADER_ENV_DURATION_KEY_INVALID", 5*time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool_Invalid(t *testing.T) {
	t.Setenv("LOADER_ENV_BOOL_KEY_INVALID", "nope")
	if _, err := Bool("LOADER_ENV_BOOL_KEY_INVALID", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt_Override(t *testing.T) {
	t.Setenv("LOADER_ENV_INT_KEY", " 7 ")
	got, err := Int("LOADER_ENV_INT_KEY", 42)
	if err != nil {
		t.Fatalf("Int() err=%v", err)
	}
	if got != 7 {
		t.Fatalf("Int()=%v, want 7", got)
	}
}

func TestLevel(t *testing.T) {
	t.Setenv("LOADER_ENV_LEVEL", "debug")
	got, err := Level("LOADER_ENV_LEVEL", slog.LevelInfo)
	if err != nil {
		t.Fatalf("Level() err=%v", err)
	}
	if got != slog.LevelDebug {
		t.Fatalf("Level()=%v, want debug", got)
	}

	t.Setenv("LOADER_ENV_LEVEL", "loud")
	if _, err := Level("LOADER_ENV_LEVEL", slog.LevelInfo); err == nil {
		t.Fatalf("Level() expected error")
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LOADER_ENV_DOTENV_KEY=from-file\nLOADER_ENV_DOTENV_SET=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("LOADER_ENV_DOTENV_SET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("LOADER_ENV_DOTENV_KEY") })

	if err := LoadDotenv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotenv() err=%v", err)
	}
	if got := os.Getenv("LOADER_ENV_DOTENV_KEY"); got != "from-file" {
		t.Fatalf("dotenv key=%q, want from-file", got)
	}
	if got := os.Getenv("LOADER_ENV_DOTENV_SET"); got != "from-env" {
		t.Fatalf("existing key=%q, want from-env", got)
	}
}
