package util

import (
	"testing"
)

func TestEnvIntDefaultAndMin(t *testing.T) {
	t.Setenv("TL_TEST_INT", "")
	if got := EnvInt("TL_TEST_INT", 42, 0); got != 42 {
		t.Errorf("EnvInt default = %d, want 42", got)
	}
	t.Setenv("TL_TEST_INT", "3")
	if got := EnvInt("TL_TEST_INT", 42, 10); got != 10 {
		t.Errorf("EnvInt min clamp = %d, want 10", got)
	}
	t.Setenv("TL_TEST_INT", "not-a-number")
	if got := EnvInt("TL_TEST_INT", 42, 0); got != 42 {
		t.Errorf("EnvInt invalid = %d, want 42", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	type cfg struct {
		Name    string  `env:"TL_TEST_NAME" default:"deck"`
		Limit   int     `env:"TL_TEST_LIMIT" default:"200" min:"1"`
		Ratio   float64 `env:"TL_TEST_RATIO" default:"0.5" min:"0"`
		Enabled bool    `env:"TL_TEST_ENABLED" default:"true"`
	}

	t.Setenv("TL_TEST_NAME", "")
	t.Setenv("TL_TEST_LIMIT", "64")
	t.Setenv("TL_TEST_RATIO", "")
	t.Setenv("TL_TEST_ENABLED", "off")

	var c cfg
	LoadFromEnv(&c)
	if c.Name != "deck" {
		t.Errorf("Name = %q, want deck", c.Name)
	}
	if c.Limit != 64 {
		t.Errorf("Limit = %d, want 64", c.Limit)
	}
	if c.Ratio != 0.5 {
		t.Errorf("Ratio = %v, want 0.5", c.Ratio)
	}
	if c.Enabled {
		t.Error("Enabled = true, want false")
	}
}

func TestCompactOneLine(t *testing.T) {
	if got := CompactOneLine("  a\n b\tc  ", 0); got != "a b c" {
		t.Errorf("CompactOneLine = %q, want %q", got, "a b c")
	}
	if got := CompactOneLine("abcdef", 4); got != "abc…" {
		t.Errorf("CompactOneLine truncate = %q, want %q", got, "abc…")
	}
}
