package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
[site]
base_url = "https://example.com"

[broker]
ws_url = "ws://127.0.0.1:58610"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Schedule.BatchTimes) != 4 {
		t.Errorf("expected 4 default batch times, got %d", len(cfg.Schedule.BatchTimes))
	}
	if cfg.Reorder.WindowMin != 10 || cfg.Reorder.TickOffset != 2 {
		t.Errorf("reorder defaults wrong: %+v", cfg.Reorder)
	}
	if cfg.Park.Code != "511880.SH" || cfg.Park.ReserveRatio != 0.05 {
		t.Errorf("park defaults wrong: %+v", cfg.Park)
	}
	if cfg.Site.TimeoutSec != 15 {
		t.Errorf("site timeout default wrong: %d", cfg.Site.TimeoutSec)
	}
}

func TestLoadRejectsBadTime(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
[site]
base_url = "https://example.com"

[broker]
ws_url = "ws://127.0.0.1:58610"

[schedule]
batch_times = ["25:00"]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed batch time")
	}
}

func TestLoadRejectsMissingBaseURL(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
[broker]
ws_url = "ws://127.0.0.1:58610"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing base_url")
	}
}

func TestLoadProportionForms(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`{"proportion": 0.5}`, 0.5},
		{`{"proportion": "0.35"}`, 0.35},
		{`{"proportion": "50%"}`, 0.5},
		{`{}`, 1.0},
	}
	for _, c := range cases {
		dir := t.TempDir()
		writeFile(t, dir, "core_parameters/account/mama.json", c.raw)
		got, err := LoadProportion(dir)
		if err != nil {
			t.Fatalf("LoadProportion(%s) failed: %v", c.raw, err)
		}
		if got != c.want {
			t.Errorf("LoadProportion(%s) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestLoadProportionMissingFile(t *testing.T) {
	got, err := LoadProportion(t.TempDir())
	if err != nil || got != 1.0 {
		t.Fatalf("missing mama.json should default to 1.0, got %v err=%v", got, err)
	}
}

func TestLoadProportionRejectsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "core_parameters/account/mama.json", `{"proportion": 1.5}`)
	if _, err := LoadProportion(dir); err == nil {
		t.Fatal("expected error for proportion > 1")
	}
}

func TestLoadAllocations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "yunfei_ball/allocation.json",
		`[{"策略ID":"26688","策略名称":"全天候进取","配置比例":30,"批次":1}]`)

	entries, err := LoadAllocations(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.StrategyID != "26688" || e.StrategyName != "全天候进取" || e.ConfigPct != 30 || e.BatchNo != 1 {
		t.Errorf("unexpected entry: %+v", e)
	}
}
