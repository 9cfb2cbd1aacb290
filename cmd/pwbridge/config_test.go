package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/pwbridge/internal/host"
)

func TestLoadServiceConfigExample(t *testing.T) {
	cfg, err := loadServiceConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Source != host.SourcePWDump {
		t.Fatalf("unexpected source: %q", cfg.Source)
	}
	if cfg.Remote != "pipewire-0" {
		t.Fatalf("unexpected remote: %q", cfg.Remote)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
	if !cfg.ForwardDiagnostics || cfg.DiagnosticsLimit != 128 {
		t.Fatalf("unexpected diagnostics settings: %+v", cfg)
	}
	if cfg.ClientQueue != 2048 {
		t.Fatalf("unexpected client queue: %d", cfg.ClientQueue)
	}
	if cfg.NATS.URL != "nats://127.0.0.1:4222" {
		t.Fatalf("unexpected nats url: %q", cfg.NATS.URL)
	}
}

func TestLoadServiceConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
source = "replay"
replay_file = "capture.json"
control_addr = ""
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := host.DefaultServiceConfig()
	if cfg.HTTPAddr != def.HTTPAddr {
		t.Fatalf("unexpected http addr: %q", cfg.HTTPAddr)
	}
	if cfg.ControlAddr != "" {
		t.Fatalf("expected control endpoint disabled, got %q", cfg.ControlAddr)
	}
	if cfg.NATS.SubjectPrefix != def.NATS.SubjectPrefix {
		t.Fatalf("unexpected subject prefix: %q", cfg.NATS.SubjectPrefix)
	}
}

func TestLoadServiceConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":             "listen_addr = \":9000\"\n",
		"invalid":                 "source = \"replay\"\n",
		"syntax error":            "source = \n",
		"bad http addr":           "http_addr = \"localhost\"\n",
		"nats url without scheme": "[nats]\nurl = \"127.0.0.1:4222\"\n",
		"no readiness surface":    "http_addr = \"\"\ncontrol_addr = \"\"\n[nats]\nurl = \"nats://127.0.0.1:4222\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := loadServiceConfig(path); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadServiceConfigEmptyPathIsDefaults(t *testing.T) {
	cfg, err := loadServiceConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Source != host.DefaultServiceConfig().Source {
		t.Fatalf("unexpected source: %q", cfg.Source)
	}
}

func TestConfigCommands(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"config", "template"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config template: %v", err)
	}
	if !strings.Contains(out.String(), "control_addr") {
		t.Fatalf("template missing control_addr:\n%s", out.String())
	}

	path := filepath.Join(t.TempDir(), "pwbridge.toml")
	for _, args := range [][]string{
		{"config", "template", path},
		{"config", "validate", path},
	} {
		out.Reset()
		root = newRootCmd()
		root.SetOut(&out)
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	if !strings.Contains(out.String(), "ok") {
		t.Fatalf("unexpected validate output: %q", out.String())
	}

	if _, err := loadServiceConfig(path); err != nil {
		t.Fatalf("generated template does not load: %v", err)
	}
}
