package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/pwbridge/internal/config"
	"github.com/danmuck/pwbridge/internal/host"
)

// pwbridge config.toml key mapping to host runtime settings.
type fileConfig struct {
	Source             string   `toml:"source"`
	Remote             string   `toml:"remote"`
	PWDumpPath         string   `toml:"pw_dump_path"`
	ReplayFile         string   `toml:"replay_file"`
	ReplayHold         bool     `toml:"replay_hold"`
	HTTPAddr           string   `toml:"http_addr"`
	CORSOrigins        []string `toml:"cors_origins"`
	ControlAddr        string   `toml:"control_addr"`
	ForwardDiagnostics bool     `toml:"forward_diagnostics"`
	DiagnosticsLimit   int      `toml:"diagnostics_limit"`
	ClientQueue        int      `toml:"client_queue"`
	NATS               struct {
		URL           string `toml:"url"`
		SubjectPrefix string `toml:"subject_prefix"`
	} `toml:"nats"`
}

// loadServiceConfig overlays the keys defined in path onto the defaults. An
// empty path yields the defaults.
func loadServiceConfig(path string) (host.ServiceConfig, error) {
	cfg := host.DefaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return host.ServiceConfig{}, fmt.Errorf("load pwbridge config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return host.ServiceConfig{}, fmt.Errorf("load pwbridge config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("source") {
		cfg.Source = host.Source(strings.TrimSpace(raw.Source))
	}
	if meta.IsDefined("remote") {
		cfg.Remote = strings.TrimSpace(raw.Remote)
	}
	if meta.IsDefined("pw_dump_path") {
		cfg.PWDumpPath = strings.TrimSpace(raw.PWDumpPath)
	}
	if meta.IsDefined("replay_file") {
		cfg.ReplayFile = strings.TrimSpace(raw.ReplayFile)
	}
	if meta.IsDefined("replay_hold") {
		cfg.ReplayHold = raw.ReplayHold
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("control_addr") {
		cfg.ControlAddr = strings.TrimSpace(raw.ControlAddr)
	}
	if meta.IsDefined("forward_diagnostics") {
		cfg.ForwardDiagnostics = raw.ForwardDiagnostics
	}
	if meta.IsDefined("diagnostics_limit") {
		cfg.DiagnosticsLimit = raw.DiagnosticsLimit
	}
	if meta.IsDefined("client_queue") {
		cfg.ClientQueue = raw.ClientQueue
	}
	if meta.IsDefined("nats", "url") {
		cfg.NATS.URL = strings.TrimSpace(raw.NATS.URL)
	}
	if meta.IsDefined("nats", "subject_prefix") {
		cfg.NATS.SubjectPrefix = strings.TrimSpace(raw.NATS.SubjectPrefix)
	}

	if err := config.Validate(config.FromService(cfg)); err != nil {
		return host.ServiceConfig{}, fmt.Errorf("load pwbridge config: %w", err)
	}
	return cfg, nil
}
