package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/danmuck/pwbridge/internal/host"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("config: invalid")

// File is the on-disk shape of a pwbridge config.
type File struct {
	Source             string   `toml:"source" comment:"pwdump (live pw-dump --monitor) or replay (captured stream)"`
	Remote             string   `toml:"remote" comment:"remote daemon name passed to pw-dump --remote; empty uses the default"`
	PWDumpPath         string   `toml:"pw_dump_path"`
	ReplayFile         string   `toml:"replay_file"`
	ReplayHold         bool     `toml:"replay_hold" comment:"keep running after the replay ends"`
	HTTPAddr           string   `toml:"http_addr" comment:"ui server; empty disables"`
	CORSOrigins        []string `toml:"cors_origins"`
	ControlAddr        string   `toml:"control_addr" comment:"tcp control endpoint; empty disables"`
	ForwardDiagnostics bool     `toml:"forward_diagnostics" comment:"emit debug_message for dropped registry objects"`
	DiagnosticsLimit   int      `toml:"diagnostics_limit"`
	ClientQueue        int      `toml:"client_queue"`
	NATS               NATSFile `toml:"nats"`
}

type NATSFile struct {
	URL           string `toml:"url" comment:"empty disables the nats sink"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Default mirrors host.DefaultServiceConfig.
func Default() File {
	return FromService(host.DefaultServiceConfig())
}

// Load decodes path strictly: unknown keys are errors.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := Default()
	defaultOrigins := cfg.CORSOrigins
	cfg.CORSOrigins = nil
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return File{}, fmt.Errorf("%w (%s): %s", ErrInvalid, path, strings.TrimSpace(strict.String()))
		}
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = defaultOrigins
	}
	if err := Validate(cfg); err != nil {
		return File{}, err
	}
	return cfg, nil
}

func Validate(cfg File) error {
	for key, addr := range map[string]string{
		"http_addr":    cfg.HTTPAddr,
		"control_addr": cfg.ControlAddr,
	} {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalid, key, addr, err)
		}
	}
	if url := strings.TrimSpace(cfg.NATS.URL); url != "" && !strings.Contains(url, "://") {
		return fmt.Errorf("%w: nats.url %q has no scheme", ErrInvalid, url)
	}
	if err := cfg.Service().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Service converts the file into runtime settings.
func (f File) Service() host.ServiceConfig {
	return host.ServiceConfig{
		Source:             host.Source(strings.TrimSpace(f.Source)),
		Remote:             strings.TrimSpace(f.Remote),
		PWDumpPath:         strings.TrimSpace(f.PWDumpPath),
		ReplayFile:         strings.TrimSpace(f.ReplayFile),
		ReplayHold:         f.ReplayHold,
		HTTPAddr:           strings.TrimSpace(f.HTTPAddr),
		CORSOrigins:        append([]string(nil), f.CORSOrigins...),
		ControlAddr:        strings.TrimSpace(f.ControlAddr),
		ForwardDiagnostics: f.ForwardDiagnostics,
		DiagnosticsLimit:   f.DiagnosticsLimit,
		ClientQueue:        f.ClientQueue,
		NATS: host.NATSConfig{
			URL:           strings.TrimSpace(f.NATS.URL),
			SubjectPrefix: strings.TrimSpace(f.NATS.SubjectPrefix),
		},
	}
}

func FromService(cfg host.ServiceConfig) File {
	return File{
		Source:             string(cfg.Source),
		Remote:             cfg.Remote,
		PWDumpPath:         cfg.PWDumpPath,
		ReplayFile:         cfg.ReplayFile,
		ReplayHold:         cfg.ReplayHold,
		HTTPAddr:           cfg.HTTPAddr,
		CORSOrigins:        append([]string(nil), cfg.CORSOrigins...),
		ControlAddr:        cfg.ControlAddr,
		ForwardDiagnostics: cfg.ForwardDiagnostics,
		DiagnosticsLimit:   cfg.DiagnosticsLimit,
		ClientQueue:        cfg.ClientQueue,
		NATS: NATSFile{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		},
	}
}
