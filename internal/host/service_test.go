package host

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/pwbridge/internal/bridge"
	"github.com/danmuck/pwbridge/internal/control"
	"github.com/danmuck/pwbridge/internal/envelope"
	"github.com/danmuck/pwbridge/internal/testutil/testlog"
	"github.com/danmuck/pwbridge/internal/tools"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

const capture = "../pwdump/testdata/monitor.json"

var wantEvents = []string{envelope.AddNode, envelope.AddPort, envelope.AddLink, envelope.RemoveID}

func replayConfig() ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.Source = SourceReplay
	cfg.ReplayFile = capture
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.ControlAddr = "127.0.0.1:0"
	return cfg
}

type runResult struct {
	err error
}

func start(t *testing.T, ctx context.Context, svc *Service) <-chan runResult {
	t.Helper()
	done := make(chan runResult, 1)
	go func() { done <- runResult{err: svc.RunContext(ctx)} }()
	select {
	case <-svc.Listening():
	case res := <-done:
		t.Fatalf("service exited before listening: %v", res.err)
	case <-time.After(5 * time.Second):
		t.Fatalf("service never started listening")
	}
	return done
}

func waitDone(t *testing.T, done <-chan runResult) error {
	t.Helper()
	select {
	case res := <-done:
		return res.err
	case <-time.After(5 * time.Second):
		t.Fatalf("service did not stop")
		return nil
	}
}

func TestServiceConfigValidate(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name string
		mut  func(*ServiceConfig)
		want error
	}{
		{name: "defaults", mut: func(*ServiceConfig) {}},
		{name: "unknown source", mut: func(c *ServiceConfig) { c.Source = "alsa" }, want: ErrInvalidConfig},
		{name: "replay without file", mut: func(c *ServiceConfig) { c.Source = SourceReplay }, want: ErrInvalidConfig},
		{name: "pwdump without binary", mut: func(c *ServiceConfig) { c.PWDumpPath = " " }, want: ErrInvalidConfig},
		{name: "no sink", mut: func(c *ServiceConfig) { c.HTTPAddr = "" }, want: ErrNoSink},
		{name: "nats only", mut: func(c *ServiceConfig) { c.HTTPAddr = ""; c.NATS.URL = "nats://127.0.0.1:4222" }},
		{name: "no readiness surface", mut: func(c *ServiceConfig) {
			c.HTTPAddr = ""
			c.ControlAddr = ""
			c.NATS.URL = "nats://127.0.0.1:4222"
		}, want: ErrInvalidConfig},
		{name: "negative limit", mut: func(c *ServiceConfig) { c.DiagnosticsLimit = -1 }, want: ErrInvalidConfig},
		{name: "negative queue", mut: func(c *ServiceConfig) { c.ClientQueue = -1 }, want: ErrInvalidConfig},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultServiceConfig()
			tc.mut(&cfg)
			err := cfg.Validate()
			if tc.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRunReplayOverWebsocket(t *testing.T) {
	testlog.Start(t)

	cfg := replayConfig()
	cfg.ReplayHold = true
	svc := NewServiceWithConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := start(t, ctx, svc)

	ctl := control.NewClient(svc.ControlAddr().String(), time.Second)
	defer ctl.Close()
	status, err := ctl.Status()
	require.NoError(t, err)
	require.False(t, status.Ready)

	url := "ws://" + svc.HTTPAddr().String() + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(map[string]string{"event": envelope.FrontendReady}))

	for i, want := range wantEvents {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		got, err := envelope.Decode(data)
		require.NoError(t, err)
		require.Equal(t, want, got.Event)
		require.Equal(t, uint64(i+1), got.Seq)
	}

	require.Eventually(t, func() bool {
		status, err := ctl.Status()
		return err == nil && status.Phase == bridge.PhaseRunning && status.Counters.Emitted == 4
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestRunReplayToNATS(t *testing.T) {
	testlog.Start(t)

	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(10*time.Second))
	defer ns.Shutdown()

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	msgs := make(chan *nats.Msg, 16)
	_, err = nc.ChanSubscribe("graph.>", msgs)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	cfg := replayConfig()
	cfg.HTTPAddr = ""
	cfg.NATS = NATSConfig{URL: ns.ClientURL(), SubjectPrefix: "graph"}
	svc := NewServiceWithConfig(cfg)
	require.Nil(t, svc.HTTPAddr())

	done := start(t, context.Background(), svc)
	var ready control.ReadyResult
	require.NoError(t, control.Do(svc.ControlAddr().String(), control.Request{Action: control.ActionReady}, &ready))
	require.True(t, ready.Fired)

	require.NoError(t, waitDone(t, done), "a finished replay is an orderly exit")

	for _, want := range wantEvents {
		select {
		case msg := <-msgs:
			require.Equal(t, "graph."+want, msg.Subject)
			got, err := envelope.Decode(msg.Data)
			require.NoError(t, err)
			require.Equal(t, want, got.Event)
		case <-time.After(3 * time.Second):
			t.Fatalf("missing %s on nats", want)
		}
	}
}

type failingStarter struct{}

func (failingStarter) Start(_ context.Context, name string, _ ...string) (tools.Process, error) {
	return nil, errors.Join(tools.ErrBinaryNotFound, errors.New(name))
}

func TestRunMissingBinaryIsFatal(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultServiceConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.ControlAddr = ""
	svc := NewServiceWithConfig(cfg)
	svc.SetStarter(failingStarter{})

	err := svc.RunContext(context.Background())
	require.ErrorIs(t, err, bridge.ErrInit)
	require.ErrorIs(t, err, tools.ErrBinaryNotFound)
	require.True(t, strings.Contains(err.Error(), "connect"))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)

	cfg := DefaultServiceConfig()
	cfg.Source = SourceReplay
	err := NewServiceWithConfig(cfg).RunContext(context.Background())
	require.ErrorIs(t, err, ErrInvalidConfig)
}
