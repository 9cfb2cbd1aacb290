package sink

import (
	"testing"
	"time"

	"github.com/danmuck/pwbridge/internal/envelope"
	"github.com/danmuck/pwbridge/internal/graph"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func runNATSServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSPublishesInOrder(t *testing.T) {
	srv := runNATSServer(t)

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 16)
	_, err = sub.ChanSubscribe("test.graph.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub, err := DialNATS(NATSConfig{URL: srv.ClientURL(), SubjectPrefix: "test.graph."})
	require.NoError(t, err)
	defer pub.Close()

	sent := []envelope.Envelope{
		envelope.Add(graph.NodeRecord{ID: 1, Serial: 10}),
		envelope.Remove(2),
		envelope.Add(graph.LinkRecord{ID: 3, Serial: 30}),
	}
	for i := range sent {
		sent[i].Seq = uint64(i + 1)
		require.NoError(t, pub.Emit(sent[i]))
	}
	require.NoError(t, pub.Flush())

	for i, env := range sent {
		select {
		case msg := <-msgs:
			require.Equal(t, "test.graph."+env.Name, msg.Subject)
			decoded, err := envelope.Decode(msg.Data)
			require.NoError(t, err)
			require.Equal(t, uint64(i+1), decoded.Seq)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSClosedConnection(t *testing.T) {
	srv := runNATSServer(t)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	pub := NewNATS(nc, "")
	require.Equal(t, DefaultSubjectPrefix+".remove_id", pub.Subject(envelope.RemoveID))

	nc.Close()
	require.ErrorIs(t, pub.Emit(envelope.Remove(1)), ErrClosed)
}

func TestDialNATSRequiresURL(t *testing.T) {
	_, err := DialNATS(NATSConfig{})
	require.Error(t, err)
}
