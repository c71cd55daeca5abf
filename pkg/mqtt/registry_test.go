package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/quito/pkg/broker"
)

type fakeClient struct {
	opts         broker.Options
	ref          string
	connected    bool
	disconnected int
}

func (f *fakeClient) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeClient) Disconnect()                       { f.connected = false; f.disconnected++ }
func (f *fakeClient) Subscribe(string, byte, MessageHandler) error {
	return nil
}
func (f *fakeClient) Unsubscribe(...string) error             { return nil }
func (f *fakeClient) Publish(string, byte, bool, []byte) error { return nil }
func (f *fakeClient) IsConnected() bool                        { return f.connected }
func (f *fakeClient) Options() broker.Options                  { return f.opts }

func newFakeRegistry(events EventHandler) (*Registry, *[]*fakeClient) {
	var created []*fakeClient
	r := NewRegistry(testLogger(), events, WithClientFactory(func(opts broker.Options, _ *slog.Logger, clientOpts ...ClientOption) (Client, error) {
		var cfg clientConfig
		for _, o := range clientOpts {
			o(&cfg)
		}
		c := &fakeClient{opts: opts, ref: cfg.ref}
		created = append(created, c)
		return c, nil
	}))
	return r, &created
}

func TestRegistry_CreateAndGet(t *testing.T) {
	r, created := newFakeRegistry(nil)
	opts := buildOptions(t, broker.NewBuilder().URI("tcp://h:1883"))

	ref, client, err := r.Create(opts)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	require.Len(t, *created, 1)
	assert.Equal(t, ref, (*created)[0].ref)

	got, err := r.Get(ref)
	require.NoError(t, err)
	assert.Same(t, client, got)
	assert.Equal(t, []string{ref}, r.Refs())
}

func TestRegistry_UnknownRefEmitsEvent(t *testing.T) {
	var events []Event
	r, _ := newFakeRegistry(func(e Event) { events = append(events, e) })

	_, err := r.Get("missing")
	assert.True(t, errors.Is(err, ErrUnknownClient))
	require.Len(t, events, 1)
	assert.Equal(t, EventClientRefUnknown, events[0].Kind)
	assert.Equal(t, "missing", events[0].ClientRef)

	assert.True(t, errors.Is(r.Remove("missing"), ErrUnknownClient))
}

func TestRegistry_RemoveDisconnects(t *testing.T) {
	r, created := newFakeRegistry(nil)
	opts := buildOptions(t, broker.NewBuilder().URI("tcp://h:1883"))

	ref, client, err := r.Create(opts)
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))

	connected, total := r.ConnectedCount()
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, total)

	require.NoError(t, r.Remove(ref))
	assert.Equal(t, 1, (*created)[0].disconnected)
	assert.Empty(t, r.Refs())
}

func TestRegistry_Close(t *testing.T) {
	r, created := newFakeRegistry(nil)
	opts := buildOptions(t, broker.NewBuilder().URI("tcp://h:1883"))

	for i := 0; i < 3; i++ {
		_, c, err := r.Create(opts)
		require.NoError(t, err)
		require.NoError(t, c.Connect(context.Background()))
	}

	r.Close()
	assert.Empty(t, r.Refs())
	for _, c := range *created {
		assert.False(t, c.connected)
	}
}

func TestRegistry_CreateError(t *testing.T) {
	r := NewRegistry(testLogger(), nil)

	_, _, err := r.Create(broker.Options{Host: "h", Port: 1883, ProtocolLevel: 9})
	assert.True(t, errors.Is(err, ErrUnsupportedProtocolLevel))
	assert.Empty(t, r.Refs())
}
