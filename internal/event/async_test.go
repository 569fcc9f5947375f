package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
)

type recordingTransport struct {
	mu      sync.Mutex
	sent    []Event
	err     error
	release chan struct{}
}

func (r *recordingTransport) Send(ctx context.Context, ev Event) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, ev)
	return nil
}

func (r *recordingTransport) Sent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.sent...)
}

func TestAsyncPublisher_DeliversInBackground(t *testing.T) {
	tr := &recordingTransport{}
	p := NewAsyncPublisher(tr, 8, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Publish(context.Background(), New(KindUserLogin, 7, "a@b.com", auth.RoleCustomer))

	require.Eventually(t, func() bool { return len(tr.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, KindUserLogin, tr.Sent()[0].Kind)
}

func TestAsyncPublisher_DropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tr := &recordingTransport{}
	p := NewAsyncPublisher(tr, 2, nil, m)

	for i := 0; i < 5; i++ {
		p.Publish(context.Background(), New(KindUserLogout, int64(i), "a@b.com", auth.RoleCustomer))
	}
	assert.Equal(t, 2, p.Pending())

	families, err := reg.Gather()
	require.NoError(t, err)
	var dropped float64
	for _, f := range families {
		if f.GetName() == "auth_events_dropped_total" {
			dropped = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 3.0, dropped)
}

func TestAsyncPublisher_PublishNeverBlocksOnSlowTransport(t *testing.T) {
	tr := &recordingTransport{release: make(chan struct{})}
	p := NewAsyncPublisher(tr, 1, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Publish(context.Background(), New(KindUserLogin, int64(i), "a@b.com", auth.RoleCustomer))
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled transport")
	}
	close(tr.release)
	cancel()
	require.NoError(t, <-done)
}

func TestAsyncPublisher_TransportErrorsAreSwallowed(t *testing.T) {
	tr := &recordingTransport{err: errors.New("broker down")}
	p := NewAsyncPublisher(tr, 4, nil, nil)
	p.Publish(context.Background(), New(KindUserPasswordChanged, 7, "a@b.com", auth.RoleCustomer))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 0, p.Pending())
	assert.Empty(t, tr.Sent())
}

func TestAsyncPublisher_FlushesOnShutdown(t *testing.T) {
	tr := &recordingTransport{}
	p := NewAsyncPublisher(tr, 4, nil, nil)
	for i := 0; i < 3; i++ {
		p.Publish(context.Background(), New(KindUserLogin, int64(i), "a@b.com", auth.RoleCustomer))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	assert.Len(t, tr.Sent(), 3)
}
