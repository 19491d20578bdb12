package bus_test

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolekits/core/internal/bus"
	"github.com/rolekits/core/internal/store/core"
	"github.com/rolekits/core/internal/store/memory"
)

// slowReader envuelve un ResumeReader y retiene GetResume hasta que se libere.
// Sirve para publicar mientras el snapshot inicial está en vuelo.
type slowReader struct {
	inner   core.ResumeReader
	release chan struct{}
	once    sync.Once
}

func newSlowReader(inner core.ResumeReader) *slowReader {
	return &slowReader{inner: inner, release: make(chan struct{})}
}

func (r *slowReader) GetResume(ctx context.Context, id string) (*core.Resume, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.inner.GetResume(ctx, id)
}

func (r *slowReader) Release() { r.once.Do(func() { close(r.release) }) }

func seedResume(t *testing.T, store *memory.Store, id, owner, title string) *core.Resume {
	t.Helper()
	r, err := store.UpsertResume(context.Background(), &core.Resume{
		ID:      id,
		OwnerID: owner,
		Title:   title,
		Data:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return r
}

func recv(t *testing.T, ch <-chan core.Resume) core.Resume {
	t.Helper()
	select {
	case r, ok := <-ch:
		require.True(t, ok, "channel closed")
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for update")
		return core.Resume{}
	}
}

func expectClosed(t *testing.T, ch <-chan core.Resume) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected closed channel")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close")
	}
}

func TestSubscribe_SnapshotFirst(t *testing.T) {
	store := memory.New()
	seedResume(t, store, "abc", "owner-1", "v1")
	b := bus.New(store)
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)

	first := recv(t, sub.C())
	assert.Equal(t, "abc", first.ID)
	assert.Equal(t, "v1", first.Title)
	assert.Equal(t, int64(1), first.Version)
}

func TestPublish_OnlyMatchingID(t *testing.T) {
	store := memory.New()
	seedResume(t, store, "abc", "owner-1", "inicial")
	b := bus.New(store)
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)
	_ = recv(t, sub.C()) // snapshot

	// dos updates de abc intercalados con uno de xyz
	require.NoError(t, b.Publish(core.Resume{ID: "abc", Title: "dos", Version: 2}))
	require.NoError(t, b.Publish(core.Resume{ID: "xyz", Title: "ajeno", Version: 1}))
	require.NoError(t, b.Publish(core.Resume{ID: "abc", Title: "tres", Version: 3}))

	got := recv(t, sub.C())
	assert.Equal(t, "dos", got.Title)
	got = recv(t, sub.C())
	assert.Equal(t, "tres", got.Title)

	// no queda nada pendiente: el update de xyz nunca llegó
	select {
	case r := <-sub.C():
		t.Fatalf("unexpected update: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublish_FIFOOrderPerSubscriber(t *testing.T) {
	store := memory.New()
	b := bus.New(store, bus.WithBufferSize(64))
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)
	// resume inexistente: no hay snapshot, el primer item es el primer publish
	time.Sleep(50 * time.Millisecond)

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, b.Publish(core.Resume{ID: "abc", Version: i}))
	}
	for i := int64(1); i <= 20; i++ {
		got := recv(t, sub.C())
		assert.Equal(t, i, got.Version)
	}
}

func TestSubscribe_BacklogDuringSnapshotFetch(t *testing.T) {
	store := memory.New()
	seedResume(t, store, "abc", "owner-1", "snap") // version 1
	reader := newSlowReader(store)
	b := bus.New(reader)
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)

	// publishes mientras el fetch está retenido: uno ya reflejado en el
	// snapshot (version 1) y uno posterior
	require.NoError(t, b.Publish(core.Resume{ID: "abc", Title: "viejo", Version: 1}))
	require.NoError(t, b.Publish(core.Resume{ID: "abc", Title: "nuevo", Version: 2}))
	reader.Release()

	first := recv(t, sub.C())
	assert.Equal(t, "snap", first.Title)
	second := recv(t, sub.C())
	assert.Equal(t, "nuevo", second.Title)
}

func TestPublish_SlowSubscriberDropsNotBlocks(t *testing.T) {
	store := memory.New()
	b := bus.New(store, bus.WithBufferSize(1))
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond) // sin snapshot (resume inexistente)

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 100; i++ {
			_ = b.Publish(core.Resume{ID: "abc", Version: i})
		}
		close(done)
	}()

	// el publisher termina aunque nadie drena el canal
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	// lo que quedó en el buffer sigue siendo consumible
	got := recv(t, sub.C())
	assert.Equal(t, "abc", got.ID)
}

func TestUnsubscribe_ClosesAndIsIdempotent(t *testing.T) {
	store := memory.New()
	b := bus.New(store)
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)

	b.Unsubscribe(sub)
	expectClosed(t, sub.C())

	// repetir no hace daño
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	// un publish posterior no llega a nadie ni falla
	require.NoError(t, b.Publish(core.Resume{ID: "abc", Version: 9}))
}

func TestSubscribe_ContextCancelDetaches(t *testing.T) {
	store := memory.New()
	b := bus.New(store)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "abc")
	require.NoError(t, err)

	cancel()
	expectClosed(t, sub.C())
}

func TestSubscribe_MaxSubscribers(t *testing.T) {
	store := memory.New()
	b := bus.New(store, bus.WithMaxSubscribers(2))
	defer b.Close()

	_, err := b.Subscribe(context.Background(), "a")
	require.NoError(t, err)
	_, err = b.Subscribe(context.Background(), "b")
	require.NoError(t, err)

	_, err = b.Subscribe(context.Background(), "c")
	assert.ErrorIs(t, err, bus.ErrBusUnavailable)
}

func TestSubscribe_EmptyID(t *testing.T) {
	b := bus.New(memory.New())
	defer b.Close()

	_, err := b.Subscribe(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrInvalid)
}

func TestClose_TerminatesEverything(t *testing.T) {
	store := memory.New()
	b := bus.New(store)

	s1, err := b.Subscribe(context.Background(), "a")
	require.NoError(t, err)
	s2, err := b.Subscribe(context.Background(), "b")
	require.NoError(t, err)

	b.Close()
	expectClosed(t, s1.C())
	expectClosed(t, s2.C())

	assert.ErrorIs(t, b.Publish(core.Resume{ID: "a", Version: 1}), bus.ErrBusUnavailable)
	_, err = b.Subscribe(context.Background(), "a")
	assert.ErrorIs(t, err, bus.ErrBusUnavailable)
}

func TestSubscribe_IndependentDelivery(t *testing.T) {
	store := memory.New()
	seedResume(t, store, "abc", "owner-1", "snap")
	b := bus.New(store)
	defer b.Close()

	s1, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)
	s2, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)
	_ = recv(t, s1.C())
	_ = recv(t, s2.C())

	require.NoError(t, b.Publish(core.Resume{ID: "abc", Title: "update", Version: 2}))

	assert.Equal(t, "update", recv(t, s1.C()).Title)
	assert.Equal(t, "update", recv(t, s2.C()).Title)
}

// Martilla Publish desde varias goroutines mientras otras se suscriben,
// desuscriben y drenan sobre el mismo id. Lo que se verifica acá es la
// ausencia de pánicos y de deadlocks bajo churn; el orden por suscriptor ya
// lo cubren los tests de arriba. Correr con -race.
func TestPublish_ConcurrentWithChurn(t *testing.T) {
	store := memory.New()
	seedResume(t, store, "abc", "owner-1", "snap")
	b := bus.New(store)
	defer b.Close()

	const (
		publishers = 8
		churners   = 8
		publishes  = 500
		cycles     = 200
	)

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < publishes; i++ {
				assert.NoError(t, b.Publish(core.Resume{ID: "abc", Version: int64(i + 2)}))
			}
		}()
	}
	for c := 0; c < churners; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < cycles; i++ {
				sub, err := b.Subscribe(context.Background(), "abc")
				if !assert.NoError(t, err) {
					return
				}
			buffered:
				for {
					select {
					case <-sub.C():
					default:
						break buffered
					}
				}
				b.Unsubscribe(sub)
				// Unsubscribe cierra el canal, el drain final termina solo
				for range sub.C() {
				}
			}
		}()
	}
	wg.Wait()

	// el bus sigue operativo después del churn
	sub, err := b.Subscribe(context.Background(), "abc")
	require.NoError(t, err)
	_ = recv(t, sub.C())
	b.Unsubscribe(sub)
}

// Una suscripción terminada por Unsubscribe bajo un ctx de larga vida no
// puede dejar vivo al watcher de ese ctx.
func TestUnsubscribe_ReleasesContextWatcher(t *testing.T) {
	store := memory.New()
	seedResume(t, store, "abc", "owner-1", "snap")
	b := bus.New(store)
	defer b.Close()

	before := runtime.NumGoroutine()
	for i := 0; i < 64; i++ {
		sub, err := b.Subscribe(context.Background(), "abc")
		require.NoError(t, err)
		b.Unsubscribe(sub)
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+4
	}, 2*time.Second, 10*time.Millisecond, "context watchers leaked")
}
