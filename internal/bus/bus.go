// Package bus implementa el fan-out de actualizaciones en vivo: pub/sub
// in-process con topología por resume id.
//
// Cada suscriptor declara interés en un único resume id y recibe primero un
// snapshot del estado actual y después cada publish de ese id, en orden FIFO.
// La entrega es independiente por suscriptor: uno lento se queda sin mensajes
// (drop con warning), nunca bloquea al publisher.
//
// El registro es el único estado mutable compartido: un map de resume id a
// set de suscriptores bajo RWMutex. Publish itera sobre una copia del set,
// así un attach/detach concurrente ni duplica ni rompe la entrega en curso.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rolekits/core/internal/observability/logger"
	"github.com/rolekits/core/internal/store/core"
)

// ErrBusUnavailable indica agotamiento de recursos del bus (cap de
// suscriptores alcanzado o bus cerrado). Es fatal para esa llamada puntual:
// el caller decide si reintenta, acá nunca se reintenta en silencio.
var ErrBusUnavailable = errors.New("bus unavailable")

const (
	defaultBufferSize     = 16
	defaultMaxSubscribers = 4096
	snapshotTimeout       = 5 * time.Second
)

// Bus es el hub de publicación. Construirlo con New e inyectarlo donde haga
// falta; no hay singleton.
type Bus struct {
	reader  core.ResumeReader
	bufSize int
	maxSubs int

	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
	total  int
	closed bool

	snapshots singleflight.Group
}

// Option configura el Bus.
type Option func(*Bus)

// WithBufferSize cambia el buffer por suscriptor.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// WithMaxSubscribers cambia el cap global de suscriptores.
func WithMaxSubscribers(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxSubs = n
		}
	}
}

// New crea el bus. reader es el colaborador externo de lectura de resumes,
// usado solo para el snapshot inicial de cada attach.
func New(reader core.ResumeReader, opts ...Option) *Bus {
	b := &Bus{
		reader:  reader,
		bufSize: defaultBufferSize,
		maxSubs: defaultMaxSubscribers,
		subs:    make(map[string]map[uint64]*Subscription),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe registra interés en un resume id y dispara el fetch del snapshot
// inicial. El primer item del stream es ese snapshot (si el resume existe);
// los publishes que lleguen mientras el fetch está en vuelo se encolan y se
// entregan después, filtrando los que el snapshot ya refleja.
//
// La suscripción se ata al ctx: cuando el transporte se cae, el detach es
// automático.
func (b *Bus) Subscribe(ctx context.Context, resumeID string) (*Subscription, error) {
	if resumeID == "" {
		return nil, core.ErrInvalid
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusUnavailable
	}
	if b.total >= b.maxSubs {
		b.mu.Unlock()
		logger.From(ctx).Error("subscriber cap reached",
			logger.Component("bus"),
			logger.Int("max_subscribers", b.maxSubs),
		)
		return nil, ErrBusUnavailable
	}
	b.nextID++
	sub := &Subscription{
		id:       b.nextID,
		resumeID: resumeID,
		bus:      b,
		ch:       make(chan core.Resume, b.bufSize),
		done:     make(chan struct{}),
	}
	set, ok := b.subs[resumeID]
	if !ok {
		set = make(map[uint64]*Subscription)
		b.subs[resumeID] = set
	}
	set[sub.id] = sub
	b.total++
	b.mu.Unlock()

	observeSubscribe()

	go b.fetchSnapshot(sub)
	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(sub)
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish entrega el estado nuevo de un resume a todos los suscriptores de su
// id. Suscriptores de otros ids no se enteran. La llamada no bloquea: el peor
// caso por suscriptor es un drop contabilizado.
func (b *Bus) Publish(r core.Resume) error {
	if r.ID == "" {
		return core.ErrInvalid
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusUnavailable
	}
	set := b.subs[r.ID]
	targets := make([]*Subscription, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	observePublish()
	for _, s := range targets {
		s.deliver(r)
	}
	return nil
}

// Unsubscribe desregistra la suscripción y cierra su canal. Idempotente: un
// handle ya cerrado (o de un transporte caído) es un no-op, no un error.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if set, ok := b.subs[sub.resumeID]; ok {
		if _, present := set[sub.id]; present {
			delete(set, sub.id)
			b.total--
			if len(set) == 0 {
				delete(b.subs, sub.resumeID)
			}
			observeUnsubscribe()
		}
	}
	b.mu.Unlock()

	sub.close()
}

// Close cierra el bus y todas las suscripciones vivas. Publish/Subscribe
// posteriores devuelven ErrBusUnavailable.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*Subscription
	for _, set := range b.subs {
		for _, s := range set {
			all = append(all, s)
		}
	}
	b.subs = make(map[string]map[uint64]*Subscription)
	b.total = 0
	b.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

// fetchSnapshot resuelve el estado actual del resume y se lo entrega al
// suscriptor como primer item. Singleflight por id: N attaches concurrentes
// del mismo resume comparten una sola lectura del store.
//
// Si el fetch falla (resume borrado en el medio, store caído) el stream
// simplemente no tiene item inicial y queda esperando un publish futuro.
func (b *Bus) fetchSnapshot(sub *Subscription) {
	v, err, _ := b.snapshots.Do(sub.resumeID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		return b.reader.GetResume(ctx, sub.resumeID)
	})

	var snap *core.Resume
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			logger.L().Warn("initial snapshot fetch failed",
				logger.Component("bus"),
				logger.ResumeID(sub.resumeID),
				logger.SubID(sub.id),
				logger.Err(err),
			)
		}
	} else if r, ok := v.(*core.Resume); ok {
		snap = r
	}

	sub.start(snap)
}
