package bus

import (
	"sync"

	"github.com/rolekits/core/internal/observability/logger"
	"github.com/rolekits/core/internal/store/core"
)

// Subscription es el registro efímero de interés en un resume id.
// Se crea con Bus.Subscribe y muere con Unsubscribe o con el ctx del
// transporte; no sobrevive al proceso.
type Subscription struct {
	id       uint64
	resumeID string
	bus      *Bus
	ch       chan core.Resume
	done     chan struct{}

	// mu serializa el estado de entrega. started marca que el snapshot ya se
	// resolvió; hasta entonces los publishes van a backlog para garantizar
	// "snapshot primero, deltas después" sin huecos ni reordenamientos.
	// Orden de locks: nunca se toma b.mu con s.mu tomado.
	mu      sync.Mutex
	started bool
	backlog []core.Resume
	closed  bool
}

// C es el stream de estados del resume. El primer item es el snapshot
// inicial (cuando el resume existe al momento del attach); después, cada
// publish en orden. El canal se cierra en el detach.
func (s *Subscription) C() <-chan core.Resume { return s.ch }

// ResumeID devuelve el id suscripto.
func (s *Subscription) ResumeID() string { return s.resumeID }

// deliver encola un estado publicado. Nunca bloquea: si el buffer del
// suscriptor está lleno, el mensaje se descarta con warning y métrica.
func (s *Subscription) deliver(r core.Resume) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.started {
		s.backlog = append(s.backlog, r)
		return
	}
	s.send(r)
}

// start entrega el snapshot inicial y drena el backlog acumulado durante el
// fetch. Deltas que el snapshot ya refleja (Version menor o igual) se
// descartan: el suscriptor nunca ve un estado más viejo que su snapshot.
func (s *Subscription) start(snap *core.Resume) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.started {
		return
	}
	if snap != nil {
		s.send(*snap)
	}
	for _, r := range s.backlog {
		if snap != nil && r.Version != 0 && r.Version <= snap.Version {
			continue
		}
		s.send(r)
	}
	s.backlog = nil
	s.started = true
}

// send hace el envío no bloqueante. Llamar con s.mu tomado.
func (s *Subscription) send(r core.Resume) {
	select {
	case s.ch <- r:
		observeDelivery()
	default:
		observeDrop()
		logger.L().Warn("slow subscriber, update dropped",
			logger.Component("bus"),
			logger.ResumeID(s.resumeID),
			logger.SubID(s.id),
		)
	}
}

// close cierra el canal una sola vez. Con s.mu tomado adentro, así nunca
// corre junto con un send (no hay send-on-closed-channel posible).
// done despierta al watcher del ctx para que no quede vivo cuando la
// suscripción termina antes que el contexto.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.backlog = nil
	close(s.ch)
	close(s.done)
}
