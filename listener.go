package cantp

import "sync"

// TransportEventKind tags what a Transport is reporting to a TransportListener.
type TransportEventKind uint8

const (
	EventFrameTransmitting TransportEventKind = iota
	EventFrameTransmitted
	EventFrameReceived
)

// TransportEvent is pushed to every registered TransportListener from
// whichever pump goroutine observed it. Listeners must not block: they run
// inline on the transmit or receive pump.
type TransportEvent struct {
	Kind    TransportEventKind
	Channel ChannelID
	Message CanMessage
}

// TransportListener receives raw-frame transport events, distinct from
// pkg/isotp.Listener which is scoped to a single ISO-TP channel's
// segmentation events. A transport has many ISO-TP channels layered on top
// of it but reports transport-level activity (every frame in or out) to a
// separately registered, named set of these.
type TransportListener func(TransportEvent)

// listenerRegistry is a named, mutex-guarded set of TransportListeners.
// Register/Unregister are idempotent: registering an existing name replaces
// it, unregistering an absent name is a no-op.
type listenerRegistry struct {
	mu        sync.RWMutex
	listeners map[string]TransportListener
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{listeners: make(map[string]TransportListener)}
}

func (r *listenerRegistry) register(name string, l TransportListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[name] = l
}

func (r *listenerRegistry) unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, name)
}

func (r *listenerRegistry) unregisterAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = make(map[string]TransportListener)
}

func (r *listenerRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.listeners))
	for name := range r.listeners {
		out = append(out, name)
	}
	return out
}

func (r *listenerRegistry) notify(event TransportEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.listeners {
		l(event)
	}
}
