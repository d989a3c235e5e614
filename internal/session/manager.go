package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTickInterval is the countdown resolution while a session is live.
const DefaultTickInterval = time.Second

// Manager is the registry of live controllers, one per participant. It owns
// the per-session ticker goroutine that feeds wall-clock ticks into each
// controller and fans controller notifications out to WebSocket subscribers.
type Manager struct {
	mu       sync.Mutex
	active   map[int]*managed
	interval time.Duration
	log      zerolog.Logger
	wg       sync.WaitGroup
	closed   bool
}

type managed struct {
	ctrl        *Controller
	stop        chan struct{}
	stopOnce    sync.Once
	subscribers map[int]chan Notification
	nextSubID   int
}

// NewManager creates a Manager ticking at the given interval (DefaultTickInterval
// when zero).
func NewManager(interval time.Duration, log zerolog.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Manager{
		active:   make(map[int]*managed),
		interval: interval,
		log:      log.With().Str("component", "session_manager").Logger(),
	}
}

// Attach registers a controller for a participant and starts its ticker.
// Replaces a previous registration for the same participant, stopping its
// ticker first (rejoin from a reload).
func (m *Manager) Attach(participantID int, ctrl *Controller) {
	// Terminal controllers are never registered: there is nothing to tick
	// and finished views are served from the database.
	if ctrl.Terminal() {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if prev, ok := m.active[participantID]; ok {
		prev.stopTicker()
	}
	entry := &managed{
		ctrl:        ctrl,
		stop:        make(chan struct{}),
		subscribers: make(map[int]chan Notification),
	}
	m.active[participantID] = entry
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(participantID, entry)
}

// Get returns the live controller for a participant, or nil.
func (m *Manager) Get(participantID int) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.active[participantID]; ok {
		return entry.ctrl
	}
	return nil
}

// Dispatch forwards a controller notification to the participant's
// subscribers. Wire it as the controller's Notify option.
func (m *Manager) Dispatch(participantID int, n Notification) {
	m.mu.Lock()
	entry, ok := m.active[participantID]
	if !ok {
		m.mu.Unlock()
		return
	}
	subs := make([]chan Notification, 0, len(entry.subscribers))
	for _, ch := range entry.subscribers {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- n:
		default:
			// Slow consumer; drop rather than stall the session.
		}
	}
}

// Subscribe returns a channel of notifications for a participant's session
// and an unsubscribe func. The channel is buffered; slow consumers miss
// events instead of blocking the controller.
func (m *Manager) Subscribe(participantID int) (<-chan Notification, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.active[participantID]
	if !ok {
		ch := make(chan Notification)
		close(ch)
		return ch, func() {}
	}

	id := entry.nextSubID
	entry.nextSubID++
	ch := make(chan Notification, 16)
	entry.subscribers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e, ok := m.active[participantID]; ok {
			delete(e.subscribers, id)
		}
	}
}

// evictEntry removes a registration once its session is terminal, but only
// if it is still the current one. A rejoin may have replaced the entry
// between the terminal transition and this call.
func (m *Manager) evictEntry(participantID int, entry *managed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.active[participantID]; ok && cur == entry {
		entry.stopTicker()
		delete(m.active, participantID)
		m.log.Debug().Int("participant_id", participantID).Msg("session evicted")
	}
}

// Shutdown stops every ticker and waits for them to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	for _, entry := range m.active {
		entry.stopTicker()
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info().Msg("session manager stopped")
}

func (e *managed) stopTicker() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// run delivers wall-clock ticks until the session turns terminal, then
// evicts the registration. Ticks are only a trigger: the controller
// recomputes remaining time from the start timestamp, so missed or delayed
// ticks never skew the countdown. Finished attempts are served from
// PostgreSQL afterwards, the in-memory controller is not kept around.
func (m *Manager) run(participantID int, entry *managed) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-entry.stop:
			return
		case now := <-ticker.C:
			entry.ctrl.Tick(context.Background(), now)
			if entry.ctrl.Terminal() {
				m.evictEntry(participantID, entry)
				return
			}
		}
	}
}
