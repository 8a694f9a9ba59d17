package hotlib

import (
	"log/slog"
	"sync"
	"time"
)

// EventKind discriminates reload lifecycle events.
type EventKind int

const (
	// AboutToReload signals that the watched library changed and a swap is
	// imminent, the event carries a BlockReload token.
	AboutToReload EventKind = iota
	// Reloaded signals that a new library version finished loading.
	Reloaded
)

func (k EventKind) String() string {
	switch k {
	case AboutToReload:
		return "AboutToReload"
	case Reloaded:
		return "Reloaded"
	default:
		return "Unknown"
	}
}

// ChangedEvent signals a reload lifecycle transition. Block is only set for
// AboutToReload.
type ChangedEvent struct {
	Kind  EventKind
	Block *BlockReload
}

type blockShared struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending int
}

func newBlockShared() *blockShared {
	s := &blockShared{pending: 1}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// wait blocks until every token of this cycle has been released.
func (s *blockShared) wait() {
	s.mu.Lock()
	for s.pending > 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// BlockReload delays a pending library swap. It uses a simple counting
// scheme to track how many tokens are floating around, the swap proceeds
// once the count reaches 0.
//
// Every token must be released on every path that holds one. Release is
// idempotent per token, a Clone is a distinct token with its own release.
type BlockReload struct {
	shared *blockShared
	once   sync.Once
}

// Clone hands the block to another holder, the swap also waits for the clone.
func (b *BlockReload) Clone() *BlockReload {
	b.shared.mu.Lock()
	b.shared.pending++
	b.shared.mu.Unlock()
	return &BlockReload{shared: b.shared}
}

// Release gives up this token's hold, repeated calls are no-ops.
func (b *BlockReload) Release() {
	b.once.Do(func() {
		b.shared.mu.Lock()
		b.shared.pending--
		b.shared.mu.Unlock()
		b.shared.cond.Signal()
	})
}

// observerBuffer bounds how many undelivered events an Observer may hold.
const observerBuffer = 16

// Observer receives the reload lifecycle events of one Notifier. All waits
// block the calling goroutine, the timeout variants are the only built-in
// cancellation. Close releases any buffered block tokens so a forgotten
// observer can not stall the update loop.
type Observer struct {
	rx   chan ChangedEvent
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// WaitForAboutToReload blocks until the library is about to change and
// returns the token keeping the swap back. The old version is still loaded
// while the token is held, release it once update preparations are done.
// Returns nil when the observer was closed.
func (o *Observer) WaitForAboutToReload() *BlockReload {
	for {
		select {
		case ev := <-o.rx:
			if ev.Kind == AboutToReload {
				return ev.Block
			}
		case <-o.done:
			return nil
		}
	}
}

// WaitForAboutToReloadTimeout is WaitForAboutToReload with a deadline, ok is
// false on timeout or close.
func (o *Observer) WaitForAboutToReloadTimeout(timeout time.Duration) (block *BlockReload, ok bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case ev := <-o.rx:
			if ev.Kind == AboutToReload {
				return ev.Block, true
			}
		case <-t.C:
			return nil, false
		case <-o.done:
			return nil, false
		}
	}
}

// WaitForReload blocks until a new library version is loaded. Returns false
// when the observer was closed. An AboutToReload received while waiting is
// skipped, its token is released immediately.
func (o *Observer) WaitForReload() bool {
	for {
		select {
		case ev := <-o.rx:
			if ev.Kind == Reloaded {
				return true
			}
			if ev.Block != nil {
				ev.Block.Release()
			}
		case <-o.done:
			return false
		}
	}
}

// WaitForReloadTimeout is WaitForReload with a deadline, false on timeout.
func (o *Observer) WaitForReloadTimeout(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case ev := <-o.rx:
			if ev.Kind == Reloaded {
				return true
			}
			if ev.Block != nil {
				ev.Block.Release()
			}
		case <-t.C:
			return false
		case <-o.done:
			return false
		}
	}
}

// Close disconnects the observer. Buffered tokens are released, the notifier
// prunes the subscription on its next broadcast.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.done)
	// The lock is still held, no new event can land while draining.
	for {
		select {
		case ev := <-o.rx:
			if ev.Block != nil {
				ev.Block.Release()
			}
		default:
			o.mu.Unlock()
			return
		}
	}
}

// deliver hands an event to the observer without blocking. alive reports
// whether the observer is still connected, delivered whether the event was
// queued. The caller keeps ownership of the token when delivery fails.
func (o *Observer) deliver(ev ChangedEvent) (delivered, alive bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false, false
	}
	select {
	case o.rx <- ev:
		return true, true
	default:
		return false, true
	}
}

// Notifier broadcasts reload lifecycle events to any number of independent
// observers. The zero value is ready to use.
type Notifier struct {
	mu          sync.Mutex
	subscribers []*Observer
	log         *slog.Logger
}

func (n *Notifier) logger() *slog.Logger {
	if n.log == nil {
		return slog.Default()
	}
	return n.log
}

// Subscribe connects a new Observer. Observers that stop listening should be
// closed, they are pruned lazily on the next broadcast.
func (n *Notifier) Subscribe() *Observer {
	o := &Observer{rx: make(chan ChangedEvent, observerBuffer), done: make(chan struct{})}
	n.mu.Lock()
	n.subscribers = append(n.subscribers, o)
	n.mu.Unlock()
	return o
}

// SendAboutToReloadAndWait announces an imminent swap and blocks until every
// subscriber, and every clone they made, has released its BlockReload token.
// There is no deadline, subscribers that need one must impose it themselves.
func (n *Notifier) SendAboutToReloadAndWait() {
	shared := newBlockShared()
	// The count starts at 1 for the announcer's own temporary hold so the
	// swap can not slip through while tokens are still being handed out.
	seed := &BlockReload{shared: shared}
	n.notify(ChangedEvent{Kind: AboutToReload, Block: seed})
	seed.Release()
	n.logger().Debug("waiting for reload block tokens")
	shared.wait()
}

// SendReloaded announces a finished swap, never blocks.
func (n *Notifier) SendReloaded() {
	n.notify(ChangedEvent{Kind: Reloaded})
}

// notify is best-effort: when the subscriber list is contended the whole
// broadcast is skipped rather than blocking the announcer. A token that can
// not be delivered is released on the spot.
func (n *Notifier) notify(ev ChangedEvent) {
	if !n.mu.TryLock() {
		return
	}
	defer n.mu.Unlock()
	kept := n.subscribers[:0]
	for _, o := range n.subscribers {
		out := ev
		if ev.Block != nil {
			out.Block = ev.Block.Clone()
		}
		delivered, alive := o.deliver(out)
		if !delivered && out.Block != nil {
			out.Block.Release()
		}
		if alive {
			kept = append(kept, o)
		}
	}
	if removed := len(n.subscribers) - len(kept); removed > 0 {
		n.logger().Debug("pruned disconnected observers", "count", removed)
	}
	for i := len(kept); i < len(n.subscribers); i++ {
		n.subscribers[i] = nil
	}
	n.subscribers = kept
}
