package hotlib

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileChangeSubscription receives one unit signal on C per de-duplicated
// content change of the watched library. Close disconnects it, the watcher
// prunes closed subscriptions lazily.
type FileChangeSubscription struct {
	C <-chan struct{}

	ch   chan struct{}
	done chan struct{}
	once sync.Once
}

// Close disconnects the subscription.
func (s *FileChangeSubscription) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *FileChangeSubscription) disconnected() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// SubscribeFileChanges connects a subscriber to the watcher's change signal.
func (r *Reloader) SubscribeFileChanges() *FileChangeSubscription {
	s := &FileChangeSubscription{
		ch:   make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.C = s.ch
	r.subMu.Lock()
	r.watchSubs = append(r.watchSubs, s)
	r.subMu.Unlock()
	return s
}

// watch starts the background watcher goroutine on the watched library file.
// It runs until the reloader is closed.
func (r *Reloader) watch(debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// The file may not exist yet, the loop then starts by arming the watch.
	armed := w.Add(r.watchedLibFile) == nil
	r.log.Info("watching library", "file", r.watchedLibFile, "armed", armed)
	go r.watchLoop(w, debounce, armed)
	return nil
}

func (r *Reloader) watchLoop(w *fsnotify.Watcher, debounce time.Duration, armed bool) {
	defer func() { _ = w.Close() }()
	if !armed {
		// The artifact is still being built, arming counts as its creation.
		if !r.rearm(w) {
			return
		}
		r.signalChange()
	}
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		removed bool
	)
	for {
		select {
		case <-r.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
				removed = true
			}
			if timerC == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			}
		case <-timerC:
			timerC = nil
			wasRemoved := removed
			removed = false
			if wasRemoved || !exists(r.watchedLibFile) {
				r.log.Debug("watched library removed, waiting for it to come back", "file", r.watchedLibFile)
				if !r.rearm(w) {
					return
				}
			}
			r.signalChange()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log.Error("file watcher error", "err", err)
		}
	}
}

// rearm retries watching until the file exists and the watch registers.
// Returns false when the reloader was closed while waiting.
func (r *Reloader) rearm(w *fsnotify.Watcher) bool {
	// Drop the stale watch first, some platforms keep the name registered
	// after a rename.
	_ = w.Remove(r.watchedLibFile)
	for {
		if err := w.Add(r.watchedLibFile); err == nil {
			r.log.Info("watching library again", "file", r.watchedLibFile)
			return true
		}
		select {
		case <-r.stop:
			return false
		case <-time.After(rearmDelay):
		}
	}
}

// signalChange gates a raw change on content: nothing is signaled when the
// bytes hash to the stored fingerprint or a change is already pending. This
// blocks duplicate notifications and the loop the reload's own copy step
// would otherwise cause.
func (r *Reloader) signalChange() bool {
	if fingerprintFile(r.watchedLibFile) == r.fingerprint.Load() || r.pending.Load() {
		return false
	}
	r.log.Debug("library changed", "file", r.watchedLibFile)
	r.pending.Store(true)
	r.subMu.Lock()
	kept := r.watchSubs[:0]
	for _, s := range r.watchSubs {
		if s.disconnected() {
			continue
		}
		select {
		case s.ch <- struct{}{}:
		default:
			// A signal is already queued, one is enough.
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(r.watchSubs); i++ {
		r.watchSubs[i] = nil
	}
	r.watchSubs = kept
	r.subMu.Unlock()
	return true
}
