package kaiku

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Push event types from the persistence layer's realtime stream.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// PushEvent is one entry of the authoritative realtime stream.
type PushEvent struct {
	Type    string    `json:"type"`
	ID      MessageID `json:"id"`
	Message *Message  `json:"message,omitempty"`
}

// ChangeListener is notified after the canonical collection changes.
// Listeners are called outside the reconciler's lock.
type ChangeListener func(event PushEvent)

type pendingReply struct {
	Author    ActorID
	ParentID  MessageID
	CreatedAt time.Time
}

// Reconciler owns the canonical message collection. It merges three inputs
// into one deduplicated view: local optimistic writes, authoritative push
// events, and bulk refresh snapshots. It is the only writer of the
// collection; everything else reads through Snapshot or Get.
//
// Push producers enqueue into a single-consumer queue drained by Run, so
// stream merges never interleave. Optimistic writes apply synchronously
// before the submission I/O returns, which the per-call lock makes safe
// from any goroutine.
type Reconciler struct {
	mu        sync.RWMutex
	canonical map[MessageID]Message
	lifecycle Lifecycle

	self ActorID

	// Own writes awaiting their authoritative echo, keyed by the locally
	// generated message id. Entries expire after pendingTTL.
	pendingOwn map[MessageID]time.Time

	// Replies awaiting echo. Suppression keys on the reply id first; the
	// author+timestamp record is a fallback used only for reply-count
	// bookkeeping, since replies never enter the top-level collection.
	pendingReplies map[MessageID]pendingReply
	pendingTTL     time.Duration

	// Learned reply→parent links so a later Delete of a reply can
	// decrement the right parent.
	replyParents map[MessageID]MessageID

	inbox chan PushEvent
	quit  chan struct{}

	listeners   []ChangeListener
	listenersMu sync.RWMutex

	clock func() time.Time
}

func NewReconciler(self ActorID, lifecycle Lifecycle, pendingTTL time.Duration) *Reconciler {
	return &Reconciler{
		canonical:      make(map[MessageID]Message),
		lifecycle:      lifecycle,
		self:           self,
		pendingOwn:     make(map[MessageID]time.Time),
		pendingReplies: make(map[MessageID]pendingReply),
		pendingTTL:     pendingTTL,
		replyParents:   make(map[MessageID]MessageID),
		inbox:          make(chan PushEvent, 64),
		quit:           make(chan struct{}),
		clock:          time.Now,
	}
}

// AddListener registers a callback fired after every canonical change.
func (r *Reconciler) AddListener(listener ChangeListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Reconciler) notifyListeners(event PushEvent) {
	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()
	for _, listener := range listeners {
		listener(event)
	}
}

// OnEvent is the only ingress from the push stream. Events are queued and
// drained sequentially by Run.
func (r *Reconciler) OnEvent(event PushEvent) {
	select {
	case r.inbox <- event:
	case <-r.quit:
	}
}

// Run drains the push queue until Stop is called. Start it once per
// session, in its own goroutine.
func (r *Reconciler) Run() {
	for {
		select {
		case event := <-r.inbox:
			r.Merge(event)
		case <-r.quit:
			logrus.Debug("reconciler: shutting down")
			return
		}
	}
}

// Stop terminates the drain loop.
func (r *Reconciler) Stop() {
	close(r.quit)
}

// ApplyOptimistic inserts the local actor's own submission immediately for
// responsiveness, marked unconfirmed until the authoritative echo lands.
// Replies bump their parent's count instead of entering the collection.
func (r *Reconciler) ApplyOptimistic(m Message) {
	m.Unconfirmed = true

	r.mu.Lock()
	now := r.clock()
	r.expirePendingLocked(now)
	r.pendingOwn[m.ID] = now

	if m.IsReply() {
		r.pendingReplies[m.ID] = pendingReply{Author: m.AuthorID, ParentID: m.ParentID, CreatedAt: m.CreatedAt}
		r.replyParents[m.ID] = m.ParentID
		r.bumpReplyCountLocked(m.ParentID, 1)
		r.mu.Unlock()
		r.notifyListeners(PushEvent{Type: EventUpdate, ID: m.ParentID})
		return
	}

	r.canonical[m.ID] = m
	r.mu.Unlock()
	r.notifyListeners(PushEvent{Type: EventInsert, ID: m.ID, Message: &m})
}

// Merge applies one authoritative event to the canonical collection.
// Within a batch drained by Run, later events for the same id win.
func (r *Reconciler) Merge(event PushEvent) {
	switch event.Type {
	case EventInsert, EventUpdate:
		if event.Message == nil {
			logrus.Warnf("reconciler: %s event for %s without payload, ignored", event.Type, event.ID)
			return
		}
		r.mergeUpsert(*event.Message)
	case EventDelete:
		r.mergeDelete(event.ID)
	default:
		logrus.Warnf("reconciler: unknown event type %q, ignored", event.Type)
	}
}

func (r *Reconciler) mergeUpsert(incoming Message) {
	r.mu.Lock()
	now := r.clock()
	r.expirePendingLocked(now)

	if incoming.IsReply() {
		// A reply id already on record has been counted once, whether by
		// the optimistic insert, the store response, or an earlier push
		// delivery. Our own submissions arrive twice in normal operation
		// (direct response plus push echo), so redeliveries and updates
		// of a known reply must never bump the parent again.
		if _, counted := r.replyParents[incoming.ID]; counted {
			delete(r.pendingReplies, incoming.ID)
			delete(r.pendingOwn, incoming.ID)
			r.mu.Unlock()
			return
		}
		r.replyParents[incoming.ID] = incoming.ParentID

		// Id rotation or a proxy rewrite can change the echoed id, so
		// match on author and timestamp proximity before counting.
		if r.matchesPendingReplyLocked(incoming) {
			r.mu.Unlock()
			return
		}
		r.bumpReplyCountLocked(incoming.ParentID, 1)
		r.mu.Unlock()
		r.notifyListeners(PushEvent{Type: EventUpdate, ID: incoming.ParentID})
		return
	}

	existing, present := r.canonical[incoming.ID]
	if present {
		// Replace mutable fields, preserve identity.
		existing.Text = incoming.Text
		existing.Score = incoming.Score
		existing.ReplyCount = incoming.ReplyCount
		existing.IsRemote = incoming.IsRemote
		existing.Unconfirmed = false
		r.canonical[incoming.ID] = existing
	} else {
		incoming.Unconfirmed = false
		r.canonical[incoming.ID] = incoming
	}
	delete(r.pendingOwn, incoming.ID)
	r.mu.Unlock()

	eventType := EventInsert
	if present {
		eventType = EventUpdate
	}
	r.notifyListeners(PushEvent{Type: eventType, ID: incoming.ID, Message: &incoming})
}

func (r *Reconciler) mergeDelete(id MessageID) {
	r.mu.Lock()
	if parentID, isReply := r.replyParents[id]; isReply {
		delete(r.replyParents, id)
		delete(r.pendingReplies, id)
		delete(r.pendingOwn, id)
		r.bumpReplyCountLocked(parentID, -1)
		r.mu.Unlock()
		r.notifyListeners(PushEvent{Type: EventUpdate, ID: parentID})
		return
	}

	_, present := r.canonical[id]
	delete(r.canonical, id)
	delete(r.pendingOwn, id)
	r.mu.Unlock()

	if present {
		r.notifyListeners(PushEvent{Type: EventDelete, ID: id})
	}
}

// matchesPendingReplyLocked detects our own echoed reply when the id did
// not survive the round trip. Proximity keeps the check time-bounded.
func (r *Reconciler) matchesPendingReplyLocked(incoming Message) bool {
	if incoming.AuthorID != r.self {
		return false
	}
	for id, pending := range r.pendingReplies {
		if pending.ParentID != incoming.ParentID {
			continue
		}
		gap := incoming.CreatedAt.Sub(pending.CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= r.pendingTTL {
			delete(r.pendingReplies, id)
			delete(r.pendingOwn, id)
			// The local id never hit the wire; the server knows the
			// reply by the incoming id only.
			delete(r.replyParents, id)
			return true
		}
	}
	return false
}

func (r *Reconciler) bumpReplyCountLocked(parentID MessageID, delta int) {
	parent, ok := r.canonical[parentID]
	if !ok {
		return
	}
	parent.ReplyCount += delta
	if parent.ReplyCount < 0 {
		parent.ReplyCount = 0
	}
	r.canonical[parentID] = parent
}

func (r *Reconciler) expirePendingLocked(now time.Time) {
	for id, since := range r.pendingOwn {
		if now.Sub(since) > r.pendingTTL {
			delete(r.pendingOwn, id)
		}
	}
	for id, pending := range r.pendingReplies {
		if now.Sub(pending.CreatedAt) > r.pendingTTL {
			delete(r.pendingReplies, id)
		}
	}
}

// Refresh replaces the collection with a bulk snapshot from the store.
// Unconfirmed optimistic entries missing from the snapshot are kept; their
// echo simply hasn't landed yet and they must not be lost.
func (r *Reconciler) Refresh(snapshot []Message) {
	r.mu.Lock()
	fresh := make(map[MessageID]Message, len(snapshot))
	for _, m := range snapshot {
		if m.IsReply() {
			r.replyParents[m.ID] = m.ParentID
			delete(r.pendingReplies, m.ID)
			delete(r.pendingOwn, m.ID)
			continue
		}
		m.Unconfirmed = false
		fresh[m.ID] = m
		delete(r.pendingOwn, m.ID)
	}
	for id, m := range r.canonical {
		if _, confirmed := fresh[id]; !confirmed && m.Unconfirmed {
			fresh[id] = m
		}
	}
	// Server copies of parents predate replies that are still awaiting
	// their echo; re-apply the optimistic bumps or they vanish until the
	// server next updates the parent.
	for _, pending := range r.pendingReplies {
		if parent, ok := fresh[pending.ParentID]; ok {
			parent.ReplyCount++
			fresh[pending.ParentID] = parent
		}
	}
	r.canonical = fresh
	r.mu.Unlock()

	r.notifyListeners(PushEvent{Type: EventUpdate, ID: ""})
}

// Rollback removes a failed optimistic insert. Returns the removed message
// so the caller can surface it.
func (r *Reconciler) Rollback(id MessageID) (Message, bool) {
	r.mu.Lock()
	m, ok := r.canonical[id]
	delete(r.canonical, id)
	delete(r.pendingOwn, id)
	if pending, isReply := r.pendingReplies[id]; isReply {
		delete(r.pendingReplies, id)
		delete(r.replyParents, id)
		r.bumpReplyCountLocked(pending.ParentID, -1)
	}
	r.mu.Unlock()

	if ok {
		r.notifyListeners(PushEvent{Type: EventDelete, ID: id})
	}
	return m, ok
}

// Remove takes a message out optimistically ahead of a delete call.
func (r *Reconciler) Remove(id MessageID) (Message, bool) {
	r.mu.Lock()
	m, ok := r.canonical[id]
	delete(r.canonical, id)
	r.mu.Unlock()

	if ok {
		r.notifyListeners(PushEvent{Type: EventDelete, ID: id})
	}
	return m, ok
}

// Restore reinserts a message after a failed delete call.
func (r *Reconciler) Restore(m Message) {
	r.mu.Lock()
	r.canonical[m.ID] = m
	r.mu.Unlock()
	r.notifyListeners(PushEvent{Type: EventInsert, ID: m.ID, Message: &m})
}

// ApplyVoteDelta mutates a message's score through the canonical owner.
func (r *Reconciler) ApplyVoteDelta(id MessageID, delta int) (Message, bool) {
	r.mu.Lock()
	m, ok := r.canonical[id]
	if ok {
		m.Score += delta
		r.canonical[id] = m
	}
	r.mu.Unlock()

	if ok {
		r.notifyListeners(PushEvent{Type: EventUpdate, ID: id, Message: &m})
	}
	return m, ok
}

// Get returns a message by id.
func (r *Reconciler) Get(id MessageID) (Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.canonical[id]
	return m, ok
}

// Len returns the size of the canonical collection, visible or not.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.canonical)
}

// Snapshot returns the visible working set, defensively re-filtered
// through the lifecycle predicate and sorted newest first.
func (r *Reconciler) Snapshot(now time.Time) []Message {
	r.mu.RLock()
	all := make([]Message, 0, len(r.canonical))
	for _, m := range r.canonical {
		all = append(all, m)
	}
	r.mu.RUnlock()

	visible := r.lifecycle.Prune(all, now)
	sort.Slice(visible, func(i, j int) bool {
		if !visible[i].CreatedAt.Equal(visible[j].CreatedAt) {
			return visible[i].CreatedAt.After(visible[j].CreatedAt)
		}
		return visible[i].ID < visible[j].ID
	})
	return visible
}

// PruneExpired drops messages that are no longer visible from the
// canonical collection. Hidden messages stay: a later up-vote can bring
// them back, and the store still holds them.
func (r *Reconciler) PruneExpired(now time.Time) int {
	r.mu.Lock()
	removed := 0
	for id, m := range r.canonical {
		if r.lifecycle.StateOf(m, now) == StateExpired {
			delete(r.canonical, id)
			removed++
		}
	}
	r.mu.Unlock()

	if removed > 0 {
		logrus.Debugf("reconciler: pruned %d expired messages", removed)
		r.notifyListeners(PushEvent{Type: EventDelete, ID: ""})
	}
	return removed
}
