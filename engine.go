package kaiku

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Draft is a submission before it enters the pipeline. Location is the raw
// device reading; the engine obfuscates it before anything else sees it.
type Draft struct {
	Text     string
	Location *LatLng
	ParentID MessageID
}

// Engine is the geo-aggregation and ephemeral lifecycle core. One engine
// serves one session; the reconciler it owns is the single writer of the
// canonical message collection.
type Engine struct {
	cfg       Config
	session   *Session
	store     Store
	limiter   *RateLimiter
	votes     *VoteLedger
	obfuscate *Obfuscator
	grid      *Grid
	lifecycle Lifecycle
	rec       *Reconciler

	clock func() time.Time
}

func NewEngine(cfg Config, session *Session, store Store) *Engine {
	lifecycle := NewLifecycle(cfg)
	return &Engine{
		cfg:       cfg,
		session:   session,
		store:     store,
		limiter:   NewRateLimiter(cfg),
		votes:     NewVoteLedger(),
		obfuscate: NewObfuscator(cfg),
		grid:      DefaultGrid(),
		lifecycle: lifecycle,
		rec:       NewReconciler(session.ActorID(), lifecycle, cfg.PendingEchoTTL),
		clock:     time.Now,
	}
}

// Reconciler exposes the canonical collection owner, mainly so transports
// and servers can register change listeners.
func (e *Engine) Reconciler() *Reconciler {
	return e.rec
}

// Start launches the reconciliation drain loop and the maintenance ticker.
func (e *Engine) Start(ctx context.Context) {
	go e.rec.Run()
	go e.maintenance(ctx)
}

func (e *Engine) maintenance(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			e.rec.PruneExpired(now)
			e.limiter.Cleanup(now)
		case <-ctx.Done():
			e.rec.Stop()
			logrus.Debug("engine: maintenance stopped")
			return
		}
	}
}

// Submit runs the full submission pipeline: rate limit, obfuscation,
// optimistic insert, then the store call. The optimistic copy is applied
// synchronously before the I/O so the local view responds immediately; on
// moderation rejection it is rolled back, on transport failure it stays,
// marked unconfirmed, for the caller to retry or roll back.
func (e *Engine) Submit(ctx context.Context, draft Draft) (Message, error) {
	if draft.Location == nil {
		return Message{}, ErrLocationUnavailable
	}

	now := e.clock()
	actor := e.session.ActorID()

	verdict := e.limiter.CheckAndRecord(actor, now)
	if !verdict.Allowed {
		return Message{}, &RateLimitError{RetryAfter: verdict.RetryAfter}
	}

	lat, lng := e.obfuscate.Obfuscate(draft.Location.Lat, draft.Location.Lng)
	target := LatLng{Lat: lat, Lng: lng}

	remote := false
	if trueLoc, ok := e.session.TrueLocation(); ok {
		remote = IsRemote(trueLoc, target, e.cfg.RemoteThresholdKm)
	}

	msg := Message{
		ID:           NewMessageID(),
		Text:         draft.Text,
		AuthorID:     actor,
		Location:     target,
		OriginRegion: e.session.OriginRegion(),
		CreatedAt:    now,
		ParentID:     draft.ParentID,
		IsRemote:     remote,
	}

	e.rec.ApplyOptimistic(msg)

	echoed, err := e.store.Submit(ctx, SubmitRequest{
		ID:           msg.ID,
		Text:         msg.Text,
		AuthorID:     msg.AuthorID,
		Location:     msg.Location,
		OriginRegion: msg.OriginRegion,
		ParentID:     msg.ParentID,
		CreatedAt:    msg.CreatedAt,
		IsRemote:     msg.IsRemote,
	})
	if err != nil {
		var moderation *ModerationError
		if errors.As(err, &moderation) {
			e.rec.Rollback(msg.ID)
			logrus.Infof("submission %s rejected by moderation", msg.ID)
			return Message{}, err
		}
		// Transport failure: keep the unconfirmed optimistic copy.
		logrus.Warnf("submission %s unconfirmed: %v", msg.ID, err)
		return msg, err
	}

	e.rec.Merge(PushEvent{Type: EventInsert, ID: echoed.ID, Message: &echoed})
	if confirmed, ok := e.rec.Get(echoed.ID); ok {
		return confirmed, nil
	}
	return echoed, nil
}

// Fetch reloads the working set from the store and returns the visible
// view. Results are re-filtered through the lifecycle predicate even
// though the store should already have filtered them.
func (e *Engine) Fetch(ctx context.Context, viewport *Viewport) ([]Message, error) {
	messages, err := e.store.Fetch(ctx, viewport, true)
	if err != nil {
		return nil, err
	}
	e.rec.Refresh(messages)
	return e.visible(viewport), nil
}

// Feed returns the current visible working set without hitting the store.
func (e *Engine) Feed(viewport *Viewport) []Message {
	return e.visible(viewport)
}

func (e *Engine) visible(viewport *Viewport) []Message {
	snapshot := e.rec.Snapshot(e.clock())
	if viewport == nil {
		return snapshot
	}
	filtered := snapshot[:0]
	for _, m := range snapshot {
		if viewport.Contains(m.Location) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// Clusters aggregates the visible working set for display at a zoom level:
// resolution from the zoom table, cell bucketing, hub merge, then district
// labels. Recomputed from scratch on every call.
func (e *Engine) Clusters(zoom float64, viewport *Viewport) []Cluster {
	resolution := e.grid.ResolutionFor(zoom)
	clusters := Aggregate(e.grid, e.visible(viewport), resolution)
	clusters = MergeHubs(clusters, e.cfg.HubMergeKm)
	return LabelDistricts(clusters, e.cfg.DistrictKm)
}

// Vote applies the toggle locally first; the local score is authoritative
// for the UI pending server confirmation, so the store call is
// fire-and-forget. Returns the new direction and the committed delta.
func (e *Engine) Vote(ctx context.Context, id MessageID, requested VoteDirection) (VoteDirection, int) {
	newVote, delta := e.votes.Cast(e.session.ActorID(), id, requested)
	if delta != 0 {
		e.rec.ApplyVoteDelta(id, delta)
		// The caller's context may end with its request; the confirmation
		// call outlives it on purpose.
		go func() {
			confirmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := e.store.Vote(confirmCtx, id, newVote); err != nil {
				logrus.Warnf("vote on %s not confirmed: %v", id, err)
			}
		}()
	}
	return newVote, delta
}

// Delete removes a message optimistically; a store failure restores it.
func (e *Engine) Delete(ctx context.Context, id MessageID) error {
	msg, ok := e.rec.Remove(id)
	if !ok {
		return &PersistenceError{Op: "delete", Err: errors.New("unknown message id")}
	}
	if err := e.store.Delete(ctx, id); err != nil {
		e.rec.Restore(msg)
		return err
	}
	return nil
}

// OnEvent is the engine's only ingress from the push stream.
func (e *Engine) OnEvent(event PushEvent) {
	e.rec.OnEvent(event)
}
