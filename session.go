package kaiku

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/sirupsen/logrus"
)

// Session is the explicit actor context threaded into every engine call.
// There is no ambient identity: rate limiting, voting and echo suppression
// all read the actor from here.
type Session struct {
	mu           sync.RWMutex
	actorID      ActorID
	trueLocation *LatLng
	originRegion string
}

func NewSession(originRegion string) *Session {
	return &Session{
		actorID:      newActorID(),
		originRegion: originRegion,
	}
}

func newActorID() ActorID {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return ActorID("anon")
	}
	return ActorID(hex.EncodeToString(buf))
}

// ActorID returns the current pseudonymous identifier.
func (s *Session) ActorID() ActorID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actorID
}

// RotateActor issues a fresh pseudonymous identifier. Suppression of
// self-echoes keys on message ids, so rotation is safe mid-session.
func (s *Session) RotateActor() ActorID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actorID = newActorID()
	logrus.Debugf("session: rotated actor id")
	return s.actorID
}

// SetTrueLocation records the device's real position. It is used only for
// remote detection and never leaves the session.
func (s *Session) SetTrueLocation(loc LatLng) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trueLocation = &loc
}

// TrueLocation returns the real position, if known.
func (s *Session) TrueLocation() (LatLng, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.trueLocation == nil {
		return LatLng{}, false
	}
	return *s.trueLocation, true
}

// OriginRegion is the author's country/region code, used only to flag
// cross-region posts.
func (s *Session) OriginRegion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.originRegion
}
