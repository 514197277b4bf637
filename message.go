package kaiku

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// MessageID uniquely identifies a message. IDs are generated locally at
// submission time and kept by the persistence layer, so the same ID is
// valid before and after the authoritative echo arrives.
type MessageID string

// ActorID is a pseudonymous, rotating identifier for a poster.
type ActorID string

// LatLng is a WGS84 coordinate pair. Once a message is persisted its
// Location is always the obfuscated coordinate, never a raw GPS reading.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Message is the core entity of the feed.
type Message struct {
	ID           MessageID `json:"id"`
	Text         string    `json:"text"`
	AuthorID     ActorID   `json:"author_id"`
	Location     LatLng    `json:"location"`
	OriginRegion string    `json:"origin_region,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Score        int       `json:"score"`
	ParentID     MessageID `json:"parent_id,omitempty"`
	ReplyCount   int       `json:"reply_count"`
	IsRemote     bool      `json:"is_remote"`

	// Unconfirmed marks a local optimistic copy that hasn't been echoed
	// back by the persistence layer yet. Never serialized.
	Unconfirmed bool `json:"-"`
}

// IsReply reports whether the message belongs to a thread. Replies never
// appear in top-level spatial aggregation, only in their parent's count.
func (m Message) IsReply() bool {
	return m.ParentID != ""
}

// NewMessageID generates a random 128-bit hex identifier.
func NewMessageID() MessageID {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back
		// to a timestamp so submission can still proceed.
		return MessageID(hex.EncodeToString([]byte(time.Now().String()))[:32])
	}
	return MessageID(hex.EncodeToString(buf))
}

// Cluster is a display-time grouping of messages sharing a spatial cell,
// or several nearby cells merged into a hub. Clusters are recomputed from
// scratch on every aggregation pass and never persisted.
type Cluster struct {
	CellID    CellID      `json:"cell_id"`
	Center    LatLng      `json:"center"`
	MemberIDs []MessageID `json:"member_ids"`
	Count     int         `json:"count"`
	LatestAt  time.Time   `json:"latest_at"`

	// District labeling, assigned after the hub merge pass.
	District      string `json:"district,omitempty"`
	DistrictEmoji string `json:"district_emoji,omitempty"`
}

// VoteDirection is the state of an actor's vote on a message.
type VoteDirection int

const (
	VoteNone VoteDirection = iota
	VoteUp
	VoteDown
)

func (d VoteDirection) String() string {
	switch d {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	default:
		return "none"
	}
}

// ParseVoteDirection maps the wire representation back to a direction.
func ParseVoteDirection(s string) VoteDirection {
	switch s {
	case "up":
		return VoteUp
	case "down":
		return VoteDown
	default:
		return VoteNone
	}
}
