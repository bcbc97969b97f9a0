// Package types holds the data model shared by every core component:
// records, peers, mesh messages and DTN bundles. Record bodies are
// opaque to the core — domain modules own field semantics — but the
// envelope around them (id, creator, timestamps, type tag) is part of
// the core contract.
package types

import "time"

// RecordID is a stable, globally unique, non-sequential identifier.
// Distinct from PeerID/MessageID/BundleID so the type system forbids
// mixing them (Design Notes: "string-typed identifiers everywhere").
type RecordID string

// PeerID is a self-certifying identifier derived from a public key,
// printable as "<method-tag>:<base58-encoded-public-key>".
type PeerID string

// MessageID is 16 random bytes, printed as a UUID-shaped string.
type MessageID string

// BundleID identifies a DTN bundle.
type BundleID string

// RecordType enumerates the fixed set of record kinds the core knows
// about. The core never interprets fields beyond this tag; everything
// else is domain business logic (explicit non-goal, spec.md §1).
type RecordType string

const (
	RecordResourceOffer    RecordType = "resource_offer"
	RecordNeed             RecordType = "need"
	RecordSkillOffer       RecordType = "skill_offer"
	RecordBulletinPost     RecordType = "bulletin_post"
	RecordEvent            RecordType = "event"
	RecordHelpSession      RecordType = "help_session"
	RecordCareCheckIn      RecordType = "care_check_in"
	RecordGratitude        RecordType = "gratitude_expression"
	RecordCommunityMeta    RecordType = "community_metadata"
	RecordExtension        RecordType = "extension"
)

// FieldValue is a scalar, sequence, or mapping — the three shapes
// spec.md §3 allows inside a record body. Concrete CRDT semantics for
// each shape live in pkg/store (hlc.go, orset.go, rga.go).
type FieldValue struct {
	Scalar   *Scalar           `json:"scalar,omitempty"`
	Sequence []Scalar          `json:"sequence,omitempty"`
	Mapping  map[string]Scalar `json:"mapping,omitempty"`
}

// Scalar is the set of primitive types a field can hold.
type Scalar struct {
	Str  *string  `json:"s,omitempty"`
	Num  *float64 `json:"n,omitempty"`
	Bool *bool    `json:"b,omitempty"`
}

func StrScalar(s string) Scalar    { return Scalar{Str: &s} }
func NumScalar(n float64) Scalar   { return Scalar{Num: &n} }
func BoolScalar(b bool) Scalar     { return Scalar{Bool: &b} }

// RecordKey identifies a record within the document by (type, id) —
// the addressing scheme used throughout §4.1's contract and the
// change-feed event payloads.
type RecordKey struct {
	Type RecordType
	ID   RecordID
}

// RecordMeta is the envelope every record carries regardless of type.
type RecordMeta struct {
	ID        RecordID
	Type      RecordType
	Creator   PeerID
	CreatedAt time.Time
	Tombstone bool // soft-delete marker; records are never hard-deleted
}

// Peer is a node known to the mesh manager.
type Peer struct {
	ID            PeerID
	Transports    []TransportKind
	LastSeen      time.Time
	DisplayName   string
	SignalStrength int // meaningful only for radio transports; 0 otherwise
	Trusted       bool // true iff a verified public key is on file
	Quarantined   bool
}

// TransportKind names the physical medium a peer or message travels over.
type TransportKind string

const (
	TransportBLE      TransportKind = "ble"
	TransportLocalNet TransportKind = "local-net"
	TransportLoRa     TransportKind = "lora"
)

// MessageType enumerates mesh message kinds (spec.md §3).
type MessageType byte

const (
	MessageAnnounce MessageType = iota + 1
	MessageSyncRequest
	MessageSyncResponse
	MessageData
	MessageBundle
	MessagePing
	MessagePong
)

// Message is the abstract mesh-message structure adapters translate
// to/from medium-specific frames and pkg/wire serializes bit-exact.
type Message struct {
	ID          MessageID
	Type        MessageType
	Source      PeerID
	Destination PeerID // empty ⇒ broadcast
	CreatedAt   time.Time
	TTL         uint8
	Payload     []byte
}

// Priority is the DTN bundle scheduling priority; ordering matters —
// iota values are compared directly by the scheduler and evictor.
type Priority byte

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Bundle is an immutable (once queued) store-carry-forward envelope.
type Bundle struct {
	ID          BundleID
	Source      PeerID
	Destination PeerID // empty ⇒ epidemic
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Priority    Priority
	HopSet      map[PeerID]struct{}
	Payload     []byte
}

// Epidemic reports whether the bundle has no single destination.
func (b *Bundle) Epidemic() bool { return b.Destination == "" }

// Expired reports whether the bundle has passed its expiry as of now.
func (b *Bundle) Expired(now time.Time) bool { return now.After(b.ExpiresAt) }

// Seen reports whether peer has already handled this bundle.
func (b *Bundle) Seen(peer PeerID) bool {
	_, ok := b.HopSet[peer]
	return ok
}

// ChangeEvent is what the document store's subscribe callback receives
// after a successful commit: the set of (type, id) pairs touched.
type ChangeEvent struct {
	Keys      []RecordKey
	CommitSeq uint64
}
