package lagcomp

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// OutcomeKind classifies a verified shot against the client's claim.
type OutcomeKind int

const (
	// ConfirmedMiss: neither side registered a hit.
	ConfirmedMiss OutcomeKind = iota
	// ConfirmedHit: the server's rewound trace hit the victim the client claimed.
	ConfirmedHit
	// ClientOnlyHit: the client claimed a hit the server did not reproduce,
	// either no hit at all or a different victim.
	ClientOnlyHit
	// ServerOnlyHit: the server hit a victim the client did not claim.
	ServerOnlyHit
)

var outcomeNames = map[OutcomeKind]string{
	ConfirmedMiss: "confirmed_miss",
	ConfirmedHit:  "confirmed_hit",
	ClientOnlyHit: "client_only_hit",
	ServerOnlyHit: "server_only_hit",
}

func (k OutcomeKind) String() string {
	if name, ok := outcomeNames[k]; ok {
		return name
	}
	return "unknown"
}

// DamagePolicy decides which reconciled outcomes deal damage.
type DamagePolicy int

const (
	// DamageServerAuthoritative applies damage only for hits the server
	// reproduced: confirmed hits and server-only hits.
	DamageServerAuthoritative DamagePolicy = iota
	// DamageTrustClient additionally honours client-only hits on the
	// claimed victim.
	DamageTrustClient
)

// Reconciliation is the verified outcome of one shot. It is handed to the
// caller for damage application and to the Sink for diagnostics.
type Reconciliation struct {
	ShotID  uuid.UUID
	Kind    OutcomeKind
	Shooter EntityID

	// Target is the victim damage applies to: the server's victim for
	// confirmed and server-only hits, the claimed victim for client-only
	// hits, NoEntity for misses.
	Target        EntityID
	ServerVictim  EntityID
	ClaimedVictim EntityID

	// RewoundPose is Target's reconstructed pose at TargetTime.
	RewoundPose Pose

	// Hit is the verification trace result; Traced reports whether the
	// trace hit anything at all, world geometry included.
	Hit    TraceHit
	Traced bool

	Start, End mgl64.Vec3

	ServerTime            float64
	TargetTime            float64
	PredictionTime        float64 // Rewind depth actually used
	ServerPredictionTime  float64 // Depth derived from the tracked RTT
	ClaimedPredictionTime float64 // Depth the client sent, diagnostic only

	// ClaimDiscrepancy is the distance between where the client saw the
	// claimed victim and its rewound pose; -1 when the client sent no
	// position. ClaimedSampleTime is the ServerTime of the recorded sample
	// closest to the client's position, 0 when unknown.
	ClaimDiscrepancy  float64
	ClaimedSampleTime float64

	ApplyDamage bool
}

// Consistent reports whether client and server agree.
func (r Reconciliation) Consistent() bool {
	return r.Kind == ConfirmedHit || r.Kind == ConfirmedMiss
}

// Classify reconciles a server victim against a claimed victim. It returns
// the outcome, the entity damage would apply to, and whether policy allows
// applying it.
func Classify(claimed, victim EntityID, policy DamagePolicy) (OutcomeKind, EntityID, bool) {
	switch {
	case claimed != NoEntity && claimed == victim:
		return ConfirmedHit, victim, true
	case claimed != NoEntity:
		return ClientOnlyHit, claimed, policy == DamageTrustClient
	case victim != NoEntity:
		return ServerOnlyHit, victim, true
	default:
		return ConfirmedMiss, NoEntity, false
	}
}
