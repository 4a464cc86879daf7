package audit

import (
	"time"

	"agentledger/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with contractual significance: the
	// registry's append-only history depends on these being tamper-evident.
	// Examples: agent registration, job resolution, fee withdrawal.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics.
	// Examples: verifier set changes, pause toggles, rejected mutations.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	// Examples: job submission, feedback, validation requests.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// Actor is the principal that performed the action.
	Actor domain.Principal
	// AgentID is the identity the action touched; zero for protocol-level
	// events (pause, fee changes, verifier management).
	AgentID domain.AgentID
	// JobID is set for job-record events; zero otherwise.
	JobID  domain.JobID
	Action string
	Reason string
	// ProofHash carries the verifier's attestation digest on verification
	// events, hex-encoded.
	ProofHash string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
}

type AuditEvent string

const (
	// Registration events
	EventAgentRegistered  AuditEvent = "agent_registered"
	EventIdentityUpdated  AuditEvent = "identity_metadata_updated"
	EventIdentityTransfer AuditEvent = "identity_transferred"

	// Job record events
	EventJobSubmitted AuditEvent = "job_submitted"
	EventJobVerified  AuditEvent = "job_verified"
	EventJobDisputed  AuditEvent = "job_disputed"
	EventJobReplayed  AuditEvent = "job_replayed"

	// Feedback events
	EventFeedbackGiven   AuditEvent = "feedback_given"
	EventFeedbackRevoked AuditEvent = "feedback_revoked"

	// Verifier set events
	EventVerifierAdded   AuditEvent = "verifier_added"
	EventVerifierRemoved AuditEvent = "verifier_removed"

	// Validation sub-protocol events
	EventValidationRequested AuditEvent = "validation_requested"
	EventValidationResponded AuditEvent = "validation_responded"

	// Protocol administration events
	EventProtocolPaused  AuditEvent = "protocol_paused"
	EventProtocolResumed AuditEvent = "protocol_resumed"
	EventFeeUpdated      AuditEvent = "verification_fee_updated"
	EventFeesWithdrawn   AuditEvent = "fees_withdrawn"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - the registry's externally observable transitions
	EventAgentRegistered: CategoryCompliance,
	EventJobVerified:     CategoryCompliance,
	EventJobDisputed:     CategoryCompliance,
	EventJobReplayed:     CategoryCompliance,
	EventFeesWithdrawn:   CategoryCompliance,

	// Security events - privileged set and switch changes
	EventVerifierAdded:    CategorySecurity,
	EventVerifierRemoved:  CategorySecurity,
	EventProtocolPaused:   CategorySecurity,
	EventProtocolResumed:  CategorySecurity,
	EventFeeUpdated:       CategorySecurity,
	EventIdentityTransfer: CategorySecurity,

	// Operations events - routine activity
	EventJobSubmitted:        CategoryOperations,
	EventFeedbackGiven:       CategoryOperations,
	EventFeedbackRevoked:     CategoryOperations,
	EventIdentityUpdated:     CategoryOperations,
	EventValidationRequested: CategoryOperations,
	EventValidationResponded: CategoryOperations,
}

// CategoryOf returns the category for an event, defaulting to operations.
func CategoryOf(event AuditEvent) EventCategory {
	if c, ok := eventCategories[event]; ok {
		return c
	}
	return CategoryOperations
}
