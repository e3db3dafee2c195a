package retrieval

import "github.com/jarkius/agent-orchestra/pkg/store"

// Accessible is satisfied by any entity carrying the owner/visibility ACL
// fields shared by Session and Learning (spec §3, §4.3.7).
type Accessible interface {
	OwnerAgentID() *int64
	EntityVisibility() store.Visibility
}

// CanAccess implements spec §4.3.7's access control rule:
//   - orchestrator (agent_id = nil) sees all;
//   - owner sees own;
//   - entities owned by the orchestrator are public by default;
//   - otherwise allow iff visibility ∈ {shared, public}.
func CanAccess(callerAgentID *int64, e Accessible) bool {
	if callerAgentID == nil {
		return true
	}
	owner := e.OwnerAgentID()
	if owner != nil && *owner == *callerAgentID {
		return true
	}
	if owner == nil {
		return true
	}
	switch e.EntityVisibility() {
	case store.VisibilityShared, store.VisibilityPublic:
		return true
	default:
		return false
	}
}

// sessionAccessible and learningAccessible adapt store.Session/Learning to
// Accessible without adding ACL methods to the Store's plain data types.

type sessionAccessible store.Session

func (s sessionAccessible) OwnerAgentID() *int64                { return s.AgentID }
func (s sessionAccessible) EntityVisibility() store.Visibility { return s.Visibility }

type learningAccessible store.Learning

func (l learningAccessible) OwnerAgentID() *int64                { return l.AgentID }
func (l learningAccessible) EntityVisibility() store.Visibility { return l.Visibility }

// CanAccessSession and CanAccessLearning are the concrete call sites used
// by the recall dispatcher.
func CanAccessSession(callerAgentID *int64, s *store.Session) bool {
	return CanAccess(callerAgentID, sessionAccessible(*s))
}

func CanAccessLearning(callerAgentID *int64, l *store.Learning) bool {
	return CanAccess(callerAgentID, learningAccessible(*l))
}
