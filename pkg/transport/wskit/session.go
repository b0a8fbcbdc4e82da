package wskit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/fgrzl/claims"
	"github.com/google/uuid"
)

const (
	ScopeAllNodes = "gridkit::*"
	ScopePrefix   = "gridkit::"
)

func NewClientMuxerSession() MuxerSession {
	return &muxerSession{allowAll: true}
}

// NewServerMuxerSession derives node access from the principal's scopes. A
// principal needs either the wildcard scope or an explicit node scope.
func NewServerMuxerSession(principal claims.Principal) (MuxerSession, error) {
	allowedNodes := make(map[uuid.UUID]struct{})

	for _, scope := range principal.Scopes() {
		if scope == ScopeAllNodes {
			return &muxerSession{allowAll: true}, nil
		}

		if strings.HasPrefix(scope, ScopePrefix) {
			raw := strings.TrimPrefix(scope, ScopePrefix)
			id, err := uuid.Parse(raw)
			if err != nil {
				slog.Warn("ignoring invalid node scope", "scope", scope, "error", err)
				continue
			}
			allowedNodes[id] = struct{}{}
		}
	}

	if len(allowedNodes) == 0 {
		return nil, fmt.Errorf("invalid scope: expected %q or %q{nodeID}", ScopeAllNodes, ScopePrefix)
	}

	return &muxerSession{
		allowAll:     false,
		allowedNodes: allowedNodes,
	}, nil
}

type MuxerSession interface {
	CanAccessNode(nodeID uuid.UUID) bool
	AllowedNodes() []uuid.UUID
	AllowAllNodes() bool
}

type muxerSession struct {
	allowAll     bool
	allowedNodes map[uuid.UUID]struct{}
}

func (s *muxerSession) CanAccessNode(nodeID uuid.UUID) bool {
	if s.allowAll {
		return true
	}
	_, ok := s.allowedNodes[nodeID]
	return ok
}

func (s *muxerSession) AllowedNodes() []uuid.UUID {
	if s.allowAll {
		return nil // semantically means all
	}
	ids := make([]uuid.UUID, 0, len(s.allowedNodes))
	for id := range s.allowedNodes {
		ids = append(ids, id)
	}
	return ids
}

func (s *muxerSession) AllowAllNodes() bool {
	return s.allowAll
}
