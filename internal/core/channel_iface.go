package core

import (
	"github.com/dkeye/huddle/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
	Audio    bool          `json:"audio"`
	Video    bool          `json:"video"`
	Paused   bool          `json:"paused"`

	Published []domain.TrackKind `json:"published,omitempty"`
}

// ChannelService is the core-facing API of a channel.
// It owns the membership set but never touches transport resources.
type ChannelService interface {
	Channel() *domain.Channel
	MemberCount() int
	MembersSnapshot() []MemberDTO
	HasMember(sid SessionID) bool

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID) bool
	Broadcast(from SessionID, data Frame) PublishResult
}

type ChannelInfo struct {
	Workspace   domain.WorkspaceID `json:"workspace"`
	Name        domain.ChannelName `json:"name"`
	MemberCount int                `json:"member_count"`
}

type ChannelManager interface {
	GetOrCreate(key domain.ChannelKey) ChannelService
	Get(key domain.ChannelKey) (ChannelService, bool)
	List(ws domain.WorkspaceID) []ChannelInfo
	Stop(key domain.ChannelKey)
}
