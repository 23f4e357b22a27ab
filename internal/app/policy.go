package app

import "github.com/dkeye/huddle/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(ch core.ChannelService, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks any member whose signal queue is full.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.ChannelService, core.MemberSession) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops the frame for the slow member and keeps it in the channel.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(core.ChannelService, core.MemberSession) BackpressureAction {
	return DropFrame
}

// PolicyFor maps a configured policy name to a Policy; unknown names kick.
func PolicyFor(name string) Policy {
	if name == "drop" {
		return TolerantPolicy{}
	}
	return SimplePolicy{}
}
