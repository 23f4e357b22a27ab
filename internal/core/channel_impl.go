package core

import (
	"sort"
	"sync"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// channelImpl is a threadsafe in-memory channel.
// It never closes adapter-owned resources.
type channelImpl struct {
	channel *domain.Channel
	mu      sync.RWMutex
	bySID   map[SessionID]MemberSession
	byUser  map[domain.UserID]SessionID
}

func NewChannelService(ch *domain.Channel) ChannelService {
	return &channelImpl{
		channel: ch,
		bySID:   make(map[SessionID]MemberSession),
		byUser:  make(map[domain.UserID]SessionID),
	}
}

func (c *channelImpl) Channel() *domain.Channel { return c.channel }

func (c *channelImpl) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bySID)
}

func (c *channelImpl) HasMember(sid SessionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.bySID[sid]
	return ok
}

func (c *channelImpl) AddMember(sid SessionID, ms MemberSession) {
	u := ms.Meta().User.ID
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bySID[sid] = ms
	c.byUser[u] = sid
	log.Info().Str("module", "core.channel").Str("channel", c.channel.Key.String()).Str("sid", string(sid)).Str("user", string(u)).Msg("member added")
}

func (c *channelImpl) RemoveMember(sid SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms, ok := c.bySID[sid]
	if !ok {
		return false
	}
	delete(c.byUser, ms.Meta().User.ID)
	delete(c.bySID, sid)
	log.Info().Str("module", "core.channel").Str("channel", c.channel.Key.String()).Str("sid", string(sid)).Msg("member removed")
	return true
}

func (c *channelImpl) Broadcast(from SessionID, data Frame) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range c.bySID {
		if sid == from {
			continue
		}
		sig := m.Signal()
		if sig == nil {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.channel").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (c *channelImpl) MembersSnapshot() []MemberDTO {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MemberDTO, 0, len(c.bySID))
	for _, ms := range c.bySID {
		meta := ms.Meta()
		flags := meta.MediaSnapshot()
		out = append(out, MemberDTO{
			ID:       meta.User.ID,
			Username: meta.User.Username,
			Role:     meta.Role,
			Audio:    flags[domain.TrackAudio],
			Video:    flags[domain.TrackVideo],
			Paused:   meta.Paused(),

			Published: meta.Published(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
