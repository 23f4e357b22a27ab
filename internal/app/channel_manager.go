package app

import (
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

var ErrChannelNotFound = errors.New("channel not found")

type ChannelManagerImpl struct {
	mu       sync.RWMutex
	channels map[domain.ChannelKey]core.ChannelService
}

func NewChannelManager() core.ChannelManager {
	return &ChannelManagerImpl{channels: make(map[domain.ChannelKey]core.ChannelService)}
}

func (f *ChannelManagerImpl) GetOrCreate(key domain.ChannelKey) core.ChannelService {
	f.mu.RLock()
	ch, ok := f.channels[key]
	f.mu.RUnlock()
	if ok {
		return ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok = f.channels[key]; ok {
		return ch
	}
	ch = core.NewChannelService(&domain.Channel{Key: key})
	f.channels[key] = ch
	return ch
}

func (f *ChannelManagerImpl) Get(key domain.ChannelKey) (core.ChannelService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ch, ok := f.channels[key]
	return ch, ok
}

// List reports the channels of one workspace, sorted by name.
func (f *ChannelManagerImpl) List(ws domain.WorkspaceID) []core.ChannelInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.ChannelInfo, 0)
	for key, ch := range f.channels {
		if key.Workspace != ws {
			continue
		}
		out = append(out, core.ChannelInfo{Workspace: key.Workspace, Name: key.Name, MemberCount: ch.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *ChannelManagerImpl) Stop(key domain.ChannelKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, key)
}
