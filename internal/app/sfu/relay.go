package sfu

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// RelayKey identifies one published track: a publisher session and a kind.
type RelayKey struct {
	SID  core.SessionID
	Kind domain.TrackKind
}

type Relay struct {
	Src *webrtc.TrackRemote

	read  func() (*rtp.Packet, error)
	muted atomic.Bool

	mu        sync.RWMutex
	outTracks map[core.SessionID]*OutTrack

	cancel context.CancelFunc
}

func NewRelay(src *webrtc.TrackRemote, cancel context.CancelFunc) *Relay {
	r := newRelay(func() (*rtp.Packet, error) {
		pkt, _, err := src.ReadRTP()
		return pkt, err
	}, cancel)
	r.Src = src
	return r
}

func newRelay(read func() (*rtp.Packet, error), cancel context.CancelFunc) *Relay {
	return &Relay{
		read:      read,
		outTracks: make(map[core.SessionID]*OutTrack),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, err := r.read()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended, stopping")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	dirty := make([]core.SessionID, 0)
	for dstSID, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dstSID)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Error().
					Err(err).
					Str("dst_sid", string(dstSID)).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, dstSID)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []core.SessionID) {
	r.mu.Lock()
	removed := make([]*OutTrack, 0, len(dirty))
	for _, sid := range dirty {
		if ot, ok := r.outTracks[sid]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, sid)
			removed = append(removed, ot)
		}
	}
	r.mu.Unlock()
	for _, ot := range removed {
		if ot.onRemove != nil {
			ot.onRemove()
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	dirty := make([]core.SessionID, 0, len(r.outTracks))
	for sid, ot := range r.outTracks {
		ot.MarkDelete()
		dirty = append(dirty, sid)
	}
	r.mu.Unlock()
	r.cleanupDeleted(dirty)
}

// AddOutTrack attaches dst; a muted relay hands out muted tracks.
func (r *Relay) AddOutTrack(dst core.SessionID, ot *OutTrack) {
	if r.muted.Load() {
		ot.MarkMuted()
	}
	r.mu.Lock()
	old, ok := r.outTracks[dst]
	r.outTracks[dst] = ot
	r.mu.Unlock()
	if ok && old != ot {
		old.MarkDelete()
		if old.onRemove != nil {
			old.onRemove()
		}
	}
}

func (r *Relay) outTrack(dst core.SessionID) (*OutTrack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ot, ok := r.outTracks[dst]
	return ot, ok
}

// SetMuted pauses or resumes forwarding to every subscriber.
func (r *Relay) SetMuted(muted bool) {
	r.muted.Store(muted)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ot := range r.outTracks {
		if muted {
			ot.MarkMuted()
		} else {
			ot.MarkOk()
		}
	}
}

func (r *Relay) Muted() bool { return r.muted.Load() }

func (r *Relay) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
