package matrixclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jarkius/agent-orchestra/pkg/matrixhub"
	"github.com/jarkius/agent-orchestra/pkg/store"
)

// inboundRouter records every received message frame and fans it out to
// local subscribers — an SSE stream and/or in-process callback handlers
// (spec §4.6 "Inbound").
type inboundRouter struct {
	store *store.Store
	log   *slog.Logger

	mu   sync.Mutex
	subs map[string]chan matrixhub.Frame
}

func newInboundRouter(st *store.Store) *inboundRouter {
	return &inboundRouter{
		store: st,
		log:   slog.With("component", "matrixclient.inbound"),
		subs:  map[string]chan matrixhub.Frame{},
	}
}

// Handle is wired as hubConn's inbound callback: presence frames are
// logged, message frames are persisted (dedup by id) and fanned out.
func (r *inboundRouter) Handle(f matrixhub.Frame) {
	switch f.Type {
	case matrixhub.FramePresence:
		r.log.Debug("presence update", "matrix_id", f.MatrixID, "status", f.Status)
	case matrixhub.FrameMessage:
		r.handleMessage(f)
	case matrixhub.FrameError:
		r.log.Warn("hub reported error", "code", f.Code, "message", f.Message)
	}
}

func (r *inboundRouter) handleMessage(f matrixhub.Frame) {
	ctx := context.Background()
	seq := sequenceFromMetadata(f.Metadata)

	var to *string
	if f.To != "" {
		to = &f.To
	}

	// id is deterministic from (from_matrix, sequence_number), the dedup
	// key spec §4.6 names, so hub-side retransmission never double-inserts.
	id := fmt.Sprintf("%s:%d", f.From, seq)
	if err := r.store.InsertInboundMessage(ctx, id, f.From, to, f.Content, store.MessageDirect, seq); err != nil {
		r.log.Error("insert inbound message failed", "from", f.From, "error", err)
	}

	r.fanout(f)
}

func sequenceFromMetadata(md map[string]any) int64 {
	if md == nil {
		return 0
	}
	switch v := md["sequence_number"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

// Subscribe registers a new SSE subscriber, returning its channel and an
// id to later Unsubscribe with.
func (r *inboundRouter) Subscribe() (string, <-chan matrixhub.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	ch := make(chan matrixhub.Frame, 32)
	r.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel.
func (r *inboundRouter) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

// fanout delivers f to every current subscriber without blocking on a slow
// consumer (a full channel drops the frame rather than stalling the
// inbound reader).
func (r *inboundRouter) fanout(f matrixhub.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ch := range r.subs {
		select {
		case ch <- f:
		default:
			r.log.Warn("sse subscriber slow, dropping frame", "subscriber_id", id)
		}
	}
}
