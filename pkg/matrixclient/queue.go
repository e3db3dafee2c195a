package matrixclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/matrixhub"
	"github.com/jarkius/agent-orchestra/pkg/store"
)

// outboundQueue drains the Store's two-phase-commit outbound message log
// over the hub connection (spec §4.6). The producer-facing enqueue is
// synchronous to the Store; sending is entirely asynchronous here so a
// disconnected hub never blocks a caller (spec §4.6 "Failure semantics").
type outboundQueue struct {
	store *store.Store
	conn  *hubConn
	cfg   config.DaemonConfig
	log   *slog.Logger
}

func newOutboundQueue(st *store.Store, conn *hubConn, cfg config.DaemonConfig) *outboundQueue {
	return &outboundQueue{store: st, conn: conn, cfg: cfg, log: slog.With("component", "matrixclient.queue")}
}

// RecoverOnStartup resurrects rows stuck in "sending" from a previous
// crash (spec §4.6 "Crash recovery").
func (q *outboundQueue) RecoverOnStartup(ctx context.Context) {
	n, err := q.store.ResurrectStuckSends(ctx)
	if err != nil {
		q.log.Error("resurrect stuck sends failed", "error", err)
		return
	}
	if n > 0 {
		q.log.Warn("resurrected stuck outbound sends", "count", n)
	}
}

// Run sweeps due outbound messages at RetrySweepPeriod until ctx is
// cancelled (spec §4.6 "Retry loop").
func (q *outboundQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.RetrySweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweepOnce(ctx)
		}
	}
}

func (q *outboundQueue) sweepOnce(ctx context.Context) {
	due, err := q.store.DueOutboundMessages(ctx, 50)
	if err != nil {
		q.log.Error("due outbound query failed", "error", err)
		return
	}
	for _, m := range due {
		q.attemptSend(ctx, m)
	}
}

// attemptSend implements spec §4.6 steps 2-4: pending → sending → sent (or
// back to pending/failed on transmit failure).
func (q *outboundQueue) attemptSend(ctx context.Context, m *store.MatrixMessage) {
	if !q.conn.IsConnected() {
		return // hub unreachable: stays pending, degrades to queued-only mode
	}

	if m.Status == store.MessagePending {
		if err := q.store.TransitionMessageSending(ctx, m.ID); err != nil {
			q.log.Warn("transition to sending failed", "message_id", m.ID, "error", err)
			return
		}
	}

	frame := matrixhub.Frame{
		Type:      matrixhub.FrameMessage,
		From:      m.FromMatrix,
		Content:   m.Content,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"sequence_number": m.SequenceNumber},
	}
	if m.ToMatrix != nil {
		frame.To = *m.ToMatrix
	}

	if err := q.conn.send(frame); err != nil {
		if ferr := q.store.TransitionMessageFailedSend(ctx, m.ID, err.Error(), q.cfg.BaseBackoff, q.cfg.MaxBackoff); ferr != nil {
			q.log.Error("transition to failed-send bookkeeping failed", "message_id", m.ID, "error", ferr)
		}
		return
	}

	if err := q.store.TransitionMessageSent(ctx, m.ID); err != nil {
		q.log.Warn("transition to sent failed", "message_id", m.ID, "error", err)
	}
}

// Enqueue is the producer-facing entry point: synchronous insert into the
// Store, asynchronous send handled by the sweep loop above.
func (q *outboundQueue) Enqueue(ctx context.Context, toMatrix *string, content string, msgType store.MatrixMessageType) (*store.MatrixMessage, error) {
	return q.store.EnqueueMessage(ctx, q.cfg.MatrixID, toMatrix, content, msgType, q.cfg.MaxRetries)
}
