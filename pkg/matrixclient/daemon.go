package matrixclient

import (
	"context"
	"log/slog"

	"github.com/jarkius/agent-orchestra/pkg/config"
	"github.com/jarkius/agent-orchestra/pkg/retrieval"
	"github.com/jarkius/agent-orchestra/pkg/store"
)

// Daemon is the Matrix Client/Daemon process (spec §4.6, §5): four
// concurrent logical tasks — hub socket reader, hub socket writer (the
// outbound queue sweep), retry sweeper, and local SSE/event stream
// producer — all sharing the Store.
type Daemon struct {
	cfg   config.DaemonConfig
	store *store.Store
	log   *slog.Logger

	conn     *hubConn
	inbound  *inboundRouter
	outbound *outboundQueue
	api      *httpAPI
}

// New constructs a Daemon bound to st and configured by cfg.
func New(st *store.Store, cfg config.DaemonConfig) *Daemon {
	inbound := newInboundRouter(st)
	conn := newHubConn(cfg, inbound.Handle)
	outbound := newOutboundQueue(st, conn, cfg)
	api := newHTTPAPI(conn, inbound, outbound, cfg)

	return &Daemon{
		cfg:      cfg,
		store:    st,
		log:      slog.With("component", "matrixclient.daemon"),
		conn:     conn,
		inbound:  inbound,
		outbound: outbound,
		api:      api,
	}
}

// Enqueue exposes the outbound queue's producer-facing entry point to the
// rest of the process (e.g. an orchestrator sending a mission result).
func (d *Daemon) Enqueue(ctx context.Context, toMatrix *string, content string, msgType store.MatrixMessageType) (*store.MatrixMessage, error) {
	return d.outbound.Enqueue(ctx, toMatrix, content, msgType)
}

// WithEngine wires a hybrid retrieval engine into the daemon's local HTTP
// surface (GET /recall, GET /metrics) and subscribes it to the Store's
// learning-change hook so its result cache invalidates on writes (spec
// §4.3.4).
func (d *Daemon) WithEngine(e *retrieval.Engine) *Daemon {
	d.api.WithEngine(e)
	d.store.RegisterLearningChangeHook(e.OnLearningChanged)
	return d
}

// Run starts all four concurrent logical tasks and blocks serving the
// local HTTP API until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context, httpAddr string) error {
	d.outbound.RecoverOnStartup(ctx)

	go d.conn.Run(ctx)
	go d.outbound.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.api.Run(httpAddr)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
