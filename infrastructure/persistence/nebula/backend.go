// Package nebula implements the graph backend contract on a shared
// NebulaGraph cluster. Every knowledge base maps to its own space,
// provisioned lazily on first access; sessions are pool connections
// pinned to the target space.
package nebula

import (
	"context"
	"fmt"
	"sync"
	"time"

	nebulago "github.com/vesoft-inc/nebula-go/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"memexia-backend/application/ports"
	apperrors "memexia-backend/pkg/errors"
)

// readyPollInterval is the wait between provisioning readiness probes.
// Space and schema creation propagate asynchronously through the
// cluster; a space is usable only once USE / DESCRIBE succeed.
const readyPollInterval = 500 * time.Millisecond

// Config carries the cluster connection parameters.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	PoolSize     int
	Timeout      time.Duration
	ReadyTimeout time.Duration
}

// Backend is the distributed, space-per-tenant graph backend. One
// connection pool is shared process-wide; provisioned spaces are
// remembered so later sessions skip provisioning entirely.
type Backend struct {
	cfg    Config
	logger *zap.Logger

	mu                sync.Mutex
	pool              *nebulago.ConnectionPool
	initializedSpaces map[string]struct{}
	closed            bool

	group singleflight.Group
}

// New creates a Nebula backend. Call Initialize before use.
func New(cfg Config, logger *zap.Logger) *Backend {
	return &Backend{
		cfg:               cfg,
		logger:            logger,
		initializedSpaces: make(map[string]struct{}),
	}
}

// Initialize creates the shared connection pool. Idempotent; fails if
// the cluster cannot be reached.
func (b *Backend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return apperrors.Unavailable("nebula backend is closed")
	}
	if b.pool != nil {
		return nil
	}

	poolConfig := nebulago.GetDefaultConf()
	poolConfig.MaxConnPoolSize = b.cfg.PoolSize
	poolConfig.TimeOut = b.cfg.Timeout

	hosts := []nebulago.HostAddress{{Host: b.cfg.Host, Port: b.cfg.Port}}
	pool, err := nebulago.NewConnectionPool(hosts, poolConfig, nebulago.DefaultLogger{})
	if err != nil {
		return apperrors.Provisioning(
			fmt.Sprintf("initialize connection pool for %s:%d", b.cfg.Host, b.cfg.Port), err)
	}

	b.pool = pool
	b.logger.Info("nebula connection pool initialized",
		zap.String("host", b.cfg.Host), zap.Int("port", b.cfg.Port))
	return nil
}

// Close closes the connection pool and forgets all provisioned spaces.
// Safe to call multiple times.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
	b.initializedSpaces = make(map[string]struct{})
	b.closed = true

	b.logger.Info("nebula connection pool closed")
	return nil
}

// WithSession provisions the knowledge base's space if needed, checks
// out a connection pinned to it, runs fn, and releases the connection
// on return regardless of outcome.
func (b *Backend) WithSession(ctx context.Context, kbID string, fn func(ports.Session) error) error {
	if err := b.ensureSpace(ctx, kbID); err != nil {
		return err
	}

	spaceName := spaceNameForKB(kbID)
	sess, err := b.getSession()
	if err != nil {
		return err
	}
	defer sess.Release()

	if err := execute(sess, useSpaceStmt(spaceName)); err != nil {
		return err
	}

	return fn(&session{sess: sess, kbID: kbID, logger: b.logger})
}

// DeleteKBData drops the knowledge base's space and evicts it from the
// provisioned-space cache. Reports whether the space existed.
func (b *Backend) DeleteKBData(ctx context.Context, kbID string) (bool, error) {
	spaceName := spaceNameForKB(kbID)

	sess, err := b.getSession()
	if err != nil {
		return false, err
	}
	defer sess.Release()

	// The cache entry goes away regardless of whether the drop
	// succeeds, so a later access re-provisions from scratch.
	b.mu.Lock()
	delete(b.initializedSpaces, spaceName)
	b.mu.Unlock()

	existed := executeQuiet(sess, describeSpaceStmt(spaceName))

	if err := execute(sess, dropSpaceStmt(spaceName)); err != nil {
		return false, err
	}

	if existed {
		b.logger.Info("dropped space", zap.String("space", spaceName))
	}
	return existed, nil
}

// ensureSpace lazily provisions the space and its schema, then records
// it so subsequent sessions skip provisioning. Concurrent first
// accesses collapse into one provisioning run.
func (b *Backend) ensureSpace(ctx context.Context, kbID string) error {
	spaceName := spaceNameForKB(kbID)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return apperrors.Unavailable("nebula backend is closed")
	}
	if _, ok := b.initializedSpaces[spaceName]; ok {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	_, err, _ := b.group.Do(spaceName, func() (interface{}, error) {
		b.mu.Lock()
		if _, ok := b.initializedSpaces[spaceName]; ok {
			b.mu.Unlock()
			return nil, nil
		}
		b.mu.Unlock()

		if err := b.provisionSpace(ctx, spaceName); err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.initializedSpaces[spaceName] = struct{}{}
		b.mu.Unlock()

		b.logger.Info("space provisioned", zap.String("space", spaceName))
		return nil, nil
	})
	return err
}

// provisionSpace creates the space and schema, polling after each
// asynchronous step until the cluster reports it usable. Deadline
// expiry is a fatal provisioning error.
func (b *Backend) provisionSpace(ctx context.Context, spaceName string) error {
	sess, err := b.getSession()
	if err != nil {
		return err
	}
	defer sess.Release()

	if err := execute(sess, createSpaceStmt(spaceName)); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("create space %s", spaceName), err)
	}

	deadline := time.Now().Add(b.cfg.ReadyTimeout)

	// Space creation propagates asynchronously; poll USE until the
	// space is routable.
	if err := pollUntilReady(ctx, deadline, func() bool {
		return executeQuiet(sess, useSpaceStmt(spaceName))
	}); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("space %s not ready", spaceName), err)
	}

	if err := execute(sess, createTagStmt()); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("create Node tag in %s", spaceName), err)
	}
	if err := execute(sess, createEdgeTypeStmt()); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("create RELATED edge type in %s", spaceName), err)
	}

	// Schema statements propagate too; poll until the tag is visible.
	if err := pollUntilReady(ctx, deadline, func() bool {
		return executeQuiet(sess, describeTagStmt())
	}); err != nil {
		return apperrors.Provisioning(fmt.Sprintf("schema in %s not ready", spaceName), err)
	}

	return nil
}

func (b *Backend) getSession() (*nebulago.Session, error) {
	b.mu.Lock()
	pool := b.pool
	closed := b.closed
	b.mu.Unlock()

	if closed || pool == nil {
		return nil, apperrors.Unavailable("nebula backend is not initialized")
	}

	sess, err := pool.GetSession(b.cfg.User, b.cfg.Password)
	if err != nil {
		return nil, apperrors.Database("acquire session from pool", err)
	}
	return sess, nil
}

// execute runs a statement and converts a failed result into an error.
func execute(sess *nebulago.Session, stmt string) error {
	rs, err := sess.Execute(stmt)
	if err != nil {
		return apperrors.Database("execute statement", err)
	}
	if !rs.IsSucceed() {
		return apperrors.Database(fmt.Sprintf("statement failed: %s", rs.GetErrorMsg()), nil)
	}
	return nil
}

// executeQuiet runs a statement and reports only whether it succeeded.
// Used for readiness probes where failure is expected.
func executeQuiet(sess *nebulago.Session, stmt string) bool {
	rs, err := sess.Execute(stmt)
	return err == nil && rs.IsSucceed()
}

// pollUntilReady retries probe until it succeeds, the deadline passes,
// or the context is cancelled.
func pollUntilReady(ctx context.Context, deadline time.Time, probe func() bool) error {
	for {
		if probe() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for cluster propagation")
		}
		time.Sleep(readyPollInterval)
	}
}
