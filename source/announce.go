package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// AnnouncerConfig configures the etcd-backed source announcer.
type AnnouncerConfig struct {
	// Endpoints is the etcd cluster to announce to.
	Endpoints []string

	// Namespace prefixes all keys. Defaults to "fusion".
	Namespace string

	// TTL is the lease TTL in seconds. Defaults to 30.
	TTL int
}

// Announcer mirrors source liveness into etcd so multiple fusion instances
// (and external monitors) can discover which sources each instance serves.
// Each announced source is written under /<namespace>/sources/<id> with a
// TTL lease kept alive in the background; an instance that dies drops its
// announcements automatically when the leases expire.
//
// The announcer is optional: the registry and scheduler work fully without it.
type Announcer struct {
	client    *clientv3.Client
	namespace string
	ttl       int
	logger    *slog.Logger

	mu        sync.Mutex
	leases    map[string]clientv3.LeaseID
	cancelFns map[string]context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
}

// NewAnnouncer connects to etcd and verifies connectivity.
func NewAnnouncer(cfg AnnouncerConfig, logger *slog.Logger) (*Announcer, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("announcer endpoints cannot be empty")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "fusion"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30
	}
	if logger == nil {
		logger = slog.Default()
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Announcer{
		client:    cli,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
		logger:    logger.With("component", "announcer"),
		leases:    make(map[string]clientv3.LeaseID),
		cancelFns: make(map[string]context.CancelFunc),
	}, nil
}

// key builds the etcd key for a source id.
func (a *Announcer) key(id string) string {
	return fmt.Sprintf("/%s/sources/%s", a.namespace, id)
}

// Announce writes the source's current state under a fresh lease and starts
// a keepalive goroutine. Re-announcing an id replaces its previous lease.
func (a *Announcer) Announce(ctx context.Context, src *DataSource) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return fmt.Errorf("announcer is closed")
	}
	a.mu.Unlock()

	payload, err := json.Marshal(src.snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal source state: %w", err)
	}

	lease, err := a.client.Grant(ctx, int64(a.ttl))
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	if _, err := a.client.Put(ctx, a.key(src.ID), string(payload), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to announce source: %w", err)
	}

	keepCtx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	if prev, ok := a.cancelFns[src.ID]; ok {
		prev()
	}
	a.leases[src.ID] = lease.ID
	a.cancelFns[src.ID] = cancel
	a.mu.Unlock()

	ch, err := a.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start keepalive: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for range ch {
			// Drain keepalive responses until the lease or context ends.
		}
		a.logger.Debug("keepalive ended", "source", src.ID)
	}()

	return nil
}

// Withdraw revokes a source's lease, removing its announcement.
func (a *Announcer) Withdraw(ctx context.Context, id string) error {
	a.mu.Lock()
	lease, ok := a.leases[id]
	if cancel, hasCancel := a.cancelFns[id]; hasCancel {
		cancel()
		delete(a.cancelFns, id)
	}
	delete(a.leases, id)
	a.mu.Unlock()

	if !ok {
		return nil
	}
	if _, err := a.client.Revoke(ctx, lease); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	return nil
}

// Close withdraws all announcements and closes the etcd connection.
func (a *Announcer) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	for id, cancel := range a.cancelFns {
		cancel()
		delete(a.cancelFns, id)
	}
	leases := make([]clientv3.LeaseID, 0, len(a.leases))
	for _, l := range a.leases {
		leases = append(leases, l)
	}
	a.leases = make(map[string]clientv3.LeaseID)
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for _, l := range leases {
		a.client.Revoke(ctx, l)
	}

	a.wg.Wait()
	return a.client.Close()
}
