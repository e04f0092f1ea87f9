// Package store encapsulates MongoDB client management and the read-only
// statistics queries over the addresses and transactions collections.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"chain_stats/internal/config"
	"chain_stats/internal/domain"
)

// mongoClient captures the subset of mongo.Client behavior we rely on to allow
// lightweight stubbing in tests without a live Mongo deployment.
type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

// connectMongo is overridable for tests.
var connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
	return mongo.Connect(ctx, opts)
}

// Manager owns a MongoDB client and the configured database handle.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager initializes the Mongo client using the supplied configuration and
// verifies connectivity with a ping. Operation timeouts are configured on the
// client so every query inherits them.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	opts := options.Client().ApplyURI(cfg.MongoURI)
	if cfg.MongoTimeout > 0 {
		opts.SetTimeout(cfg.MongoTimeout)
	}

	client, err := connectMongo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{
		client: client,
		db:     client.Database(cfg.MongoDB),
	}, nil
}

// Database returns the configured database handle.
func (m *Manager) Database() *mongo.Database {
	return m.db
}

// Collection returns a collection handle for the given name.
func (m *Manager) Collection(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// Addresses returns the addresses collection handle.
func (m *Manager) Addresses() *mongo.Collection {
	return m.Collection(domain.CollectionAddresses)
}

// Transactions returns the transactions collection handle.
func (m *Manager) Transactions() *mongo.Collection {
	return m.Collection(domain.CollectionTransactions)
}

// Ping checks connectivity against the primary.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errors.New("store manager is not initialized")
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	return nil
}

// Scope hands fn a query service bound to the manager's database for the
// duration of one request. The service is released when Scope returns, on
// error and panic paths too; a released service rejects further calls with
// ErrServiceReleased.
func (m *Manager) Scope(ctx context.Context, fn func(context.Context, Queries) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errors.New("store manager is not initialized")
	}
	if fn == nil {
		return errors.New("scope function is required")
	}

	svc := NewQueryServiceFromDatabase(m.db)
	defer svc.release()

	return fn(ctx, svc)
}

// Close disconnects the Mongo client.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
