package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"chain_stats/internal/domain"
	"chain_stats/internal/logging"
)

// Result field names produced by the aggregation pipelines.
const (
	FieldActiveAddresses = "active_addresses"
	FieldAverageAll      = "average_all"
	FieldAddressesAbove  = "all_addresses_above"
	FieldZeros           = "zeros"
	FieldTotalCount      = "total_count"
)

// ErrServiceReleased is returned by a QueryService used after its scope ended.
var ErrServiceReleased = errors.New("query service released")

type aggregateCollection interface {
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
}

// Queries is the read-only statistics surface offered to request handlers.
type Queries interface {
	CountActiveAddresses(ctx context.Context) (int64, error)
	AverageBalance(ctx context.Context) (float64, error)
	CountAddressesAbove(ctx context.Context, watermark int64) (int64, error)
	CountZeroBalance(ctx context.Context) (int64, error)
	CountAll(ctx context.Context, entity domain.Entity) (int64, error)
	Snapshot(ctx context.Context, watermarks ...int64) (domain.Snapshot, error)
}

// QueryService answers fixed aggregate questions about the addresses and
// transactions collections without leaking MongoDB internals to callers.
type QueryService struct {
	addresses    aggregateCollection
	transactions aggregateCollection
	released     atomic.Bool
}

var _ Queries = (*QueryService)(nil)

// NewQueryService constructs a QueryService backed by the provided address and
// transaction collections.
func NewQueryService(addresses, transactions aggregateCollection) *QueryService {
	return &QueryService{
		addresses:    addresses,
		transactions: transactions,
	}
}

// NewQueryServiceFromDatabase binds a QueryService to an already connected
// database handle.
func NewQueryServiceFromDatabase(db *mongo.Database) *QueryService {
	return NewQueryService(
		db.Collection(domain.CollectionAddresses),
		db.Collection(domain.CollectionTransactions),
	)
}

// CountActiveAddresses returns the number of addresses flagged active.
func (s *QueryService) CountActiveAddresses(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	docs, err := aggregateFirst(ctx, s.addresses, "count_active_addresses", activeAddressesPipeline())
	if err != nil {
		return 0, fmt.Errorf("count active addresses: %w", err)
	}

	return ExtractScalarOrDefault(docs, FieldActiveAddresses, int64(0))
}

// AverageBalance returns the mean balance over all addresses, or 0 when there
// are none.
func (s *QueryService) AverageBalance(ctx context.Context) (float64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	docs, err := aggregateFirst(ctx, s.addresses, "average_balance", averageBalancePipeline())
	if err != nil {
		return 0, fmt.Errorf("average balance: %w", err)
	}

	return ExtractScalarOrDefault(docs, FieldAverageAll, float64(0))
}

// CountAddressesAbove returns the number of addresses whose balance is at
// least watermark. The bound is inclusive, so an address with balance 100 is
// counted for watermarks 100, 10 and 0 alike.
func (s *QueryService) CountAddressesAbove(ctx context.Context, watermark int64) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	docs, err := aggregateFirst(ctx, s.addresses, "count_addresses_above", addressesAbovePipeline(watermark))
	if err != nil {
		return 0, fmt.Errorf("count addresses above %d: %w", watermark, err)
	}

	return ExtractScalarOrDefault(docs, FieldAddressesAbove, int64(0))
}

// CountZeroBalance returns the number of addresses holding exactly zero.
func (s *QueryService) CountZeroBalance(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	docs, err := aggregateFirst(ctx, s.addresses, "count_zero_balance", zeroBalancePipeline())
	if err != nil {
		return 0, fmt.Errorf("count zero balance: %w", err)
	}

	return ExtractScalarOrDefault(docs, FieldZeros, int64(0))
}

// CountAll returns the number of documents stored for entity. Entities outside
// the declared set fail with domain.ErrNotFound before any query is issued.
func (s *QueryService) CountAll(ctx context.Context, entity domain.Entity) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	if !entity.Valid() {
		return 0, fmt.Errorf("count %s: %w", entity, domain.ErrNotFound)
	}

	coll := s.addresses
	if entity == domain.EntityTransactions {
		coll = s.transactions
	}
	if coll == nil {
		return 0, fmt.Errorf("count %s: collection is not configured", entity)
	}

	docs, err := aggregateFirst(ctx, coll, "count_"+entity.String(), totalCountPipeline())
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}

	return ExtractScalarOrDefault(docs, FieldTotalCount, int64(0))
}

// Snapshot runs every statistic concurrently, plus one above-watermark count
// per requested watermark. The first failure cancels the remaining queries.
func (s *QueryService) Snapshot(ctx context.Context, watermarks ...int64) (domain.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Snapshot{}, err
	}

	var snap domain.Snapshot
	above := make([]domain.WatermarkCount, len(watermarks))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.ActiveAddresses, err = s.CountActiveAddresses(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.AverageBalance, err = s.AverageBalance(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.ZeroBalance, err = s.CountZeroBalance(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.TotalAddresses, err = s.CountAll(gctx, domain.EntityAddresses)
		return err
	})
	g.Go(func() (err error) {
		snap.TotalTransactions, err = s.CountAll(gctx, domain.EntityTransactions)
		return err
	})
	for i, watermark := range watermarks {
		i, watermark := i, watermark
		g.Go(func() error {
			count, err := s.CountAddressesAbove(gctx, watermark)
			if err != nil {
				return err
			}
			above[i] = domain.WatermarkCount{Watermark: watermark, Count: count}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}

	if len(above) > 0 {
		snap.AddressesAbove = above
	}

	return snap, nil
}

func (s *QueryService) ready(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s == nil || s.addresses == nil {
		return errors.New("query service is not initialized")
	}
	if s.released.Load() {
		return ErrServiceReleased
	}
	return nil
}

func (s *QueryService) release() {
	if s != nil {
		s.released.Store(true)
	}
}

func aggregateFirst(ctx context.Context, coll aggregateCollection, query string, pipeline mongo.Pipeline) ([]bson.Raw, error) {
	start := time.Now()
	defer func() {
		logging.Debug("aggregation finished", logging.QueryFields(query, time.Since(start)))
	}()

	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	return firstDocument(ctx, cur)
}

func activeAddressesPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "is_active", Value: true}}}},
		{{Key: "$count", Value: FieldActiveAddresses}},
	}
}

func averageBalancePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: FieldAverageAll, Value: bson.D{{Key: "$avg", Value: "$balance"}}},
		}}},
	}
}

func addressesAbovePipeline(watermark int64) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "balance", Value: bson.D{{Key: "$gte", Value: watermark}}}}}},
		{{Key: "$count", Value: FieldAddressesAbove}},
	}
}

func zeroBalancePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "balance", Value: bson.D{{Key: "$eq", Value: 0}}}}}},
		{{Key: "$count", Value: FieldZeros}},
	}
}

func totalCountPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$count", Value: FieldTotalCount}},
	}
}
