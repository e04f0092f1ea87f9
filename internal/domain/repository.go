package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type findCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

// AddressRepository reads address documents from MongoDB.
type AddressRepository struct {
	collection findCollection
}

// NewAddressRepository constructs an AddressRepository.
func NewAddressRepository(collection findCollection) *AddressRepository {
	return &AddressRepository{collection: collection}
}

// GetByAddress fetches an address document by its chain address.
func (r *AddressRepository) GetByAddress(ctx context.Context, address string) (Address, error) {
	if r == nil || r.collection == nil {
		return Address{}, errors.New("address repository is not initialized")
	}
	if ctx == nil {
		return Address{}, errors.New("context is required")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return Address{}, errors.New("address is required")
	}

	var out Address
	if err := findOne(ctx, r.collection, bson.M{"address": address}, &out); err != nil {
		return Address{}, fmt.Errorf("address %q: %w", address, err)
	}

	return out, nil
}

// TransactionRepository reads transaction documents from MongoDB.
type TransactionRepository struct {
	collection findCollection
}

// NewTransactionRepository constructs a TransactionRepository.
func NewTransactionRepository(collection findCollection) *TransactionRepository {
	return &TransactionRepository{collection: collection}
}

// GetByID fetches a transaction by its hex ObjectID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (Transaction, error) {
	if r == nil || r.collection == nil {
		return Transaction{}, errors.New("transaction repository is not initialized")
	}
	if ctx == nil {
		return Transaction{}, errors.New("context is required")
	}

	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction id %q: %w", id, ErrNotFound)
	}

	var out Transaction
	if err := findOne(ctx, r.collection, bson.M{"_id": oid}, &out); err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, err)
	}

	return out, nil
}

func findOne(ctx context.Context, coll findCollection, filter bson.M, out interface{}) error {
	result := coll.FindOne(ctx, filter)
	if result == nil {
		return errors.New("find returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return fmt.Errorf("find: %w", err)
	}

	if err := result.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	return nil
}
