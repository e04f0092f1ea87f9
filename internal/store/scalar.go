package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrMissingField reports a result document without the requested field.
var ErrMissingField = errors.New("result field missing")

// Scalar is the set of numeric results an aggregation can be normalized to.
type Scalar interface {
	~int64 | ~float64
}

// ExtractScalarOrDefault normalizes the output of a single-document
// aggregation. No documents yields def; a null field (for example $avg over
// documents that lack the averaged field) also yields def. Otherwise the
// numeric value of field in the only document is returned.
func ExtractScalarOrDefault[T Scalar](docs []bson.Raw, field string, def T) (T, error) {
	switch len(docs) {
	case 0:
		return def, nil
	case 1:
	default:
		return def, fmt.Errorf("expected at most one result document, got %d", len(docs))
	}

	value, err := docs[0].LookupErr(field)
	if err != nil {
		return def, fmt.Errorf("field %q: %w", field, ErrMissingField)
	}

	switch value.Type {
	case bsontype.Null, bsontype.Undefined:
		return def, nil
	case bsontype.Int32:
		return T(value.Int32()), nil
	case bsontype.Int64:
		return T(value.Int64()), nil
	case bsontype.Double:
		return T(value.Double()), nil
	default:
		return def, fmt.Errorf("field %q: unexpected bson type %s", field, value.Type)
	}
}

// firstDocument reads at most one document from cur and always closes it.
func firstDocument(ctx context.Context, cur *mongo.Cursor) (docs []bson.Raw, err error) {
	if cur == nil {
		return nil, errors.New("aggregate returned no cursor")
	}

	defer func() {
		if closeErr := cur.Close(ctx); closeErr != nil && err == nil {
			err = fmt.Errorf("close cursor: %w", closeErr)
		}
	}()

	if cur.Next(ctx) {
		doc := make(bson.Raw, len(cur.Current))
		copy(doc, cur.Current)
		return []bson.Raw{doc}, nil
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}

	return nil, nil
}
