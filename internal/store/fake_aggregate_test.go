package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeAggregateCollection evaluates the small subset of the aggregation
// language used by QueryService over an in-memory document set.
type fakeAggregateCollection struct {
	mu        sync.Mutex
	docs      []bson.M
	err       error
	calls     int
	pipelines []mongo.Pipeline
}

func newFakeAggregateCollection(t *testing.T, documents ...interface{}) *fakeAggregateCollection {
	t.Helper()

	coll := &fakeAggregateCollection{}
	for _, doc := range documents {
		coll.docs = append(coll.docs, toM(t, doc))
	}
	return coll
}

func (f *fakeAggregateCollection) Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	stages, ok := pipeline.(mongo.Pipeline)
	if !ok {
		return nil, fmt.Errorf("unexpected pipeline type %T", pipeline)
	}
	f.pipelines = append(f.pipelines, stages)

	out := append([]bson.M(nil), f.docs...)
	for _, stage := range stages {
		if len(stage) != 1 {
			return nil, fmt.Errorf("stage must hold one operator, got %v", stage)
		}

		var err error
		switch stage[0].Key {
		case "$match":
			out, err = evalMatch(out, stage[0].Value)
		case "$group":
			out, err = evalGroup(out, stage[0].Value)
		case "$count":
			out, err = evalCount(out, stage[0].Value)
		default:
			err = fmt.Errorf("unsupported stage %s", stage[0].Key)
		}
		if err != nil {
			return nil, err
		}
	}

	results := make([]interface{}, 0, len(out))
	for _, doc := range out {
		results = append(results, doc)
	}

	return mongo.NewCursorFromDocuments(results, nil, nil)
}

func (f *fakeAggregateCollection) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func evalMatch(docs []bson.M, spec interface{}) ([]bson.M, error) {
	conds, ok := spec.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$match expects bson.D, got %T", spec)
	}

	var out []bson.M
	for _, doc := range docs {
		matched := true
		for _, cond := range conds {
			ok, err := matchField(doc[cond.Key], cond.Value)
			if err != nil {
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, doc)
		}
	}
	return out, nil
}

func matchField(actual, expected interface{}) (bool, error) {
	ops, ok := expected.(bson.D)
	if !ok {
		return equalValues(actual, expected), nil
	}

	for _, op := range ops {
		switch op.Key {
		case "$eq":
			if !equalValues(actual, op.Value) {
				return false, nil
			}
		case "$gte":
			a, okA := toFloat(actual)
			b, okB := toFloat(op.Value)
			if !okA || !okB || a < b {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported operator %s", op.Key)
		}
	}
	return true, nil
}

func evalGroup(docs []bson.M, spec interface{}) ([]bson.M, error) {
	fields, ok := spec.(bson.D)
	if !ok {
		return nil, fmt.Errorf("$group expects bson.D, got %T", spec)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	result := bson.M{}
	for _, field := range fields {
		if field.Key == "_id" {
			if field.Value != nil {
				return nil, fmt.Errorf("only _id: null grouping is supported")
			}
			result["_id"] = nil
			continue
		}

		acc, ok := field.Value.(bson.D)
		if !ok || len(acc) != 1 || acc[0].Key != "$avg" {
			return nil, fmt.Errorf("unsupported accumulator %v", field.Value)
		}
		path, _ := acc[0].Value.(string)

		var sum float64
		var n int
		for _, doc := range docs {
			if v, ok := toFloat(doc[path[1:]]); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			result[field.Key] = nil
		} else {
			result[field.Key] = sum / float64(n)
		}
	}
	return []bson.M{result}, nil
}

func evalCount(docs []bson.M, spec interface{}) ([]bson.M, error) {
	name, ok := spec.(string)
	if !ok {
		return nil, fmt.Errorf("$count expects a field name, got %T", spec)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return []bson.M{{name: int32(len(docs))}}, nil
}

func equalValues(a, b interface{}) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		return fa == fb
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func toM(t *testing.T, doc interface{}) bson.M {
	t.Helper()

	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return out
}
