package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transaction is a transfer document from the transactions collection.
type Transaction struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	From   string             `bson:"from" json:"from"`
	To     string             `bson:"to" json:"to"`
	Amount int64              `bson:"amount" json:"amount"`
	Fee    int64              `bson:"fee" json:"fee"`
	Time   time.Time          `bson:"time" json:"time"`
	Type   string             `bson:"type" json:"type"`
}
