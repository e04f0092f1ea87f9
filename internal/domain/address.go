package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// Address is a chain address document from the addresses collection. Balance
// is expressed in the chain's smallest unit.
type Address struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id,omitempty"`
	Address      string               `bson:"address" json:"address"`
	Balance      int64                `bson:"balance" json:"balance"`
	Active       bool                 `bson:"is_active" json:"is_active"`
	Transactions []primitive.ObjectID `bson:"transactions,omitempty" json:"transactions,omitempty"`
}
