package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Customer is the contact subset of an account used for order notifications.
type Customer struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FirstName string             `bson:"firstName" json:"firstName"`
	LastName  string             `bson:"lastName" json:"lastName"`
	Email     string             `bson:"email" json:"email"`
	IsActive  bool               `bson:"isActive" json:"isActive"`
}

// DisplayName joins first and last name.
func (c Customer) DisplayName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}
