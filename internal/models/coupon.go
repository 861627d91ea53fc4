package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CouponKind selects the discount arithmetic.
type CouponKind string

const (
	CouponPercent CouponKind = "percent"
	CouponFixed   CouponKind = "fixed"
)

// Coupon is a discount code document. Fixed values, MinSubtotal and
// MaxDiscount are major units, like catalog prices.
type Coupon struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code        string             `bson:"code" json:"code"`
	Kind        CouponKind         `bson:"kind" json:"kind"`
	Value       float64            `bson:"value" json:"value"`
	MinSubtotal float64            `bson:"minSubtotal,omitempty" json:"minSubtotal,omitempty"`
	MaxDiscount float64            `bson:"maxDiscount,omitempty" json:"maxDiscount,omitempty"`
	UsageLimit  int                `bson:"usageLimit,omitempty" json:"usageLimit,omitempty"`
	UsedCount   int                `bson:"usedCount" json:"usedCount"`
	IsActive    bool               `bson:"isActive" json:"isActive"`
	ExpiresAt   *time.Time         `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}
