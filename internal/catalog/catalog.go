// Package catalog resolves the authoritative prices and discounts an order is
// created with. It reads the storefront's product and coupon documents and
// never writes them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/heremarket/orders/internal/domain"
	"github.com/heremarket/orders/internal/models"
	"github.com/heremarket/orders/internal/money"
)

// PricedProduct is a product's price at lookup time, in minor units.
type PricedProduct struct {
	Ref       string
	Name      string
	UnitPrice int64
	Stock     int
}

// MongoCatalog reads the products collection.
type MongoCatalog struct {
	db *mongo.Database
}

func NewMongoCatalog(db *mongo.Database) *MongoCatalog {
	return &MongoCatalog{db: db}
}

// Prices returns one entry per requested ref. Unknown, deleted or inactive
// products are a ValidationError.
func (c *MongoCatalog) Prices(ctx context.Context, refs []string) (map[string]PricedProduct, error) {
	ids := make([]primitive.ObjectID, 0, len(refs))
	for i, ref := range refs {
		id, err := primitive.ObjectIDFromHex(ref)
		if err != nil {
			return nil, domain.Invalid(fmt.Sprintf("items[%d].productId", i), "invalid productId")
		}
		ids = append(ids, id)
	}

	cursor, err := c.db.Collection("products").Find(ctx, bson.M{
		"_id":       bson.M{"$in": ids},
		"isDeleted": bson.M{"$ne": true},
	})
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return priceProducts(refs, products)
}

func priceProducts(refs []string, products []models.Product) (map[string]PricedProduct, error) {
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID.Hex()] = p
	}

	out := make(map[string]PricedProduct, len(refs))
	for i, ref := range refs {
		p, ok := byID[ref]
		if !ok || p.IsDeleted || !p.IsActive {
			return nil, domain.Invalid(fmt.Sprintf("items[%d].productId", i), "product not found: "+ref)
		}
		price, err := money.FromMajor(p.EffectivePrice())
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", ref, err)
		}
		out[ref] = PricedProduct{
			Ref:       ref,
			Name:      strings.TrimSpace(p.Name),
			UnitPrice: price,
			Stock:     p.Stock,
		}
	}
	return out, nil
}

// MongoCoupons reads the coupons collection.
type MongoCoupons struct {
	db  *mongo.Database
	now func() time.Time
}

func NewMongoCoupons(db *mongo.Database) *MongoCoupons {
	return &MongoCoupons{db: db, now: time.Now}
}

// Discount returns the discount in minor units that code grants on subtotal.
func (c *MongoCoupons) Discount(ctx context.Context, code string, subtotal int64) (int64, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return 0, nil
	}

	var coupon models.Coupon
	err := c.db.Collection("coupons").FindOne(ctx, bson.M{"code": normalized}).Decode(&coupon)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, domain.Invalid("discountCode", "unknown coupon")
	}
	if err != nil {
		return 0, fmt.Errorf("find coupon: %w", err)
	}
	return DiscountFor(coupon, subtotal, c.now())
}

// DiscountFor applies a coupon's arithmetic. The result never exceeds subtotal.
func DiscountFor(coupon models.Coupon, subtotal int64, now time.Time) (int64, error) {
	if !coupon.IsActive {
		return 0, domain.Invalid("discountCode", "coupon is not active")
	}
	if coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt) {
		return 0, domain.Invalid("discountCode", "coupon has expired")
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return 0, domain.Invalid("discountCode", "coupon usage limit reached")
	}

	minSubtotal, err := money.FromMajor(coupon.MinSubtotal)
	if err != nil {
		return 0, err
	}
	if subtotal < minSubtotal {
		return 0, domain.Invalid("discountCode", "order total below coupon minimum "+money.Format(minSubtotal))
	}

	var discount int64
	switch coupon.Kind {
	case models.CouponPercent:
		if coupon.Value <= 0 || coupon.Value > 100 {
			return 0, domain.Invalid("discountCode", "coupon percentage out of range")
		}
		// Basis points keep the arithmetic in integers.
		bp := int64(coupon.Value*100 + 0.5)
		discount = subtotal * bp / 10000
	case models.CouponFixed:
		fixed, err := money.FromMajor(coupon.Value)
		if err != nil {
			return 0, err
		}
		discount = fixed
	default:
		return 0, domain.Invalid("discountCode", "unsupported coupon kind")
	}

	if coupon.MaxDiscount > 0 {
		maxDiscount, err := money.FromMajor(coupon.MaxDiscount)
		if err != nil {
			return 0, err
		}
		if discount > maxDiscount {
			discount = maxDiscount
		}
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount, nil
}
