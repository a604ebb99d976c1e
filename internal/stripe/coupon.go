package stripe

import (
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"
)

// couponPageSize bounds the coupon listing; the catalog is expected to stay
// far below this.
const couponPageSize = 100

// LaunchCouponCode is the promotional code seeded by EnsureLaunchCoupon.
const LaunchCouponCode = "OPEN60"

type CouponResult struct {
	Valid    bool
	CouponID string
	// Reason is a user-facing message set when Valid is false.
	Reason string
}

// ValidatePromotionCode resolves a human-entered code to a provider coupon
// ID. Matching is case-insensitive against the coupon's metadata "code" field
// or its own ID.
func (c *Client) ValidatePromotionCode(code string) (CouponResult, error) {
	normalized := strings.ToLower(strings.TrimSpace(code))

	params := &stripe.CouponListParams{}
	params.Limit = stripe.Int64(couponPageSize)
	iter := c.api.Coupons.List(params)
	for iter.Next() {
		coup := iter.Coupon()
		if strings.ToLower(coup.Metadata["code"]) != normalized && strings.ToLower(coup.ID) != normalized {
			continue
		}
		if !coup.Valid {
			return CouponResult{Reason: "This coupon is no longer valid"}, nil
		}
		return CouponResult{Valid: true, CouponID: coup.ID}, nil
	}
	if err := iter.Err(); err != nil {
		return CouponResult{}, fmt.Errorf("list coupons: %w", err)
	}

	return CouponResult{Reason: "Invalid coupon code"}, nil
}

// EnsureLaunchCoupon creates the OPEN60 100%-off coupon if it does not exist
// yet and returns its provider coupon ID. Safe to call repeatedly.
func (c *Client) EnsureLaunchCoupon() (string, error) {
	params := &stripe.CouponListParams{}
	params.Limit = stripe.Int64(couponPageSize)
	iter := c.api.Coupons.List(params)
	for iter.Next() {
		coup := iter.Coupon()
		if coup.Metadata["code"] == LaunchCouponCode {
			return coup.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list coupons: %w", err)
	}

	createParams := &stripe.CouponParams{
		PercentOff: stripe.Float64(100),
		Duration:   stripe.String(string(stripe.CouponDurationForever)),
		Name:       stripe.String(LaunchCouponCode + " - 100% Off"),
	}
	createParams.AddMetadata("code", LaunchCouponCode)
	createParams.AddMetadata("description", "100% off for all paid plans")

	coup, err := c.api.Coupons.New(createParams)
	if err != nil {
		return "", fmt.Errorf("create coupon: %w", err)
	}
	return coup.ID, nil
}
