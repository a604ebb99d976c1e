// Package plans is the single source of truth for the plan catalog shown on
// the pricing surface and used to name plans from Stripe price IDs.
package plans

type Plan struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	// Price is the monthly price in whole dollars; 0 for the free tier.
	Price    int64    `json:"price"`
	PriceID  string   `json:"priceId"`
	Features []string `json:"features"`
	Popular  bool     `json:"popular,omitempty"`
}

// Catalog holds the available plans. Price IDs come from configuration so
// the same build runs against test and live Stripe accounts.
type Catalog struct {
	plans []Plan
}

func NewCatalog(proPriceID string) *Catalog {
	return &Catalog{
		plans: []Plan{
			{
				ID:          "free",
				Name:        "Free",
				Description: "Kick the tires",
				Price:       0,
				Features:    []string{"Project previews", "Community support"},
			},
			{
				ID:          "pro",
				Name:        "Pro",
				Description: "Everything unlocked",
				Price:       10,
				PriceID:     proPriceID,
				Features:    []string{"Full project access", "Usage docs", "Priority support"},
				Popular:     true,
			},
		},
	}
}

func (c *Catalog) All() []Plan {
	return c.plans
}

func (c *Catalog) ByPriceID(priceID string) (Plan, bool) {
	if priceID == "" {
		return Plan{}, false
	}
	for _, p := range c.plans {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Plan{}, false
}

// NameForPriceID returns the plan name for a price ID, defaulting to "Free"
// for unknown or empty IDs.
func (c *Catalog) NameForPriceID(priceID string) string {
	if p, ok := c.ByPriceID(priceID); ok {
		return p.Name
	}
	return "Free"
}
