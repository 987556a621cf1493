package game

import (
	"fmt"
	"math"
	"sort"

	"github.com/BurntSushi/toml"
)

// PriceScale is the compounding factor applied per tier already owned:
// priceOf(id, n) = floor(basePrice * PriceScale^n).
const PriceScale = 1.5

// Upgrade is one catalog entry. The catalog is fixed at deployment time and
// never mutated at runtime.
type Upgrade struct {
	ID          string  `json:"id" toml:"id"`
	Name        string  `json:"name" toml:"name"`
	Description string  `json:"description" toml:"description"`
	BasePrice   int64   `json:"base_price" toml:"base_price"`
	Multiplier  float64 `json:"multiplier" toml:"multiplier"`
	Icon        string  `json:"icon" toml:"icon"`
	// Stackable upgrades may be bought repeatedly, each purchase a new tier.
	Stackable bool `json:"stackable" toml:"stackable"`
	// AutoClicker marks upgrades the payout worker treats as one passive
	// click per tick per tier owned.
	AutoClicker bool `json:"auto_clicker" toml:"auto_clicker"`
}

// Catalog is the read-only upgrade table, exposed to the progression engine
// and to listing endpoints.
type Catalog struct {
	byID  map[string]Upgrade
	order []string
}

// DefaultCatalog returns the built-in shop.
func DefaultCatalog() *Catalog {
	return newCatalog([]Upgrade{
		{
			ID:          "clicker",
			Name:        "Improved Clicker",
			Description: "Increases ROXY per click by 50%",
			BasePrice:   100,
			Multiplier:  1.5,
			Icon:        "🖱",
			Stackable:   true,
		},
		{
			ID:          "autoClicker",
			Name:        "Auto-Clicker",
			Description: "Clicks automatically every 5 minutes",
			BasePrice:   500,
			Multiplier:  1.0,
			Icon:        "⚡",
			Stackable:   true,
			AutoClicker: true,
		},
		{
			ID:          "superMultiplier",
			Name:        "Super Multiplier",
			Description: "Doubles every multiplier",
			BasePrice:   1000,
			Multiplier:  2.0,
			Icon:        "🚀",
			Stackable:   true,
		},
		{
			ID:          "vipStatus",
			Name:        "VIP Status",
			Description: "Increases all rewards by 50%",
			BasePrice:   2000,
			Multiplier:  1.5,
			Icon:        "👑",
		},
	})
}

// LoadCatalog reads a deployment-time catalog file, replacing the built-in
// table entirely. An empty path yields the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	var file struct {
		Upgrades []Upgrade `toml:"upgrade"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	if len(file.Upgrades) == 0 {
		return nil, fmt.Errorf("load catalog %s: no upgrades defined", path)
	}
	seen := make(map[string]bool, len(file.Upgrades))
	for _, up := range file.Upgrades {
		if up.ID == "" || up.BasePrice <= 0 || up.Multiplier <= 0 {
			return nil, fmt.Errorf("load catalog %s: upgrade %q needs id, base_price > 0 and multiplier > 0", path, up.ID)
		}
		if seen[up.ID] {
			return nil, fmt.Errorf("load catalog %s: duplicate upgrade id %q", path, up.ID)
		}
		seen[up.ID] = true
	}
	return newCatalog(file.Upgrades), nil
}

func newCatalog(upgrades []Upgrade) *Catalog {
	c := &Catalog{byID: make(map[string]Upgrade, len(upgrades))}
	for _, up := range upgrades {
		if _, dup := c.byID[up.ID]; dup {
			continue
		}
		c.byID[up.ID] = up
		c.order = append(c.order, up.ID)
	}
	return c
}

func (c *Catalog) Get(id string) (Upgrade, bool) {
	up, ok := c.byID[id]
	return up, ok
}

// List returns every upgrade in catalog order.
func (c *Catalog) List() []Upgrade {
	out := make([]Upgrade, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// PriceOf computes the cost of the next tier of an upgrade given how many
// tiers the player already owns. The compounding price saturates at
// MaxInt64; it must never wrap negative and pass an affordability check.
func (c *Catalog) PriceOf(id string, timesOwned int) (int64, error) {
	up, ok := c.byID[id]
	if !ok {
		return 0, ErrUnknownUpgrade
	}
	if timesOwned < 0 {
		timesOwned = 0
	}
	price := float64(up.BasePrice) * math.Pow(PriceScale, float64(timesOwned))
	if price >= float64(math.MaxInt64) {
		return math.MaxInt64, nil
	}
	return int64(math.Floor(price)), nil
}

// Prices computes the next-tier price of every upgrade for one owned
// sequence, keyed by upgrade id.
func (c *Catalog) Prices(owned []string) map[string]int64 {
	counts := make(map[string]int, len(owned))
	for _, id := range owned {
		counts[id]++
	}
	out := make(map[string]int64, len(c.order))
	for _, id := range c.order {
		price, _ := c.PriceOf(id, counts[id])
		out[id] = price
	}
	return out
}

// AutoClickerIDs lists the catalog ids the payout worker ticks, sorted for
// stable SQL parameters.
func (c *Catalog) AutoClickerIDs() []string {
	var out []string
	for _, id := range c.order {
		if c.byID[id].AutoClicker {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
