package game

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestPriceScaling(t *testing.T) {
	cat := DefaultCatalog()
	wants := []int64{100, 150, 225, 337}
	for owned, want := range wants {
		got, err := cat.PriceOf("clicker", owned)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("clicker tier %d got=%d want=%d", owned, got, want)
		}
	}
}

func TestPriceOfSaturatesAtDeepTiers(t *testing.T) {
	cat := DefaultCatalog()
	// 100 * 1.5^200 overflows int64 by a wide margin; the price must pin at
	// MaxInt64, never wrap negative and pass an affordability check
	got, err := cat.PriceOf("clicker", 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != math.MaxInt64 {
		t.Fatalf("deep tier price got=%d want MaxInt64", got)
	}
	if err := purchaseGuard(200, true, 1_000_000_000, got); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v want ErrInsufficientFunds", err)
	}
}

func TestPriceOfUnknownUpgrade(t *testing.T) {
	cat := DefaultCatalog()
	if _, err := cat.PriceOf("jetpack", 0); !errors.Is(err, ErrUnknownUpgrade) {
		t.Fatalf("got %v want ErrUnknownUpgrade", err)
	}
}

func TestPricesCountsOwnedTiers(t *testing.T) {
	cat := DefaultCatalog()
	prices := cat.Prices([]string{"clicker", "clicker", "autoClicker"})
	if prices["clicker"] != 225 {
		t.Fatalf("clicker got=%d want=225", prices["clicker"])
	}
	if prices["autoClicker"] != 750 {
		t.Fatalf("autoClicker got=%d want=750", prices["autoClicker"])
	}
	if prices["vipStatus"] != 2000 {
		t.Fatalf("vipStatus got=%d want=2000", prices["vipStatus"])
	}
}

func TestCatalogListOrder(t *testing.T) {
	cat := DefaultCatalog()
	list := cat.List()
	if len(list) != 4 {
		t.Fatalf("got %d upgrades want 4", len(list))
	}
	if list[0].ID != "clicker" {
		t.Fatalf("first upgrade got=%s want=clicker", list[0].ID)
	}
}

func TestAutoClickerIDs(t *testing.T) {
	cat := DefaultCatalog()
	ids := cat.AutoClickerIDs()
	if len(ids) != 1 || ids[0] != "autoClicker" {
		t.Fatalf("got %v want [autoClicker]", ids)
	}
}

func TestLoadCatalogFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upgrades.toml")
	doc := `
[[upgrade]]
id = "turbo"
name = "Turbo"
base_price = 50
multiplier = 1.25
stackable = true

[[upgrade]]
id = "drone"
name = "Drone"
base_price = 400
multiplier = 1.0
stackable = true
auto_clicker = true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	up, ok := cat.Get("turbo")
	if !ok || up.BasePrice != 50 {
		t.Fatalf("turbo not loaded: ok=%v up=%+v", ok, up)
	}
	if ids := cat.AutoClickerIDs(); len(ids) != 1 || ids[0] != "drone" {
		t.Fatalf("auto clicker ids got=%v want [drone]", ids)
	}
}

func TestLoadCatalogRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upgrades.toml")
	doc := `
[[upgrade]]
id = "turbo"
name = "Turbo"
base_price = 50
multiplier = 1.25

[[upgrade]]
id = "turbo"
name = "Turbo Again"
base_price = 60
multiplier = 1.1
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}
}
