package game

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestClickRewardBaseline(t *testing.T) {
	st := NewState(7, "alice")
	r := DefaultRules()
	cat := DefaultCatalog()
	if got := ClickReward(&st, r, cat); got != 1 {
		t.Fatalf("fresh player reward got=%d want=1", got)
	}
}

func TestClickRewardWithUpgrades(t *testing.T) {
	r := DefaultRules()
	cat := DefaultCatalog()
	st := NewState(7, "alice")
	st.Multiplier = 1.2 // level 3
	st.Upgrades = []string{"clicker", "superMultiplier"}
	// 1 * 1.2 * 1.5 * 2.0 = 3.6 -> 3
	if got := ClickReward(&st, r, cat); got != 3 {
		t.Fatalf("upgraded reward got=%d want=3", got)
	}
}

func TestClickRewardSaturatesOnDeepStacks(t *testing.T) {
	r := DefaultRules()
	cat := DefaultCatalog()
	st := NewState(7, "alice")
	// 2^100 would wrap an unchecked float-to-int conversion negative
	st.Upgrades = make([]string, 100)
	for i := range st.Upgrades {
		st.Upgrades[i] = "superMultiplier"
	}
	got := ClickReward(&st, r, cat)
	if got != math.MaxInt64 {
		t.Fatalf("deep stack reward got=%d want MaxInt64", got)
	}
	ApplyClick(&st, r, cat)
	if st.Currency < 0 {
		t.Fatalf("currency went negative: %d", st.Currency)
	}
}

func TestApplyClickNeverWrapsCurrency(t *testing.T) {
	r := DefaultRules()
	cat := DefaultCatalog()
	st := NewState(7, "alice")
	st.Currency = math.MaxInt64 - 1
	st.Upgrades = []string{"superMultiplier", "superMultiplier"}
	ApplyClick(&st, r, cat)
	if st.Currency != math.MaxInt64 {
		t.Fatalf("currency got=%d want saturation at MaxInt64", st.Currency)
	}
}

func TestValidateTaps(t *testing.T) {
	tests := []struct {
		taps   int64
		wantOK bool
	}{
		{taps: -1, wantOK: false},
		{taps: 0, wantOK: false},
		{taps: 1, wantOK: true},
		{taps: MaxTapsPerClick, wantOK: true},
		{taps: MaxTapsPerClick + 1, wantOK: false},
	}
	for _, tc := range tests {
		err := validateTaps(tc.taps)
		if tc.wantOK && err != nil {
			t.Fatalf("taps=%d unexpected error %v", tc.taps, err)
		}
		if !tc.wantOK && err == nil {
			t.Fatalf("taps=%d expected an error", tc.taps)
		}
	}
	if err := validateTaps(MaxTapsPerClick + 1); !errors.Is(err, ErrTooManyTaps) {
		t.Fatalf("got %v want ErrTooManyTaps", err)
	}
}

func TestApplyClickCountsAndPays(t *testing.T) {
	r := DefaultRules()
	cat := DefaultCatalog()
	st := NewState(1, "bob")
	reward := ApplyClick(&st, r, cat)
	if reward != 1 {
		t.Fatalf("reward got=%d want=1", reward)
	}
	if st.Clicks != 1 || st.Currency != 1 || st.Experience != 1 {
		t.Fatalf("state after click: clicks=%d currency=%d exp=%d", st.Clicks, st.Currency, st.Experience)
	}
}

func TestResolveLevelUpsFixedCurve(t *testing.T) {
	r := DefaultRules()
	st := NewState(1, "bob")
	st.Experience = 250
	gained := ResolveLevelUps(&st, r)
	if gained != 2 {
		t.Fatalf("levels gained got=%d want=2", gained)
	}
	if st.Level != 3 || st.Experience != 50 {
		t.Fatalf("got level=%d exp=%d want level=3 exp=50", st.Level, st.Experience)
	}
	// multiplier advances 0.1 per level
	if st.Multiplier < 1.19 || st.Multiplier > 1.21 {
		t.Fatalf("multiplier got=%v want ~1.2", st.Multiplier)
	}
}

func TestResolveLevelUpsLinearCurve(t *testing.T) {
	r := DefaultRules()
	r.Curve = Curve{Kind: CurveLinear, Base: 100}
	cat := DefaultCatalog()
	st := NewState(1, "bob")
	for i := 0; i < 100; i++ {
		ApplyClick(&st, r, cat)
		ResolveLevelUps(&st, r)
	}
	if st.Level != 2 || st.Experience != 0 {
		t.Fatalf("got level=%d exp=%d want level=2 exp=0", st.Level, st.Experience)
	}
	if st.Currency != 100 {
		t.Fatalf("currency got=%d want=100", st.Currency)
	}
}

func TestResolveLevelUpsHugeBurst(t *testing.T) {
	r := DefaultRules()
	st := NewState(1, "bob")
	st.Experience = int64(1) << 62
	gained := ResolveLevelUps(&st, r)
	wantLevels := (int64(1) << 62) / 100
	if int64(gained) != wantLevels {
		t.Fatalf("levels gained got=%d want=%d", gained, wantLevels)
	}
	if st.Level != 1+wantLevels {
		t.Fatalf("level got=%d want=%d", st.Level, 1+wantLevels)
	}
	if st.Experience >= r.Curve.ThresholdFor(st.Level) {
		t.Fatalf("invariant broken: exp=%d", st.Experience)
	}
}

func TestNormalizeBoundsRunawayExperience(t *testing.T) {
	// a client blob with absurd experience must resolve promptly on both
	// curves, not spin for the lifetime of the request
	for _, curve := range []Curve{
		{Kind: CurveFixed, Base: 100},
		{Kind: CurveLinear, Base: 100},
	} {
		r := DefaultRules()
		r.Curve = curve
		st := NewState(1, "bob")
		st.Experience = int64(1) << 62
		done := make(chan struct{})
		go func() {
			Normalize(&st, r)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("curve %s: Normalize did not finish", curve.Kind)
		}
		if st.Experience >= r.Curve.ThresholdFor(st.Level) {
			t.Fatalf("curve %s: invariant broken: exp=%d level=%d", curve.Kind, st.Experience, st.Level)
		}
	}
}

func TestLevelThresholdInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, curve := range []Curve{
		{Kind: CurveFixed, Base: 100},
		{Kind: CurveLinear, Base: 100},
	} {
		r := DefaultRules()
		r.Curve = curve
		st := NewState(1, "bob")
		for i := 0; i < 500; i++ {
			st.Experience += int64(rng.Intn(400))
			ResolveLevelUps(&st, r)
			if st.Experience >= r.Curve.ThresholdFor(st.Level) {
				t.Fatalf("curve %s: exp=%d >= threshold=%d at level %d",
					curve.Kind, st.Experience, r.Curve.ThresholdFor(st.Level), st.Level)
			}
		}
	}
}

func TestCurveThresholds(t *testing.T) {
	fixed := Curve{Kind: CurveFixed, Base: 100}
	for _, lvl := range []int64{1, 5, 40} {
		if got := fixed.ThresholdFor(lvl); got != 100 {
			t.Fatalf("fixed threshold at level %d got=%d want=100", lvl, got)
		}
	}
	linear := Curve{Kind: CurveLinear, Base: 100}
	if got := linear.ThresholdFor(3); got != 300 {
		t.Fatalf("linear threshold at level 3 got=%d want=300", got)
	}
}

func TestOfflineReward(t *testing.T) {
	r := DefaultRules()
	tests := []struct {
		elapsed time.Duration
		want    int64
	}{
		{elapsed: time.Minute, want: 0},
		{elapsed: 5 * time.Minute, want: 1},
		{elapsed: 17 * time.Minute, want: 3},
		{elapsed: -time.Hour, want: 0},
	}
	for _, tc := range tests {
		if got := OfflineReward(tc.elapsed, r); got != tc.want {
			t.Fatalf("elapsed=%v got=%d want=%d", tc.elapsed, got, tc.want)
		}
	}
}

func TestNormalizeClampsAndLevels(t *testing.T) {
	r := DefaultRules()
	st := NewState(1, "bob")
	st.Currency = -50
	st.Clicks = -1
	st.Level = 0
	st.Experience = 130
	st.Multiplier = 0
	Normalize(&st, r)
	if st.Currency != 0 || st.Clicks != 0 {
		t.Fatalf("clamps failed: currency=%d clicks=%d", st.Currency, st.Clicks)
	}
	if st.Level != 2 || st.Experience != 30 {
		t.Fatalf("got level=%d exp=%d want level=2 exp=30", st.Level, st.Experience)
	}
	if st.Multiplier < 1.09 || st.Multiplier > 1.11 {
		t.Fatalf("multiplier got=%v want ~1.1 (rebuilt from level)", st.Multiplier)
	}
}

func TestAchievements(t *testing.T) {
	st := NewState(1, "bob")
	st.Clicks = 1500
	st.Level = 11
	st.Currency = 999
	st.Upgrades = []string{"clicker", "clicker", "autoClicker"}
	completed := map[string]bool{}
	for _, a := range Achievements(&st) {
		if a.Completed {
			completed[a.ID] = true
		}
	}
	for _, id := range []string{"clicks_100", "clicks_1000", "level_10", "upgrades_3"} {
		if !completed[id] {
			t.Fatalf("expected %s completed", id)
		}
	}
	if completed["roxy_1000"] {
		t.Fatalf("roxy_1000 should stay locked at 999")
	}
}
