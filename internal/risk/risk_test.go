package risk

import (
	"math"
	"testing"
)

func TestLevelFromScore_Thresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  Level
	}{
		{0.0, LevelLow},
		{0.4, LevelLow},  // boundary: MEDIUM requires strictly above 0.4
		{0.41, LevelMedium},
		{0.7, LevelMedium}, // boundary: HIGH requires strictly above 0.7
		{0.71, LevelHigh},
		{1.0, LevelHigh},
	}
	for _, tc := range cases {
		if got := LevelFromScore(tc.score); got != tc.want {
			t.Errorf("LevelFromScore(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"high", "HIGH", " High "} {
		lvl, ok := ParseLevel(s)
		if !ok || lvl != LevelHigh {
			t.Errorf("ParseLevel(%q) = %s, %v", s, lvl, ok)
		}
	}
	if _, ok := ParseLevel("critical"); ok {
		t.Error("expected ParseLevel to reject unknown level")
	}
}

func TestMaxLevel(t *testing.T) {
	if MaxLevel(LevelLow, LevelMedium) != LevelMedium {
		t.Error("MEDIUM should outrank LOW")
	}
	if MaxLevel(LevelHigh, LevelMedium) != LevelHigh {
		t.Error("HIGH should outrank MEDIUM")
	}
	if MaxLevel(LevelLow, LevelLow) != LevelLow {
		t.Error("LOW vs LOW should stay LOW")
	}
}

func TestNormalize_ClampsAndRequantizes(t *testing.T) {
	a := &Assessment{Score: 1.7, Level: LevelLow, ReasonCodes: []string{"HIGH_AMOUNT"}}
	Normalize(a)
	if a.Score != 1.0 {
		t.Errorf("score not clamped: %v", a.Score)
	}
	if a.Level != LevelHigh {
		t.Errorf("level not recomputed: %s", a.Level)
	}

	b := &Assessment{Score: -0.3}
	Normalize(b)
	if b.Score != 0.0 || b.Level != LevelLow {
		t.Errorf("negative score not clamped: %v %s", b.Score, b.Level)
	}
}

func TestNormalize_DedupesReasonCodes(t *testing.T) {
	a := &Assessment{
		Score:       0.5,
		ReasonCodes: []string{"STRUCTURING", "HIGH_AMOUNT", "STRUCTURING", "", "  "},
	}
	Normalize(a)
	want := []string{"STRUCTURING", "HIGH_AMOUNT"}
	if len(a.ReasonCodes) != len(want) {
		t.Fatalf("got %v, want %v", a.ReasonCodes, want)
	}
	for i := range want {
		if a.ReasonCodes[i] != want[i] {
			t.Errorf("reason order changed: got %v, want %v", a.ReasonCodes, want)
		}
	}
}

func TestNormalize_HighAlwaysHasReasons(t *testing.T) {
	a := &Assessment{Score: 0.95}
	Normalize(a)
	if a.Level != LevelHigh {
		t.Fatalf("expected HIGH, got %s", a.Level)
	}
	if len(a.ReasonCodes) == 0 {
		t.Error("HIGH assessment must carry at least one reason code")
	}
}

func TestNormalize_NonFiniteScores(t *testing.T) {
	nan := &Assessment{Score: math.NaN(), ReasonCodes: []string{"MODEL"}}
	Normalize(nan)
	if nan.Score != 0.0 || nan.Level != LevelLow {
		t.Errorf("NaN score not neutralized: %v %s", nan.Score, nan.Level)
	}

	posInf := &Assessment{Score: math.Inf(1)}
	Normalize(posInf)
	if posInf.Score != 1.0 || posInf.Level != LevelHigh {
		t.Errorf("+Inf score not clamped: %v %s", posInf.Score, posInf.Level)
	}
	if len(posInf.ReasonCodes) == 0 {
		t.Error("HIGH assessment must carry a reason code")
	}

	negInf := &Assessment{Score: math.Inf(-1)}
	Normalize(negInf)
	if negInf.Score != 0.0 || negInf.Level != LevelLow {
		t.Errorf("-Inf score not clamped: %v %s", negInf.Score, negInf.Level)
	}
}
