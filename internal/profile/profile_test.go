package profile

import (
	"math"
	"testing"
	"time"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestApplySingleSignal(t *testing.T) {
	// Сценарий из первых наблюдений: шаг 0.35, ei 0.5 -> 0.64, уверенность 0.3 -> 0.325
	u := DefaultUpdater()
	p := NewDefault(1)

	errs := u.Apply(&p, 10, []Signal{{Axis: AxisEI, Value: 0.9, Weight: 0.5}}, time.Now())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !almost(p.EI, 0.64) {
		t.Errorf("ei = %v, want 0.64", p.EI)
	}
	if !almost(p.Confidence, 0.325) {
		t.Errorf("confidence = %v, want 0.325", p.Confidence)
	}
	if len(p.Anchors) != 1 || p.Anchors[0].EventID != 10 || p.Anchors[0].Axis != AxisEI {
		t.Errorf("anchor not recorded: %+v", p.Anchors)
	}
	if p.MBTIType != "" {
		t.Errorf("mbti published below threshold: %q", p.MBTIType)
	}
}

func TestApplyBoundsAndMonotoneConfidence(t *testing.T) {
	u := DefaultUpdater()
	p := NewDefault(1)

	signals := []Signal{
		{AxisEI, 1, 1}, {AxisEI, 1, 1}, {AxisEI, 0, 1},
		{AxisSN, 0, 0.01}, {AxisTF, 1, 0.5}, {AxisJP, 0.5, 1},
		{AxisEI, 1, 1}, {AxisSN, 1, 1}, {AxisTF, 0, 1}, {AxisJP, 1, 1},
	}
	prev := p.Confidence
	for i, s := range signals {
		if errs := u.Apply(&p, int64(i), []Signal{s}, time.Now()); len(errs) != 0 {
			t.Fatalf("signal %d rejected: %v", i, errs)
		}
		for name, v := range map[string]float64{"ei": p.EI, "sn": p.SN, "tf": p.TF, "jp": p.JP, "confidence": p.Confidence} {
			if v < 0 || v > 1 {
				t.Fatalf("%s out of [0,1] after signal %d: %v", name, i, v)
			}
		}
		if p.Confidence < prev {
			t.Fatalf("confidence decreased after signal %d: %v -> %v", i, prev, p.Confidence)
		}
		prev = p.Confidence
	}
}

func TestApplyValidation(t *testing.T) {
	u := DefaultUpdater()
	p := NewDefault(1)

	errs := u.Apply(&p, 5, []Signal{
		{Axis: AxisEI, Value: 1.5, Weight: 0.5},  // value out of range
		{Axis: "xx", Value: 0.5, Weight: 0.5},    // unknown axis
		{Axis: AxisTF, Value: 0.5, Weight: 0},    // weight out of range
		{Axis: AxisJP, Value: 0.9, Weight: 0.5},  // valid
	}, time.Now())

	if len(errs) != 3 {
		t.Fatalf("want 3 validation errors, got %d: %v", len(errs), errs)
	}
	for _, err := range errs {
		if _, ok := err.(*ValidationError); !ok {
			t.Errorf("unexpected error type: %T", err)
		}
	}
	if almost(p.JP, 0.5) {
		t.Errorf("valid jp signal in same batch did not apply: %v", p.JP)
	}
	if !almost(p.EI, 0.5) {
		t.Errorf("rejected ei signal mutated profile: %v", p.EI)
	}
	if len(p.Anchors) != 1 {
		t.Errorf("want 1 anchor for the valid signal, got %d", len(p.Anchors))
	}
}

func TestAnchorEviction(t *testing.T) {
	u := NewUpdater(0.05, 0.6, 3)
	p := NewDefault(1)

	for i := 1; i <= 5; i++ {
		u.Apply(&p, int64(i), []Signal{{Axis: AxisEI, Value: 0.6, Weight: 0.1}}, time.Now())
	}
	if len(p.Anchors) != 3 {
		t.Fatalf("anchors not capped: %d", len(p.Anchors))
	}
	// вытесняются самые старые
	if p.Anchors[0].EventID != 3 || p.Anchors[2].EventID != 5 {
		t.Fatalf("wrong eviction order: %+v", p.Anchors)
	}
}

func TestMBTIPublishing(t *testing.T) {
	u := NewUpdater(0.05, 0.35, 50)
	p := NewDefault(1)

	u.Apply(&p, 1, []Signal{{Axis: AxisEI, Value: 0.9, Weight: 0.5}}, time.Now())
	if p.MBTIType != "" {
		t.Fatalf("published at confidence %v below threshold", p.Confidence)
	}
	u.Apply(&p, 2, []Signal{{Axis: AxisEI, Value: 0.9, Weight: 0.5}}, time.Now())
	if p.MBTIType == "" {
		t.Fatalf("not published at confidence %v", p.Confidence)
	}
}

func TestMBTILetters(t *testing.T) {
	u := DefaultUpdater()

	p := Profile{EI: 0.9, SN: 0.2, TF: 0.7, JP: 0.4}
	if got := u.MBTI(&p); got != "ESTP" {
		t.Errorf("mbti = %q, want ESTP", got)
	}
	neutral := Profile{EI: 0.5, SN: 0.5, TF: 0.5, JP: 0.5}
	if got := u.MBTI(&neutral); got != "ENTJ" {
		t.Errorf("tie poles: %q, want ENTJ", got)
	}
	u.TiePoles = "ISFP"
	if got := u.MBTI(&neutral); got != "ISFP" {
		t.Errorf("configured tie poles: %q, want ISFP", got)
	}
}
