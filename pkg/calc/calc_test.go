package calc

import (
	"math"
	"testing"
)

func eval(t *testing.T, src string, inputs [NumInputs]float64) (float64, bool) {
	t.Helper()
	prog, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return prog.Eval(&inputs)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A!=B", "A#B"},
		{"A==B", "A=B"},
		{"A!=B&&C==D", "A#B&&C=D"},
		// The != rule must run before the == rule.
		{"A!==B", "A#=B"},
		{"A=B", "A=B"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		src    string
		inputs [NumInputs]float64
		want   float64
	}{
		{"1+2", [NumInputs]float64{}, 3},
		{"2*3+4", [NumInputs]float64{}, 10},
		{"2+3*4", [NumInputs]float64{}, 14},
		{"(2+3)*4", [NumInputs]float64{}, 20},
		{"10%3", [NumInputs]float64{}, 1},
		{"2^10", [NumInputs]float64{}, 1024},
		{"2**10", [NumInputs]float64{}, 1024},
		{"2^3^2", [NumInputs]float64{}, 512},
		{"-A", [NumInputs]float64{5}, -5},
		{"A", [NumInputs]float64{42}, 42},
		{"B", [NumInputs]float64{0, 7}, 7},
		{"L", [NumInputs]float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, -3}, -3},
		{"A>B", [NumInputs]float64{2, 1}, 1},
		{"A<B", [NumInputs]float64{2, 1}, 0},
		{"A>=2", [NumInputs]float64{2}, 1},
		{"A<=1", [NumInputs]float64{2}, 0},
		{"A&&B", [NumInputs]float64{1, 1}, 1},
		{"A&&B", [NumInputs]float64{1, 0}, 0},
		{"A||B", [NumInputs]float64{0, 1}, 1},
		{"!A", [NumInputs]float64{0}, 1},
		{"A AND B", [NumInputs]float64{1, 1}, 1},
		{"A OR B", [NumInputs]float64{0, 1}, 1},
		{"A XOR B", [NumInputs]float64{1, 1}, 0},
		{"~3&7", [NumInputs]float64{}, 4},
		{"5|2", [NumInputs]float64{}, 7},
		{"A?10:20", [NumInputs]float64{1}, 10},
		{"A?10:20", [NumInputs]float64{0}, 20},
		{"A>1?B:C", [NumInputs]float64{5, 8, 9}, 8},
		{"ABS(-4)", [NumInputs]float64{}, 4},
		// Legacy calc: SQR is square root.
		{"SQR(16)", [NumInputs]float64{}, 4},
		{"SQRT(25)", [NumInputs]float64{}, 5},
		{"MIN(3,7)", [NumInputs]float64{}, 3},
		{"MAX(3,7)", [NumInputs]float64{}, 7},
		{"CEIL(1.2)", [NumInputs]float64{}, 2},
		{"FLOOR(1.8)", [NumInputs]float64{}, 1},
		{"LOG(1000)", [NumInputs]float64{}, 3},
		{"LOGE(1)", [NumInputs]float64{}, 0},
		{"LN(1)", [NumInputs]float64{}, 0},
		{"EXP(0)", [NumInputs]float64{}, 1},
		{"NINT(2.6)", [NumInputs]float64{}, 3},
		{"SIN(0)", [NumInputs]float64{}, 0},
		{"COS(0)", [NumInputs]float64{}, 1},
		{"TANH(0)", [NumInputs]float64{}, 0},
		{"PI", [NumInputs]float64{}, math.Pi},
		{"1.5e2", [NumInputs]float64{}, 150},
		{".5*4", [NumInputs]float64{}, 2},
	}
	for _, tt := range tests {
		got, ok := eval(t, tt.src, tt.inputs)
		if !ok {
			t.Errorf("%q: eval failed", tt.src)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%q = %g, want %g", tt.src, got, tt.want)
		}
	}
}

func TestEqualityOperators(t *testing.T) {
	inputs := [NumInputs]float64{1, 1}
	if got, ok := eval(t, "A!=B", inputs); !ok || got != 0 {
		t.Errorf("A!=B with A=B=1 = %g (ok=%v), want 0", got, ok)
	}
	if got, ok := eval(t, "A==B", inputs); !ok || got != 1 {
		t.Errorf("A==B with A=B=1 = %g (ok=%v), want 1", got, ok)
	}
}

func TestEvalFailures(t *testing.T) {
	tests := []struct {
		src    string
		inputs [NumInputs]float64
	}{
		{"1/A", [NumInputs]float64{0}},
		{"1%A", [NumInputs]float64{0}},
		{"LOG(A)", [NumInputs]float64{0}},
		{"LOG(-1)", [NumInputs]float64{}},
		{"LN(0)", [NumInputs]float64{}},
		{"SQRT(-1)", [NumInputs]float64{}},
		{"SQR(-1)", [NumInputs]float64{}},
		{"ASIN(2)", [NumInputs]float64{}},
		{"ACOS(-2)", [NumInputs]float64{}},
	}
	for _, tt := range tests {
		if got, ok := eval(t, tt.src, tt.inputs); ok {
			t.Errorf("%q: eval succeeded with %g, want failure", tt.src, got)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	bad := []string{
		"",
		"A+",
		"(A",
		"A)",
		"A?1",
		"MIN(1)",
		"MAX(1,2,3)",
		"FOO(1)",
		"1 2",
		"&&A",
	}
	for _, src := range bad {
		if _, err := Compile(src); err == nil {
			t.Errorf("Compile(%q) succeeded, want error", src)
		}
	}
}

func TestZeroProgramInvalid(t *testing.T) {
	var p Program
	if p.Valid() {
		t.Fatal("zero Program reports valid")
	}
	var inputs [NumInputs]float64
	if _, ok := p.Eval(&inputs); ok {
		t.Fatal("zero Program evaluated")
	}
}

func TestShortCircuitConditional(t *testing.T) {
	// The untaken branch must not execute: 1/B would fail with B=0.
	got, ok := eval(t, "A?2:1/B", [NumInputs]float64{1, 0})
	if !ok || got != 2 {
		t.Fatalf("A?2:1/B = %g (ok=%v), want 2", got, ok)
	}
}
