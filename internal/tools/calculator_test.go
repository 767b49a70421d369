package tools

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"5 + 3 * 2", 11},
		{"(5 + 3) * 2", 16},
		{"10 / 4", 2.5},
		{"10 % 3", 1},
		{"2^10", 1024},
		{"2^3^2", 512}, // right-associative
		{"-4 + 6", 2},
		{"-(2 + 3)", -5},
		{"factorial(6)", 720},
		{"factorial(0)", 1},
		{"sqrt(144)", 12},
		{"abs(-7.5)", 7.5},
		{"min(3, 1, 2)", 1},
		{"max(3, 1, 2)", 3},
		{"round(2.6)", 3},
		{"pow(2, 8)", 256},
		{"log(e)", 1},
		{"log10(1000)", 3},
		{"exp(0)", 1},
		{"sin(0)", 0},
		{"cos(0)", 1},
		{"pi", math.Pi},
		{"2 * pi", 2 * math.Pi},
		{"1.5e2 + 50", 200},
	}
	for _, tt := range tests {
		got, err := Evaluate(tt.expr)
		if err != nil {
			t.Errorf("Evaluate(%q): unexpected error: %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvaluateSinPi(t *testing.T) {
	got, err := Evaluate("sin(pi/2)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("sin(pi/2) = %v, want 1", got)
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		expr    string
		wantSub string
	}{
		{"1 / 0", "division by zero"},
		{"5 % 0", "modulo by zero"},
		{"factorial(-1)", "non-negative"},
		{"factorial(2.5)", "non-negative"},
		{"factorial(500)", "too large"},
		{"__import__('os')", "unexpected"},
		{"open(1)", "not allowed"},
		{"foo", "unknown name"},
		{"(1 + 2", "parenthesis"},
		{"1 + ", "unexpected"},
		{"2 3", "unexpected"},
		{"", "unexpected"},
	}
	for _, tt := range tests {
		_, err := Evaluate(tt.expr)
		if err == nil {
			t.Errorf("Evaluate(%q): expected error, got none", tt.expr)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantSub) {
			t.Errorf("Evaluate(%q) error = %q, want substring %q", tt.expr, err, tt.wantSub)
		}
	}
}

func TestCalculatorTool(t *testing.T) {
	tool := Calculator()
	if tool.Name != "calculator" {
		t.Errorf("tool name = %q, want calculator", tool.Name)
	}

	out, err := tool.Run(context.Background(), `{"expression": "6 * 7"}`)
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if out != "42" {
		t.Errorf("Run(6 * 7) = %q, want \"42\"", out)
	}

	// Evaluation problems come back as text for the model, not as errors.
	out, err = tool.Run(context.Background(), `{"expression": "1/0"}`)
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if !strings.Contains(out, "division by zero") {
		t.Errorf("Run(1/0) = %q, want division-by-zero message", out)
	}

	if _, err := tool.Run(context.Background(), `not json`); err == nil {
		t.Error("Run(invalid json): expected error, got none")
	}
}

func TestFormatNumber(t *testing.T) {
	if got := formatNumber(720); got != "720" {
		t.Errorf("formatNumber(720) = %q, want 720", got)
	}
	if got := formatNumber(2.5); got != "2.5" {
		t.Errorf("formatNumber(2.5) = %q, want 2.5", got)
	}
}
