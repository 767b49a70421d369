package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/avetisov/parley/internal/executor"
)

// Calculator returns the arithmetic evaluation tool. Expressions are parsed
// with a small recursive-descent parser over a fixed operator and function
// whitelist; nothing is ever executed.
func Calculator() executor.Tool {
	return executor.Tool{
		Name:        "calculator",
		Description: "Evaluate mathematical expressions: arithmetic, factorials, powers, trigonometry. Example inputs: \"5 * 8\", \"factorial(6)\", \"sin(pi/2)\".",
		Schema: &executor.Schema{
			Type: "object",
			Properties: map[string]executor.SchemaProperty{
				"expression": {Type: "string", Description: "Math expression to evaluate, e.g. \"5 + 3 * 2\""},
			},
			Required: []string{"expression"},
		},
		Run: func(ctx context.Context, args string) (string, error) {
			var in struct {
				Expression string `json:"expression"`
			}
			if err := json.Unmarshal([]byte(args), &in); err != nil {
				return "", fmt.Errorf("parsing arguments: %w", err)
			}
			result, err := Evaluate(in.Expression)
			if err != nil {
				// Report the problem as text so the model can retry or
				// explain, instead of failing the whole turn.
				return fmt.Sprintf("error evaluating expression: %v", err), nil
			}
			return formatNumber(result), nil
		},
	}
}

// Evaluate parses and evaluates an arithmetic expression.
//
// Grammar (precedence low to high):
//
//	expr   = term   { ("+" | "-") term }
//	term   = unary  { ("*" | "/" | "%") unary }
//	unary  = ("-" | "+") unary | power
//	power  = atom [ "^" unary ]
//	atom   = number | name | name "(" expr {"," expr} ")" | "(" expr ")"
func Evaluate(expression string) (float64, error) {
	p := &exprParser{input: expression}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

// Function and constant whitelist, mirroring a conservative math surface.
var calcFunctions = map[string]func(args []float64) (float64, error){
	"abs":       unaryFn(math.Abs),
	"sqrt":      unaryFn(math.Sqrt),
	"log":       unaryFn(math.Log),
	"log10":     unaryFn(math.Log10),
	"exp":       unaryFn(math.Exp),
	"sin":       unaryFn(math.Sin),
	"cos":       unaryFn(math.Cos),
	"tan":       unaryFn(math.Tan),
	"round":     unaryFn(math.Round),
	"factorial": factorial,
	"min":       variadicFn("min", math.Min),
	"max":       variadicFn("max", math.Max),
	"pow": func(args []float64) (float64, error) {
		if len(args) != 2 {
			return 0, fmt.Errorf("pow takes 2 arguments, got %d", len(args))
		}
		return math.Pow(args[0], args[1]), nil
	},
}

var calcConstants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

func unaryFn(f func(float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("function takes 1 argument, got %d", len(args))
		}
		return f(args[0]), nil
	}
}

func variadicFn(name string, f func(float64, float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) == 0 {
			return 0, fmt.Errorf("%s takes at least 1 argument", name)
		}
		acc := args[0]
		for _, a := range args[1:] {
			acc = f(acc, a)
		}
		return acc, nil
	}
}

func factorial(args []float64) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("factorial takes 1 argument, got %d", len(args))
	}
	n := args[0]
	if n < 0 || n != math.Trunc(n) {
		return 0, fmt.Errorf("factorial requires a non-negative integer")
	}
	if n > 170 {
		return 0, fmt.Errorf("factorial argument too large")
	}
	result := 1.0
	for i := 2.0; i <= n; i++ {
		result *= i
	}
	return result, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *exprParser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= rhs
		case '%':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			v = math.Mod(v, rhs)
		default:
			return v, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	case '+':
		p.pos++
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	if p.peek() == '^' {
		p.pos++
		// Right-associative: 2^3^2 = 2^(3^2).
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parseAtom() (float64, error) {
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil

	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()

	case unicode.IsLetter(rune(c)):
		return p.parseNameOrCall()
	}
	return 0, fmt.Errorf("unexpected character %q at position %d", c, p.pos)
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' ||
			((c == '+' || c == '-') && p.pos > start && (p.input[p.pos-1] == 'e' || p.input[p.pos-1] == 'E')) {
			p.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return v, nil
}

func (p *exprParser) parseNameOrCall() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsLetter(rune(p.input[p.pos])) || unicode.IsDigit(rune(p.input[p.pos]))) {
		p.pos++
	}
	name := strings.ToLower(p.input[start:p.pos])

	if p.peek() != '(' {
		if v, ok := calcConstants[name]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown name %q", name)
	}

	fn, ok := calcFunctions[name]
	if !ok {
		return 0, fmt.Errorf("function %q not allowed", name)
	}

	p.pos++ // consume '('
	var args []float64
	if p.peek() != ')' {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return 0, err
			}
			args = append(args, arg)
			if p.peek() != ',' {
				break
			}
			p.pos++
		}
	}
	if p.peek() != ')' {
		return 0, fmt.Errorf("missing closing parenthesis in call to %q", name)
	}
	p.pos++
	return fn(args)
}

// formatNumber renders integral results without a decimal point.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
