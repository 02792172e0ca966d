// Package calc compiles the legacy infix calc expression language into a
// fixed-form postfix bytecode and evaluates it against a 12-slot input
// vector. Operands A through L address inputs 0 through 11.
package calc

import (
	"fmt"
	"strings"
)

// NumInputs is the size of the evaluation input vector.
const NumInputs = 12

// maxProgramSize bounds the compiled bytecode, mirroring the fixed buffer
// the legacy engine compiled into.
const maxProgramSize = 512

// Program is a compiled expression. The zero value is invalid and
// evaluates to (0, false).
type Program struct {
	source string
	code   []byte
	valid  bool
}

// Source returns the expression text the program was compiled from, after
// operator normalization.
func (p Program) Source() string { return p.source }

// Valid reports whether the program compiled successfully.
func (p Program) Valid() bool { return p.valid }

// Normalize rewrites C-style equality operators to the calc language's
// native tokens: `!=` becomes `#` and `==` becomes `=`. The `!=` rule must
// run first so it is not corrupted by the `==` rule.
func Normalize(expr string) string {
	expr = strings.ReplaceAll(expr, "!=", "#")
	expr = strings.ReplaceAll(expr, "==", "=")
	return expr
}

// Compile normalizes and compiles an expression. A compile error leaves
// the caller with an invalid Program; evaluation of an invalid Program
// reports ok=false rather than failing loudly.
func Compile(expr string) (Program, error) {
	src := Normalize(expr)
	c := &compiler{scan: newScanner(src)}
	if err := c.compile(); err != nil {
		return Program{source: src}, fmt.Errorf("calc: %w", err)
	}
	if len(c.code) > maxProgramSize {
		return Program{source: src}, fmt.Errorf("calc: expression too long (%d bytes)", len(c.code))
	}
	return Program{source: src, code: c.code, valid: true}, nil
}
