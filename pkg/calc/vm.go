package calc

import (
	"encoding/binary"
	"math"
)

// evalStackSize bounds the value stack. Real display expressions are a
// handful of terms deep; the compiler's size limit keeps this safe.
const evalStackSize = 64

// Eval runs the program against the input vector. A runtime failure
// (divide by zero, domain error, non-finite result) reports ok=false; the
// caller treats that identically to a non-visible result. Eval never
// panics and is safe for concurrent use on the same Program.
func (p Program) Eval(inputs *[12]float64) (result float64, ok bool) {
	if !p.valid || len(p.code) == 0 || inputs == nil {
		return 0, false
	}

	var stack [evalStackSize]float64
	sp := 0
	pc := 0
	code := p.code

	push := func(v float64) bool {
		if sp >= evalStackSize {
			return false
		}
		stack[sp] = v
		sp++
		return true
	}

	for pc < len(code) {
		op := code[pc]
		pc++

		switch op {
		case opEnd:
			if sp != 1 {
				return 0, false
			}
			r := stack[0]
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return 0, false
			}
			return r, true

		case opLiteral:
			if pc+8 > len(code) {
				return 0, false
			}
			v := math.Float64frombits(binary.LittleEndian.Uint64(code[pc:]))
			pc += 8
			if !push(v) {
				return 0, false
			}

		case opInput:
			if pc >= len(code) || int(code[pc]) >= NumInputs {
				return 0, false
			}
			v := inputs[code[pc]]
			pc++
			if !push(v) {
				return 0, false
			}

		case opJumpIfZero:
			if pc+2 > len(code) || sp < 1 {
				return 0, false
			}
			target := int(binary.LittleEndian.Uint16(code[pc:]))
			pc += 2
			sp--
			if stack[sp] == 0 {
				if target > len(code) {
					return 0, false
				}
				pc = target
			}

		case opJump:
			if pc+2 > len(code) {
				return 0, false
			}
			target := int(binary.LittleEndian.Uint16(code[pc:]))
			if target > len(code) {
				return 0, false
			}
			pc = target

		default:
			if !p.apply(op, stack[:], &sp) {
				return 0, false
			}
		}
	}
	return 0, false
}

func (p Program) apply(op byte, stack []float64, sp *int) bool {
	pop := func() (float64, bool) {
		if *sp < 1 {
			return 0, false
		}
		*sp--
		return stack[*sp], true
	}
	push := func(v float64) bool {
		if *sp >= evalStackSize {
			return false
		}
		stack[*sp] = v
		*sp++
		return true
	}
	boolVal := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	// Unary operators and functions.
	switch op {
	case opNeg, opNot, opBitNot, opAbs, opSqrt, opCeil, opFloor, opLog10,
		opLn, opExp, opSin, opCos, opTan, opAsin, opAcos, opAtan,
		opSinh, opCosh, opTanh, opNint:
		a, k := pop()
		if !k {
			return false
		}
		var v float64
		switch op {
		case opNeg:
			v = -a
		case opNot:
			v = boolVal(a == 0)
		case opBitNot:
			v = float64(^int64(a))
		case opAbs:
			v = math.Abs(a)
		case opSqrt:
			if a < 0 {
				return false
			}
			v = math.Sqrt(a)
		case opCeil:
			v = math.Ceil(a)
		case opFloor:
			v = math.Floor(a)
		case opLog10:
			if a <= 0 {
				return false
			}
			v = math.Log10(a)
		case opLn:
			if a <= 0 {
				return false
			}
			v = math.Log(a)
		case opExp:
			v = math.Exp(a)
		case opSin:
			v = math.Sin(a)
		case opCos:
			v = math.Cos(a)
		case opTan:
			v = math.Tan(a)
		case opAsin:
			if a < -1 || a > 1 {
				return false
			}
			v = math.Asin(a)
		case opAcos:
			if a < -1 || a > 1 {
				return false
			}
			v = math.Acos(a)
		case opAtan:
			v = math.Atan(a)
		case opSinh:
			v = math.Sinh(a)
		case opCosh:
			v = math.Cosh(a)
		case opTanh:
			v = math.Tanh(a)
		case opNint:
			v = math.Round(a)
		}
		return push(v)
	}

	// Binary operators.
	b, k := pop()
	if !k {
		return false
	}
	a, k := pop()
	if !k {
		return false
	}
	var v float64
	switch op {
	case opAdd:
		v = a + b
	case opSub:
		v = a - b
	case opMul:
		v = a * b
	case opDiv:
		if b == 0 {
			return false
		}
		v = a / b
	case opMod:
		if b == 0 {
			return false
		}
		v = math.Mod(a, b)
	case opPow:
		v = math.Pow(a, b)
		if math.IsNaN(v) {
			return false
		}
	case opLess:
		v = boolVal(a < b)
	case opLessEq:
		v = boolVal(a <= b)
	case opGreater:
		v = boolVal(a > b)
	case opGreaterEq:
		v = boolVal(a >= b)
	case opEq:
		v = boolVal(a == b)
	case opNe:
		v = boolVal(a != b)
	case opAnd:
		v = boolVal(a != 0 && b != 0)
	case opOr:
		v = boolVal(a != 0 || b != 0)
	case opXor:
		v = boolVal((a != 0) != (b != 0))
	case opBitAnd:
		v = float64(int64(a) & int64(b))
	case opBitOr:
		v = float64(int64(a) | int64(b))
	case opMin:
		v = math.Min(a, b)
	case opMax:
		v = math.Max(a, b)
	default:
		return false
	}
	return push(v)
}
