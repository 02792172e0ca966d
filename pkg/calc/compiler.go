package calc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Bytecode opcodes. Literal is followed by an 8-byte little-endian float64,
// input by a 1-byte vector index, and the jump opcodes by a 2-byte
// little-endian absolute target.
const (
	opEnd byte = iota
	opLiteral
	opInput
	opAdd
	opSub
	opMul
	opDiv
	opMod
	opPow
	opNeg
	opNot
	opBitNot
	opLess
	opLessEq
	opGreater
	opGreaterEq
	opEq
	opNe
	opAnd
	opOr
	opXor
	opBitAnd
	opBitOr
	opAbs
	opSqrt
	opCeil
	opFloor
	opLog10
	opLn
	opExp
	opSin
	opCos
	opTan
	opAsin
	opAcos
	opAtan
	opSinh
	opCosh
	opTanh
	opNint
	opMin
	opMax
	opJumpIfZero
	opJump
)

type funcDef struct {
	op    byte
	arity int
}

var functions = map[string]funcDef{
	"ABS":   {opAbs, 1},
	"SQR":   {opSqrt, 1}, // legacy calc: SQR is square root
	"SQRT":  {opSqrt, 1},
	"MIN":   {opMin, 2},
	"MAX":   {opMax, 2},
	"CEIL":  {opCeil, 1},
	"FLOOR": {opFloor, 1},
	"LOG":   {opLog10, 1},
	"LOGE":  {opLn, 1},
	"LN":    {opLn, 1},
	"EXP":   {opExp, 1},
	"SIN":   {opSin, 1},
	"COS":   {opCos, 1},
	"TAN":   {opTan, 1},
	"ASIN":  {opAsin, 1},
	"ACOS":  {opAcos, 1},
	"ATAN":  {opAtan, 1},
	"SINH":  {opSinh, 1},
	"COSH":  {opCosh, 1},
	"TANH":  {opTanh, 1},
	"NINT":  {opNint, 1},
}

type compiler struct {
	scan *scanner
	cur  token
	code []byte
}

func (c *compiler) compile() error {
	if err := c.advance(); err != nil {
		return err
	}
	if c.cur.kind == tokEOF {
		return fmt.Errorf("empty expression")
	}
	if err := c.conditional(); err != nil {
		return err
	}
	if c.cur.kind != tokEOF {
		return fmt.Errorf("unexpected input at position %d", c.cur.pos)
	}
	c.emit(opEnd)
	return nil
}

func (c *compiler) advance() error {
	tok, err := c.scan.next()
	if err != nil {
		return err
	}
	c.cur = tok
	return nil
}

func (c *compiler) emit(b ...byte) {
	c.code = append(c.code, b...)
}

func (c *compiler) emitLiteral(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	c.emit(opLiteral)
	c.emit(buf[:]...)
}

// emitJump emits a jump opcode with a placeholder target and returns the
// offset to patch.
func (c *compiler) emitJump(op byte) int {
	c.emit(op, 0, 0)
	return len(c.code) - 2
}

func (c *compiler) patchJump(at int) error {
	target := len(c.code)
	if target > math.MaxUint16 {
		return fmt.Errorf("expression too long")
	}
	binary.LittleEndian.PutUint16(c.code[at:at+2], uint16(target))
	return nil
}

// conditional := or ("?" conditional ":" conditional)?
// The branches are compiled with jumps so the untaken branch is never
// evaluated, matching the legacy engine.
func (c *compiler) conditional() error {
	if err := c.or(); err != nil {
		return err
	}
	if c.cur.kind != tokQuestion {
		return nil
	}
	if err := c.advance(); err != nil {
		return err
	}
	jz := c.emitJump(opJumpIfZero)
	if err := c.conditional(); err != nil {
		return err
	}
	if c.cur.kind != tokColon {
		return fmt.Errorf("expected ':' at position %d", c.cur.pos)
	}
	if err := c.advance(); err != nil {
		return err
	}
	jmp := c.emitJump(opJump)
	if err := c.patchJump(jz); err != nil {
		return err
	}
	if err := c.conditional(); err != nil {
		return err
	}
	return c.patchJump(jmp)
}

func (c *compiler) or() error {
	if err := c.and(); err != nil {
		return err
	}
	for c.cur.kind == tokOrOr || c.cur.kind == tokXor {
		op := opOr
		if c.cur.kind == tokXor {
			op = opXor
		}
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.and(); err != nil {
			return err
		}
		c.emit(op)
	}
	return nil
}

func (c *compiler) and() error {
	if err := c.bitOr(); err != nil {
		return err
	}
	for c.cur.kind == tokAndAnd {
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.bitOr(); err != nil {
			return err
		}
		c.emit(opAnd)
	}
	return nil
}

func (c *compiler) bitOr() error {
	if err := c.bitAnd(); err != nil {
		return err
	}
	for c.cur.kind == tokBitOr {
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.bitAnd(); err != nil {
			return err
		}
		c.emit(opBitOr)
	}
	return nil
}

func (c *compiler) bitAnd() error {
	if err := c.comparison(); err != nil {
		return err
	}
	for c.cur.kind == tokBitAnd {
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.comparison(); err != nil {
			return err
		}
		c.emit(opBitAnd)
	}
	return nil
}

func (c *compiler) comparison() error {
	if err := c.additive(); err != nil {
		return err
	}
	for {
		var op byte
		switch c.cur.kind {
		case tokLess:
			op = opLess
		case tokLessEq:
			op = opLessEq
		case tokGreater:
			op = opGreater
		case tokGreaterEq:
			op = opGreaterEq
		case tokEqual:
			op = opEq
		case tokNotEqual:
			op = opNe
		default:
			return nil
		}
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.additive(); err != nil {
			return err
		}
		c.emit(op)
	}
}

func (c *compiler) additive() error {
	if err := c.multiplicative(); err != nil {
		return err
	}
	for c.cur.kind == tokPlus || c.cur.kind == tokMinus {
		op := opAdd
		if c.cur.kind == tokMinus {
			op = opSub
		}
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.multiplicative(); err != nil {
			return err
		}
		c.emit(op)
	}
	return nil
}

func (c *compiler) multiplicative() error {
	if err := c.unary(); err != nil {
		return err
	}
	for {
		var op byte
		switch c.cur.kind {
		case tokStar:
			op = opMul
		case tokSlash:
			op = opDiv
		case tokPercent:
			op = opMod
		default:
			return nil
		}
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.unary(); err != nil {
			return err
		}
		c.emit(op)
	}
}

func (c *compiler) unary() error {
	switch c.cur.kind {
	case tokMinus:
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.unary(); err != nil {
			return err
		}
		c.emit(opNeg)
		return nil
	case tokPlus:
		if err := c.advance(); err != nil {
			return err
		}
		return c.unary()
	case tokNot:
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.unary(); err != nil {
			return err
		}
		c.emit(opNot)
		return nil
	case tokTilde:
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.unary(); err != nil {
			return err
		}
		c.emit(opBitNot)
		return nil
	}
	return c.power()
}

// power := primary ("^" unary)?  Right-associative, so A^B^C parses as
// A^(B^C), and unary operators are allowed in the exponent.
func (c *compiler) power() error {
	if err := c.primary(); err != nil {
		return err
	}
	if c.cur.kind != tokPower {
		return nil
	}
	if err := c.advance(); err != nil {
		return err
	}
	if err := c.unary(); err != nil {
		return err
	}
	c.emit(opPow)
	return nil
}

func (c *compiler) primary() error {
	switch c.cur.kind {
	case tokNumber:
		c.emitLiteral(c.cur.num)
		return c.advance()
	case tokPi:
		c.emitLiteral(math.Pi)
		return c.advance()
	case tokOperand:
		c.emit(opInput, c.cur.text[0]-'A')
		return c.advance()
	case tokLParen:
		if err := c.advance(); err != nil {
			return err
		}
		if err := c.conditional(); err != nil {
			return err
		}
		if c.cur.kind != tokRParen {
			return fmt.Errorf("expected ')' at position %d", c.cur.pos)
		}
		return c.advance()
	case tokFunc:
		return c.call()
	}
	return fmt.Errorf("unexpected token at position %d", c.cur.pos)
}

func (c *compiler) call() error {
	def := functions[c.cur.text]
	name := c.cur.text
	if err := c.advance(); err != nil {
		return err
	}
	if c.cur.kind != tokLParen {
		return fmt.Errorf("expected '(' after %s", name)
	}
	if err := c.advance(); err != nil {
		return err
	}
	for i := 0; i < def.arity; i++ {
		if i > 0 {
			if c.cur.kind != tokComma {
				return fmt.Errorf("%s expects %d arguments", name, def.arity)
			}
			if err := c.advance(); err != nil {
				return err
			}
		}
		if err := c.conditional(); err != nil {
			return err
		}
	}
	if c.cur.kind != tokRParen {
		return fmt.Errorf("expected ')' after %s arguments", name)
	}
	c.emit(def.op)
	return c.advance()
}
