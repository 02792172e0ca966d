package calc

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokOperand // A..L
	tokFunc    // ABS, SQR, MIN, ...
	tokPi
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokPower // ^ or **
	tokLParen
	tokRParen
	tokComma
	tokQuestion
	tokColon
	tokLess
	tokLessEq
	tokGreater
	tokGreaterEq
	tokEqual    // =
	tokNotEqual // #
	tokAndAnd   // && or AND
	tokOrOr     // || or OR
	tokXor      // XOR
	tokBitAnd   // &
	tokBitOr    // |
	tokNot      // !
	tokTilde    // ~
)

type token struct {
	kind tokenKind
	num  float64
	text string // operand letter or function name
	pos  int
}

type scanner struct {
	src string
	pos int
}

func newScanner(src string) *scanner {
	return &scanner{src: src}
}

func (s *scanner) next() (token, error) {
	for s.pos < len(s.src) && (s.src[s.pos] == ' ' || s.src[s.pos] == '\t') {
		s.pos++
	}
	if s.pos >= len(s.src) {
		return token{kind: tokEOF, pos: s.pos}, nil
	}

	start := s.pos
	c := s.src[s.pos]

	switch {
	case c >= '0' && c <= '9' || c == '.':
		return s.scanNumber()
	case isAlpha(c):
		return s.scanWord()
	}

	s.pos++
	switch c {
	case '+':
		return token{kind: tokPlus, pos: start}, nil
	case '-':
		return token{kind: tokMinus, pos: start}, nil
	case '*':
		if s.pos < len(s.src) && s.src[s.pos] == '*' {
			s.pos++
			return token{kind: tokPower, pos: start}, nil
		}
		return token{kind: tokStar, pos: start}, nil
	case '/':
		return token{kind: tokSlash, pos: start}, nil
	case '%':
		return token{kind: tokPercent, pos: start}, nil
	case '^':
		return token{kind: tokPower, pos: start}, nil
	case '(':
		return token{kind: tokLParen, pos: start}, nil
	case ')':
		return token{kind: tokRParen, pos: start}, nil
	case ',':
		return token{kind: tokComma, pos: start}, nil
	case '?':
		return token{kind: tokQuestion, pos: start}, nil
	case ':':
		return token{kind: tokColon, pos: start}, nil
	case '<':
		if s.pos < len(s.src) && s.src[s.pos] == '=' {
			s.pos++
			return token{kind: tokLessEq, pos: start}, nil
		}
		return token{kind: tokLess, pos: start}, nil
	case '>':
		if s.pos < len(s.src) && s.src[s.pos] == '=' {
			s.pos++
			return token{kind: tokGreaterEq, pos: start}, nil
		}
		return token{kind: tokGreater, pos: start}, nil
	case '=':
		return token{kind: tokEqual, pos: start}, nil
	case '#':
		return token{kind: tokNotEqual, pos: start}, nil
	case '&':
		if s.pos < len(s.src) && s.src[s.pos] == '&' {
			s.pos++
			return token{kind: tokAndAnd, pos: start}, nil
		}
		return token{kind: tokBitAnd, pos: start}, nil
	case '|':
		if s.pos < len(s.src) && s.src[s.pos] == '|' {
			s.pos++
			return token{kind: tokOrOr, pos: start}, nil
		}
		return token{kind: tokBitOr, pos: start}, nil
	case '!':
		return token{kind: tokNot, pos: start}, nil
	case '~':
		return token{kind: tokTilde, pos: start}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at position %d", c, start)
}

func (s *scanner) scanNumber() (token, error) {
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c >= '0' && c <= '9' || c == '.' {
			s.pos++
			continue
		}
		// Scientific notation, including a signed exponent.
		if (c == 'e' || c == 'E') && s.pos+1 < len(s.src) {
			n := s.src[s.pos+1]
			if n >= '0' && n <= '9' || ((n == '+' || n == '-') && s.pos+2 < len(s.src) &&
				s.src[s.pos+2] >= '0' && s.src[s.pos+2] <= '9') {
				s.pos += 2
				continue
			}
		}
		break
	}
	v, err := strconv.ParseFloat(s.src[start:s.pos], 64)
	if err != nil {
		return token{}, fmt.Errorf("bad number %q at position %d", s.src[start:s.pos], start)
	}
	return token{kind: tokNumber, num: v, pos: start}, nil
}

func (s *scanner) scanWord() (token, error) {
	start := s.pos
	for s.pos < len(s.src) && isAlpha(s.src[s.pos]) {
		s.pos++
	}
	word := s.src[start:s.pos]
	upper := strings.ToUpper(word)

	// Single letters A..L are operands addressing the input vector.
	if len(upper) == 1 && upper[0] >= 'A' && upper[0] <= 'L' {
		return token{kind: tokOperand, text: upper, pos: start}, nil
	}

	switch upper {
	case "PI":
		return token{kind: tokPi, pos: start}, nil
	case "AND":
		return token{kind: tokAndAnd, pos: start}, nil
	case "OR":
		return token{kind: tokOrOr, pos: start}, nil
	case "XOR":
		return token{kind: tokXor, pos: start}, nil
	case "NOT":
		return token{kind: tokNot, pos: start}, nil
	}

	if _, ok := functions[upper]; ok {
		return token{kind: tokFunc, text: upper, pos: start}, nil
	}
	return token{}, fmt.Errorf("unknown word %q at position %d", word, start)
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
