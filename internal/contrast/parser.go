package contrast

import (
	"fmt"
	"strconv"
	"unicode"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokName
	tokOp
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

// linear is a constant plus weighted columns.
type linear struct {
	constant float64
	coef     map[string]float64
	order    []string
}

func constant(v float64) linear { return linear{constant: v, coef: map[string]float64{}} }

func column(name string) linear {
	return linear{coef: map[string]float64{name: 1}, order: []string{name}}
}

func (l linear) isConstant() bool {
	for _, w := range l.coef {
		if w != 0 {
			return false
		}
	}
	return true
}

func (l linear) scale(k float64) linear {
	out := constant(l.constant * k)
	for _, name := range l.order {
		out.coef[name] = l.coef[name] * k
		out.order = append(out.order, name)
	}
	return out
}

func (l linear) add(r linear, sign float64) linear {
	out := l.scale(1)
	out.constant += sign * r.constant
	for _, name := range r.order {
		if _, ok := out.coef[name]; !ok {
			out.order = append(out.order, name)
		}
		out.coef[name] += sign * r.coef[name]
	}
	return out
}

type parser struct {
	src string
	pos int
	tok token
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w at offset %d in %q: %s", ErrSyntax, p.tok.pos, p.src, fmt.Sprintf(format, args...))
}

// scan reads the next token into p.tok.
func (p *parser) scan() error {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return nil
	}

	ch := p.src[p.pos]
	switch {
	case ch == '+' || ch == '-' || ch == '*' || ch == '/' || ch == '(' || ch == ')':
		p.pos++
		p.tok = token{kind: tokOp, text: string(ch), pos: start}

	case isDigit(ch) || ch == '.':
		for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
			q := p.pos + 1
			if q < len(p.src) && (p.src[q] == '+' || p.src[q] == '-') {
				q++
			}
			if q < len(p.src) && isDigit(p.src[q]) {
				for q < len(p.src) && isDigit(p.src[q]) {
					q++
				}
				p.pos = q
			}
		}
		text := p.src[start:p.pos]
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.tok = token{pos: start}
			return p.errorf("bad number %q", text)
		}
		p.tok = token{kind: tokNumber, text: text, num: v, pos: start}

	case isNameStart(ch):
		for p.pos < len(p.src) && isNamePart(p.src[p.pos]) {
			p.pos++
		}
		p.tok = token{kind: tokName, text: p.src[start:p.pos], pos: start}

	default:
		p.tok = token{pos: start}
		return p.errorf("unexpected character %q", ch)
	}
	return nil
}

func (p *parser) isOp(op string) bool { return p.tok.kind == tokOp && p.tok.text == op }

func (p *parser) expr() (linear, error) {
	l, err := p.term()
	if err != nil {
		return linear{}, err
	}
	for p.isOp("+") || p.isOp("-") {
		sign := 1.0
		if p.tok.text == "-" {
			sign = -1
		}
		if err := p.scan(); err != nil {
			return linear{}, err
		}
		r, err := p.term()
		if err != nil {
			return linear{}, err
		}
		l = l.add(r, sign)
	}
	return l, nil
}

func (p *parser) term() (linear, error) {
	l, err := p.factor()
	if err != nil {
		return linear{}, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.tok.text
		if err := p.scan(); err != nil {
			return linear{}, err
		}
		r, err := p.factor()
		if err != nil {
			return linear{}, err
		}

		switch {
		case op == "/" && !r.isConstant():
			return linear{}, fmt.Errorf("%w: division by a column in %q", ErrNonLinear, p.src)
		case op == "/" && r.constant == 0:
			return linear{}, p.errorf("division by zero")
		case op == "/":
			l = l.scale(1 / r.constant)
		case r.isConstant():
			l = l.scale(r.constant)
		case l.isConstant():
			l = r.scale(l.constant)
		default:
			return linear{}, fmt.Errorf("%w: product of columns in %q", ErrNonLinear, p.src)
		}
	}
	return l, nil
}

func (p *parser) factor() (linear, error) {
	switch {
	case p.tok.kind == tokNumber:
		v := p.tok.num
		return constant(v), p.scan()

	case p.tok.kind == tokName:
		name := p.tok.text
		return column(name), p.scan()

	case p.isOp("-") || p.isOp("+"):
		sign := 1.0
		if p.tok.text == "-" {
			sign = -1
		}
		if err := p.scan(); err != nil {
			return linear{}, err
		}
		f, err := p.factor()
		if err != nil {
			return linear{}, err
		}
		return f.scale(sign), nil

	case p.isOp("("):
		if err := p.scan(); err != nil {
			return linear{}, err
		}
		l, err := p.expr()
		if err != nil {
			return linear{}, err
		}
		if !p.isOp(")") {
			return linear{}, p.errorf("missing closing parenthesis")
		}
		return l, p.scan()

	case p.tok.kind == tokEOF:
		return linear{}, p.errorf("unexpected end of expression")
	}
	return linear{}, p.errorf("unexpected %q", p.tok.text)
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isNameStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isNamePart(ch byte) bool { return isNameStart(ch) || isDigit(ch) }
