package npy

import (
	"strconv"
	"strings"
)

// header holds the three keys a frame descriptor must carry.
type header struct {
	Descr        string
	FortranOrder bool
	Shape        []int
}

// parseHeader reads the descriptor dictionary with a fixed grammar:
//
//	dict  = "{" [ entry { "," entry } [ "," ] ] "}"
//	entry = string ":" value
//	value = string | "True" | "False" | int | "(" ints ")" | "[" ints "]"
//
// Nothing in the text is ever evaluated.
func parseHeader(text string) (header, error) {
	p := &headerParser{src: text}

	var (
		h                          header
		hasDescr, hasOrder, hasShp bool
	)

	p.skipSpace()
	if !p.consume('{') {
		return h, p.errorf("expected '{'")
	}
	for {
		p.skipSpace()
		if p.consume('}') {
			break
		}
		key, err := p.parseString()
		if err != nil {
			return h, err
		}
		p.skipSpace()
		if !p.consume(':') {
			return h, p.errorf("expected ':' after key %q", key)
		}
		p.skipSpace()

		switch key {
		case "descr":
			v, err := p.parseString()
			if err != nil {
				return h, err
			}
			h.Descr = v
			hasDescr = true
		case "fortran_order":
			v, err := p.parseBool()
			if err != nil {
				return h, err
			}
			h.FortranOrder = v
			hasOrder = true
		case "shape":
			v, err := p.parseIntSeq()
			if err != nil {
				return h, err
			}
			h.Shape = v
			hasShp = true
		default:
			if err := p.skipValue(); err != nil {
				return h, err
			}
		}

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		p.skipSpace()
		if p.consume('}') {
			break
		}
		return h, p.errorf("expected ',' or '}'")
	}

	p.skipSpace()
	if p.pos != len(p.src) {
		return h, p.errorf("trailing data after dictionary")
	}
	if !hasDescr || !hasOrder || !hasShp {
		return h, parseErrorf(MalformedHeader, "missing key (descr=%v fortran_order=%v shape=%v)", hasDescr, hasOrder, hasShp)
	}
	return h, nil
}

type headerParser struct {
	src string
	pos int
}

func (p *headerParser) errorf(format string, args ...interface{}) error {
	return parseErrorf(MalformedHeader, "offset %d: "+format, append([]interface{}{p.pos}, args...)...)
}

func (p *headerParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *headerParser) consume(c byte) bool {
	if p.peek() == c && p.pos < len(p.src) {
		p.pos++
		return true
	}
	return false
}

func (p *headerParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *headerParser) parseString() (string, error) {
	quote := p.peek()
	if quote != '\'' && quote != '"' {
		return "", p.errorf("expected quoted string")
	}
	p.pos++
	end := strings.IndexByte(p.src[p.pos:], quote)
	if end < 0 {
		return "", p.errorf("unterminated string")
	}
	s := p.src[p.pos : p.pos+end]
	if strings.IndexByte(s, '\\') >= 0 {
		return "", p.errorf("escape sequences are not supported")
	}
	p.pos += end + 1
	return s, nil
}

func (p *headerParser) parseBool() (bool, error) {
	rest := p.src[p.pos:]
	switch {
	case strings.HasPrefix(rest, "True"):
		p.pos += len("True")
		return true, nil
	case strings.HasPrefix(rest, "False"):
		p.pos += len("False")
		return false, nil
	}
	return false, p.errorf("expected True or False")
}

func (p *headerParser) parseInt() (int, error) {
	start := p.pos
	if p.peek() == '-' || p.peek() == '+' {
		p.pos++
	}
	digits := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == digits {
		return 0, p.errorf("expected integer")
	}
	v, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return 0, p.errorf("integer out of range: %s", p.src[start:p.pos])
	}
	// Python 2 era writers append L to long literals.
	p.consume('L')
	return v, nil
}

// parseIntSeq reads "(a, b)" or "[a, b]"; "(n,)" is a one-element tuple.
func (p *headerParser) parseIntSeq() ([]int, error) {
	var closer byte
	switch {
	case p.consume('('):
		closer = ')'
	case p.consume('['):
		closer = ']'
	default:
		return nil, p.errorf("expected tuple")
	}

	out := []int{}
	for {
		p.skipSpace()
		if p.consume(closer) {
			return out, nil
		}
		v, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if p.consume(',') {
			continue
		}
		if p.consume(closer) {
			return out, nil
		}
		return nil, p.errorf("expected ',' or %q in tuple", closer)
	}
}

// skipValue steps over the value of a key we do not use.
func (p *headerParser) skipValue() error {
	switch c := p.peek(); {
	case c == '\'' || c == '"':
		_, err := p.parseString()
		return err
	case c == 'T' || c == 'F':
		_, err := p.parseBool()
		return err
	case c == '(' || c == '[':
		_, err := p.parseIntSeq()
		return err
	default:
		_, err := p.parseInt()
		return err
	}
}
