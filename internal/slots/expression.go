package slots

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	apperrors "dialog-manager/internal/common/errors"
)

// Slot expression grammar:
//
//	expr    := term { "or" term }
//	term    := factor { "and" factor }
//	factor  := IDENT | STRING | "(" expr ")"
//
// Keywords are case-insensitive. STRING is a single or double quoted slot name.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "slot name"
	case tokAnd:
		return "and"
	case tokOr:
		return "or"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Compile parses a boolean slot expression into disjunctive normal form: a
// list of clauses, any one of which satisfies the expression when all of its
// slots are present. Duplicate slots within a clause and duplicate clauses are
// collapsed; otherwise clause order follows the expression left to right.
func Compile(expression string) ([][]string, error) {
	toks, err := lex(expression)
	if err != nil {
		return nil, err
	}

	p := &parser{expr: expression, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, apperrors.NewSlotExpressionInvalidError(expression, "empty expression")
	}

	clauses, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok)
	}

	return uniqueClauses(clauses), nil
}

// Atoms returns the distinct slot names referenced by compiled clauses, in
// order of first appearance.
func Atoms(clauses [][]string) []string {
	var all []string
	for _, c := range clauses {
		all = append(all, c...)
	}
	return uniqueNames(all)
}

func lex(expression string) ([]token, error) {
	var toks []token
	runes := []rune(expression)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++

		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++

		case r == '\'' || r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != r {
				end++
			}
			if end >= len(runes) {
				return nil, apperrors.NewSlotExpressionInvalidError(expression,
					fmt.Sprintf("unterminated string at position %d", i))
			}
			name := strings.TrimSpace(string(runes[i+1 : end]))
			if name == "" {
				return nil, apperrors.NewSlotExpressionInvalidError(expression,
					fmt.Sprintf("empty slot name at position %d", i))
			}
			toks = append(toks, token{kind: tokIdent, text: name, pos: i})
			i = end + 1

		case isIdentRune(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			word := string(runes[start:i])
			switch strings.ToLower(word) {
			case "and":
				toks = append(toks, token{kind: tokAnd, text: word, pos: start})
			case "or":
				toks = append(toks, token{kind: tokOr, text: word, pos: start})
			case "not":
				return nil, apperrors.NewUnknownOperatorError(expression, word)
			default:
				toks = append(toks, token{kind: tokIdent, text: word, pos: start})
			}

		default:
			start := i
			for i < len(runes) && isOperatorRune(runes[i]) {
				i++
			}
			if i == start {
				i++
			}
			return nil, apperrors.NewUnknownOperatorError(expression, string(runes[start:i]))
		}
	}

	return append(toks, token{kind: tokEOF, pos: len(runes)}), nil
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isOperatorRune(r rune) bool {
	return !unicode.IsSpace(r) && !isIdentRune(r) && r != '(' && r != ')' && r != '\'' && r != '"'
}

type parser struct {
	expr string
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) unexpected(tok token) error {
	// A bare word where an operator belongs is an operator we do not support.
	if tok.kind == tokIdent && p.pos > 0 {
		prev := p.toks[p.pos-1].kind
		if prev == tokIdent || prev == tokRParen {
			return apperrors.NewUnknownOperatorError(p.expr, tok.text)
		}
	}
	return apperrors.NewSlotExpressionInvalidError(p.expr,
		fmt.Sprintf("unexpected %s at position %d", tok.kind, tok.pos))
}

func (p *parser) parseOr() ([][]string, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orClauses(left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() ([][]string, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = andClauses(left, right)
	}
	return left, nil
}

func (p *parser) parseFactor() ([][]string, error) {
	tok := p.peek()
	switch tok.kind {
	case tokIdent:
		p.next()
		return [][]string{{tok.text}}, nil

	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.peek(); closing.kind != tokRParen {
			if closing.kind == tokEOF {
				return nil, apperrors.NewSlotExpressionInvalidError(p.expr,
					fmt.Sprintf("missing ) for ( at position %d", tok.pos))
			}
			return nil, p.unexpected(closing)
		}
		p.next()
		return inner, nil
	}
	return nil, p.unexpected(tok)
}

// andClauses is the cartesian product of both sides, each pair concatenated.
func andClauses(left, right [][]string) [][]string {
	out := make([][]string, 0, len(left)*len(right))
	for _, l := range left {
		for _, r := range right {
			clause := make([]string, 0, len(l)+len(r))
			clause = append(clause, l...)
			clause = append(clause, r...)
			out = append(out, uniqueNames(clause))
		}
	}
	return out
}

func orClauses(left, right [][]string) [][]string {
	out := make([][]string, 0, len(left)+len(right))
	out = append(out, left...)
	return append(out, right...)
}

func uniqueClauses(clauses [][]string) [][]string {
	seen := make(map[string]struct{}, len(clauses))
	out := make([][]string, 0, len(clauses))
	for _, c := range clauses {
		key := clauseKey(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func clauseKey(clause []string) string {
	sorted := append([]string(nil), clause...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}
