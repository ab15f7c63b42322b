// Package expr implements the small boolean predicate language used by
// WHERE-style filters: column references, string/numeric literals, the
// comparison operators = != > < >= <=, and the logical connectives
// AND/OR/NOT (also accepted as &&/||/!), evaluated left to right with
// the usual precedence via a shunting-yard infix-to-postfix pass.
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/RecDB/recdb/internal/schema"
)

var (
	andRe = regexp.MustCompile(`(?i)\bAND\b`)
	orRe  = regexp.MustCompile(`(?i)\bOR\b`)
	notRe = regexp.MustCompile(`(?i)\bNOT\b`)

	numericRe = regexp.MustCompile(`^[0-9]+$`)
)

var operatorTokens = map[string]bool{
	"=": true, "!=": true, ">": true, "<": true, ">=": true, "<=": true,
	"&&": true, "||": true, "!": true, "(": true, ")": true,
}

func normalize(s string) string {
	s = andRe.ReplaceAllString(s, "&&")
	s = orRe.ReplaceAllString(s, "||")
	s = notRe.ReplaceAllString(s, "!")
	return s
}

// tokenize splits a normalized predicate on whitespace, stripping a single
// layer of matching quotes from quoted tokens. Operators and identifiers
// must be whitespace-separated: "a = 1" tokenizes correctly, "a=1" does
// not split into three tokens.
func tokenize(s string) []string {
	fields := strings.Fields(s)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			if (f[0] == '"' && f[len(f)-1] == '"') || (f[0] == '\'' && f[len(f)-1] == '\'') {
				f = f[1 : len(f)-1]
			}
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func precedence(op string) int {
	switch op {
	case "!":
		return 3
	case "&&":
		return 2
	case "||":
		return 1
	}
	return 0
}

// infixToPostfix converts a normalized, tokenized predicate to postfix
// (reverse Polish) order via shunting-yard, treating any non-operator,
// non-paren token as an operand pushed straight to the output.
func infixToPostfix(tokens []string) []string {
	var output []string
	var ops []string

	pop := func() string {
		n := len(ops) - 1
		top := ops[n]
		ops = ops[:n]
		return top
	}

	for _, tok := range tokens {
		switch {
		case tok == "(":
			ops = append(ops, tok)
		case tok == ")":
			for len(ops) > 0 && ops[len(ops)-1] != "(" {
				output = append(output, pop())
			}
			if len(ops) > 0 {
				pop()
			}
		case tok == "&&" || tok == "||" || tok == "!":
			for len(ops) > 0 && precedence(ops[len(ops)-1]) >= precedence(tok) {
				output = append(output, pop())
			}
			ops = append(ops, tok)
		default:
			output = append(output, tok)
		}
	}
	for len(ops) > 0 {
		output = append(output, pop())
	}
	return output
}

func isDigits(s string) bool {
	return s != "" && numericRe.MatchString(s)
}

// MatchCond applies a single comparison operator. Per the original engine's
// deliberately narrow numeric detection, only unsigned runs of [0-9]+ on
// both sides are compared numerically; anything else (including negative
// numbers) compares lexicographically as byte strings.
func MatchCond(lhs, rhs, op string) bool {
	if isDigits(lhs) && isDigits(rhs) {
		// Values come from row fields and literals, both already
		// validated as [0-9]+, so the conversion cannot fail.
		l, _ := strconv.Atoi(lhs)
		r, _ := strconv.Atoi(rhs)
		switch op {
		case "=":
			return l == r
		case "!=":
			return l != r
		case ">":
			return l > r
		case "<":
			return l < r
		case ">=":
			return l >= r
		case "<=":
			return l <= r
		}
		return false
	}
	switch op {
	case "=":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	case ">":
		return lhs > rhs
	case "<":
		return lhs < rhs
	case ">=":
		return lhs >= rhs
	case "<=":
		return lhs <= rhs
	}
	return false
}

// evaluatePostfix walks a postfix token stream with a boolean/value stack:
// "!"/"&&"/"||" operate on the boolean stack, anything else is the start
// of a 3-token (lhs op rhs) comparison pushed as a boolean.
func evaluatePostfix(tokens []string) (bool, error) {
	var st []bool
	i := 0
	for i < len(tokens) {
		switch tokens[i] {
		case "&&":
			if len(st) < 2 {
				return false, fmt.Errorf("expr: malformed expression (stack underflow at &&)")
			}
			b, a := st[len(st)-1], st[len(st)-2]
			st = st[:len(st)-2]
			st = append(st, a && b)
			i++
		case "||":
			if len(st) < 2 {
				return false, fmt.Errorf("expr: malformed expression (stack underflow at ||)")
			}
			b, a := st[len(st)-1], st[len(st)-2]
			st = st[:len(st)-2]
			st = append(st, a || b)
			i++
		case "!":
			if len(st) < 1 {
				return false, fmt.Errorf("expr: malformed expression (stack underflow at !)")
			}
			a := st[len(st)-1]
			st = st[:len(st)-1]
			st = append(st, !a)
			i++
		default:
			if i+2 >= len(tokens) {
				return false, fmt.Errorf("expr: malformed comparison near %q", tokens[i])
			}
			lhs, op, rhs := tokens[i], tokens[i+1], tokens[i+2]
			st = append(st, MatchCond(lhs, rhs, op))
			i += 3
		}
	}
	if len(st) == 0 {
		return false, nil
	}
	return st[len(st)-1], nil
}

// Eval evaluates a normalized boolean predicate with no column
// substitution left to do (i.e. after Substitute has already replaced
// every column reference with a quoted literal).
func Eval(predicate string) (bool, error) {
	tokens := tokenize(normalize(predicate))
	postfix := infixToPostfix(tokens)
	return evaluatePostfix(postfix)
}

// Substitute replaces every whole-word occurrence of a column name in expr
// with its quoted value from row (same order as cols).
func Substitute(cols []*schema.Column, row []string, predicate string) string {
	result := predicate
	for i, c := range cols {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(c.Name) + `\b`)
		result = re.ReplaceAllString(result, `"`+row[i]+`"`)
	}
	return result
}

// EvalRow substitutes row's column values into predicate and evaluates it.
func EvalRow(cols []*schema.Column, row []string, predicate string) (bool, error) {
	return Eval(Substitute(cols, row, predicate))
}

// Validate checks that every bare identifier token in predicate names a
// known column. Unlike the engine this predicate language was ported from
// — whose column-validation pass returned true as soon as it recognized
// the *first* column reference, silently accepting later garbage tokens —
// this walks every token and fails on the first one that is neither an
// operator, a quoted/numeric literal, nor a known column name.
func Validate(cols []*schema.Column, predicate string) error {
	// Split without tokenize so quoted literals keep their quotes here and
	// can be told apart from bare identifiers.
	for _, tok := range strings.Fields(normalize(predicate)) {
		if len(tok) >= 2 && ((tok[0] == '"' && tok[len(tok)-1] == '"') || (tok[0] == '\'' && tok[len(tok)-1] == '\'')) {
			continue
		}
		if operatorTokens[tok] {
			continue
		}
		if isDigits(tok) {
			continue
		}
		found := false
		for _, c := range cols {
			if c.Name == tok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("expr: unknown identifier %q in predicate %q", tok, predicate)
		}
	}
	return nil
}
