package slots

import (
	"testing"

	apperrors "dialog-manager/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_DNF(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected [][]string
	}{
		{"single atom", "a", [][]string{{"a"}}},
		{"and", "a and b", [][]string{{"a", "b"}}},
		{"or", "a or b", [][]string{{"a"}, {"b"}}},
		{"nested", "a and (b or bb) and c", [][]string{{"a", "b", "c"}, {"a", "bb", "c"}}},
		{"product", "(a or aa) and (b or bb)", [][]string{{"a", "b"}, {"a", "bb"}, {"aa", "b"}, {"aa", "bb"}}},
		{"union", "(a or aa) or (b or bb)", [][]string{{"a"}, {"aa"}, {"b"}, {"bb"}}},
		{"and binds tighter", "a or b and c", [][]string{{"a"}, {"b", "c"}}},
		{"case insensitive keywords", "a AND b Or c", [][]string{{"a", "b"}, {"c"}}},
		{"quoted atoms", `'start date' and "city"`, [][]string{{"start date", "city"}}},
		{"duplicate atom collapsed", "a and a", [][]string{{"a"}}},
		{"duplicate clause collapsed", "(a and b) or (b and a)", [][]string{{"a", "b"}}},
		{"unicode names", "城市 and 日期", [][]string{{"城市", "日期"}}},
		{"deep parens", "((a))", [][]string{{"a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		code apperrors.ErrorCode
	}{
		{"empty", "", apperrors.ErrCodeSlotExpressionInvalid},
		{"blank", "   ", apperrors.ErrCodeSlotExpressionInvalid},
		{"dangling and", "a and", apperrors.ErrCodeSlotExpressionInvalid},
		{"leading or", "or a", apperrors.ErrCodeSlotExpressionInvalid},
		{"unbalanced open", "(a and b", apperrors.ErrCodeSlotExpressionInvalid},
		{"unbalanced close", "a and b)", apperrors.ErrCodeSlotExpressionInvalid},
		{"empty parens", "()", apperrors.ErrCodeSlotExpressionInvalid},
		{"unterminated string", "'a and b", apperrors.ErrCodeSlotExpressionInvalid},
		{"empty string atom", "'' and b", apperrors.ErrCodeSlotExpressionInvalid},
		{"not", "a and not b", apperrors.ErrCodeUnknownOperator},
		{"symbolic and", "a && b", apperrors.ErrCodeUnknownOperator},
		{"symbolic or", "a | b", apperrors.ErrCodeUnknownOperator},
		{"comparison", "a == b", apperrors.ErrCodeUnknownOperator},
		{"xor word", "a xor b", apperrors.ErrCodeUnknownOperator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			assert.True(t, apperrors.IsConfigurationError(err))
		})
	}
}

// evalExpr evaluates the source expression directly for a truth assignment.
func evalExpr(t *testing.T, expr string, truth map[string]bool) bool {
	t.Helper()
	toks, err := lex(expr)
	require.NoError(t, err)
	pos := 0

	var parseOr, parseAnd, parseFactor func() bool
	parseFactor = func() bool {
		tok := toks[pos]
		pos++
		if tok.kind == tokLParen {
			v := parseOr()
			pos++
			return v
		}
		return truth[tok.text]
	}
	parseAnd = func() bool {
		v := parseFactor()
		for toks[pos].kind == tokAnd {
			pos++
			r := parseFactor()
			v = v && r
		}
		return v
	}
	parseOr = func() bool {
		v := parseAnd()
		for toks[pos].kind == tokOr {
			pos++
			r := parseAnd()
			v = v || r
		}
		return v
	}
	return parseOr()
}

func evalDNF(clauses [][]string, truth map[string]bool) bool {
	for _, clause := range clauses {
		all := true
		for _, atom := range clause {
			all = all && truth[atom]
		}
		if all {
			return true
		}
	}
	return false
}

func TestCompile_EquivalentForEveryAssignment(t *testing.T) {
	exprs := []string{
		"a and (b or c)",
		"(a or b) and (b or c)",
		"a or (b and c) or (a and c)",
		"((a or b) and c) or (a and (b or (c and a)))",
		"a and b and c",
		"a or b or c",
	}
	atoms := []string{"a", "b", "c"}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			clauses, err := Compile(expr)
			require.NoError(t, err)

			for mask := 0; mask < 1<<len(atoms); mask++ {
				truth := map[string]bool{}
				for i, a := range atoms {
					truth[a] = mask&(1<<i) != 0
				}
				assert.Equal(t, evalExpr(t, expr, truth), evalDNF(clauses, truth), "assignment %v", truth)
			}
		})
	}
}

func TestAtoms(t *testing.T) {
	clauses, err := Compile("a and (b or c) and a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, Atoms(clauses))
}
