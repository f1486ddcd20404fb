package evaluator

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ErrNoThreshold means the condition does not state a numeric comparison.
var ErrNoThreshold = errors.New("no numeric threshold in condition")

var conditionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\n\r]+`},
	{Name: "Operator", Pattern: `<=|>=|=<|=>|==|!=|≤|≥|[<>=]`},
	{Name: "Number", Pattern: `[0-9][0-9,]*(?:\.[0-9]+)?|\.[0-9]+`},
	{Name: "Percent", Pattern: `%`},
	{Name: "Word", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[^\s]`},
})

// pCondition is a condition sentence as a flat token sequence. Conditions are
// prose, so the grammar only classifies tokens; meaning is recovered by scan.
type pCondition struct {
	Items []*pItem `parser:"@@*"`
}

type pItem struct {
	Number *pNumber `parser:"( @@"`
	Op     *string  `parser:"| @Operator"`
	Word   *string  `parser:"| @Word"`
	Punct  *string  `parser:"| @(Punct | Percent) )"`
}

type pNumber struct {
	Value   string `parser:"@Number"`
	Percent bool   `parser:"@Percent?"`
}

var conditionParser = participle.MustBuild[pCondition](
	participle.Lexer(conditionLexer),
	participle.Elide("Whitespace"),
)

// Comparator is the relation a compliant value must satisfy against the threshold.
type Comparator string

const (
	CmpLE Comparator = "<="
	CmpLT Comparator = "<"
	CmpGE Comparator = ">="
	CmpGT Comparator = ">"
	CmpEQ Comparator = "=="
)

// Threshold is the numeric rule recovered from a condition.
type Threshold struct {
	Op      Comparator
	Value   float64
	Percent bool
	// Words are the lowercased words of the condition, used to pick a metric.
	Words []string
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokNumber
	tokOp
	tokPunct
)

type token struct {
	kind    tokenKind
	text    string
	num     float64
	percent bool
}

type phrase struct {
	words []string
	op    Comparator
	// postfix phrases follow their number: "10 or less".
	postfix bool
}

func ph(op Comparator, s string) phrase { return phrase{words: strings.Fields(s), op: op} }

func postfix(op Comparator, s string) phrase {
	return phrase{words: strings.Fields(s), op: op, postfix: true}
}

// phrases are matched longest first.
var phrases = func() []phrase {
	p := []phrase{
		ph(CmpLE, "less than or equal to"),
		ph(CmpLE, "not to exceed"),
		ph(CmpLE, "not exceed"),
		ph(CmpLE, "not exceeding"),
		ph(CmpLE, "cannot exceed"),
		ph(CmpLE, "no more than"),
		ph(CmpLE, "not more than"),
		ph(CmpLE, "not be more than"),
		ph(CmpLE, "no greater than"),
		ph(CmpLE, "not greater than"),
		ph(CmpLE, "not above"),
		ph(CmpLE, "at most"),
		ph(CmpLE, "up to"),
		ph(CmpLE, "capped at"),
		ph(CmpLE, "limited to"),
		ph(CmpLE, "maximum"),
		ph(CmpLE, "max"),
		ph(CmpLE, "cap"),
		ph(CmpLE, "ceiling"),
		ph(CmpLE, "limit"),
		postfix(CmpLE, "or less"),
		postfix(CmpLE, "or fewer"),
		postfix(CmpLE, "or below"),
		postfix(CmpLE, "or lower"),

		ph(CmpGE, "greater than or equal to"),
		ph(CmpGE, "more than or equal to"),
		ph(CmpGE, "no less than"),
		ph(CmpGE, "not less than"),
		ph(CmpGE, "not be less than"),
		ph(CmpGE, "no fewer than"),
		ph(CmpGE, "not fewer than"),
		ph(CmpGE, "not fall below"),
		ph(CmpGE, "not drop below"),
		ph(CmpGE, "not go below"),
		ph(CmpGE, "not below"),
		ph(CmpGE, "at least"),
		ph(CmpGE, "minimum"),
		ph(CmpGE, "min"),
		ph(CmpGE, "floor"),
		postfix(CmpGE, "or more"),
		postfix(CmpGE, "or greater"),
		postfix(CmpGE, "or above"),
		postfix(CmpGE, "or higher"),

		ph(CmpLT, "less than"),
		ph(CmpLT, "fewer than"),
		ph(CmpLT, "lower than"),
		ph(CmpLT, "below"),
		ph(CmpLT, "under"),

		ph(CmpGT, "more than"),
		ph(CmpGT, "greater than"),
		ph(CmpGT, "higher than"),
		ph(CmpGT, "above"),
		ph(CmpGT, "exceed"),
		ph(CmpGT, "exceeds"),
		ph(CmpGT, "exceeding"),
		ph(CmpGT, "over"),

		ph(CmpEQ, "equal to"),
		ph(CmpEQ, "equals"),
		ph(CmpEQ, "exactly"),
	}
	sort.SliceStable(p, func(i, j int) bool { return len(p[i].words) > len(p[j].words) })
	return p
}()

var symbolOps = map[string]Comparator{
	"<=": CmpLE,
	"=<": CmpLE,
	"≤":  CmpLE,
	"<":  CmpLT,
	">=": CmpGE,
	"=>": CmpGE,
	"≥":  CmpGE,
	">":  CmpGT,
	"==": CmpEQ,
	"=":  CmpEQ,
}

// maxGap bounds how far a comparator may sit from its number.
const maxGap = 6

var multipliers = map[string]float64{
	"k": 1e3, "thousand": 1e3,
	"m": 1e6, "mm": 1e6, "million": 1e6,
	"bn": 1e9, "billion": 1e9,
}

// ParseThreshold extracts a numeric comparison from a condition such as
// "max_discount_percentage <= 10", "discount ≤ 10%" or
// "Maximum discount not to exceed 10% of list price".
func ParseThreshold(condition string) (*Threshold, error) {
	parsed, err := conditionParser.ParseString("", condition)
	if err != nil {
		return nil, fmt.Errorf("parse condition: %w", err)
	}
	toks := tokens(parsed)

	words := make([]string, 0, len(toks))
	for _, t := range toks {
		if t.kind == tokWord {
			words = append(words, t.text)
		}
	}

	// Symbols beat multi-word phrases, which beat single words; among equals
	// the earliest wins. "over a 30 day period, at least 500" is a minimum of 500.
	var best *Threshold
	bestRank := 0
	for i := 0; i < len(toks); i++ {
		op, width, post, ok := comparatorAt(toks, i)
		if !ok {
			continue
		}
		var num *token
		if post {
			num = numberBefore(toks, i)
		} else {
			num = numberAfter(toks, i+width)
		}
		if num == nil {
			continue
		}
		rank := 1
		switch {
		case toks[i].kind == tokOp:
			rank = 3
		case width > 1:
			rank = 2
		}
		if rank > bestRank {
			best = &Threshold{Op: op, Value: num.num, Percent: num.percent, Words: words}
			bestRank = rank
		}
		i += width - 1
	}
	if best != nil {
		return best, nil
	}
	return nil, ErrNoThreshold
}

func tokens(c *pCondition) []token {
	out := make([]token, 0, len(c.Items))
	for _, it := range c.Items {
		switch {
		case it.Number != nil:
			v, err := strconv.ParseFloat(strings.ReplaceAll(it.Number.Value, ",", ""), 64)
			if err != nil {
				continue
			}
			out = append(out, token{kind: tokNumber, text: it.Number.Value, num: v, percent: it.Number.Percent})
		case it.Op != nil:
			out = append(out, token{kind: tokOp, text: *it.Op})
		case it.Word != nil:
			w := strings.ToLower(*it.Word)
			// "10 percent", "10 pct" and "10k" modify the preceding number.
			if n := len(out); n > 0 && out[n-1].kind == tokNumber {
				if w == "percent" || w == "pct" {
					out[n-1].percent = true
					continue
				}
				if m, ok := multipliers[w]; ok {
					out[n-1].num *= m
					continue
				}
			}
			out = append(out, token{kind: tokWord, text: w})
		case it.Punct != nil:
			out = append(out, token{kind: tokPunct, text: *it.Punct})
		}
	}
	return out
}

func comparatorAt(toks []token, i int) (Comparator, int, bool, bool) {
	if toks[i].kind == tokOp {
		op, ok := symbolOps[toks[i].text]
		return op, 1, false, ok
	}
	for _, p := range phrases {
		if matchWords(toks, i, p.words) {
			return p.op, len(p.words), p.postfix, true
		}
	}
	return "", 0, false, false
}

func matchWords(toks []token, i int, words []string) bool {
	if i+len(words) > len(toks) {
		return false
	}
	for k, w := range words {
		t := toks[i+k]
		if t.kind != tokWord || t.text != w {
			return false
		}
	}
	return true
}

// numberAfter returns the first number within maxGap tokens after i, unless
// another comparator comes first and claims it.
func numberAfter(toks []token, i int) *token {
	for j := i; j < len(toks) && j < i+maxGap; j++ {
		if toks[j].kind == tokNumber {
			return &toks[j]
		}
		if _, _, _, ok := comparatorAt(toks, j); ok {
			return nil
		}
	}
	return nil
}

func numberBefore(toks []token, i int) *token {
	for j := i - 1; j >= 0 && j >= i-maxGap; j-- {
		if toks[j].kind == tokNumber {
			return &toks[j]
		}
		if toks[j].kind == tokOp {
			return nil
		}
	}
	return nil
}
