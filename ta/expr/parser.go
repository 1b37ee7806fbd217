// Package expr parses expression text into the IR. The grammar is
// infix arithmetic and comparisons with standard precedence,
// and/or/not, bare field identifiers, qualified source references,
// filter and aggregation method calls, and time-shift attribute
// suffixes.
//
// File organization:
//   - token.go: token types and positions
//   - lexer.go: text -> tokens
//   - parser.go: tokens -> IR, indicator argument binding
//   - timeshift.go: attribute-suffix recognition
package expr

import (
	"fmt"
	"strconv"

	ta "github.com/laakhay/ta/ta"
	"github.com/laakhay/ta/ta/ir"
	"github.com/laakhay/ta/ta/registry"
)

// Parser converts expression text into IR nodes. Indicator names,
// aliases, and parameter order are resolved against the registry at
// parse time, so unknown indicators fail before planning.
type Parser struct {
	reg *registry.Registry
}

// NewParser creates a parser bound to an indicator registry.
func NewParser(reg *registry.Registry) *Parser {
	return &Parser{reg: reg}
}

// Parse converts one expression into IR.
func (p *Parser) Parse(text string) (ir.Node, error) {
	lexer := NewLexer(text)
	if err := lexer.Lex(); err != nil {
		return nil, err
	}
	if lexer.PeekToken().Type == TokenEOF {
		return nil, &ta.ParseError{Position: 1, Message: "expression text cannot be empty"}
	}
	ps := &parseState{parser: p, lexer: lexer}
	node, err := ps.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := lexer.PeekToken(); tok.Type != TokenEOF {
		return nil, errAt(tok, "unexpected token '%s'", tok.Value)
	}
	return node, nil
}

type parseState struct {
	parser *Parser
	lexer  *Lexer
}

func errAt(tok Token, format string, args ...interface{}) error {
	return &ta.ParseError{Position: tok.Col, Message: fmt.Sprintf(format, args...)}
}

func (s *parseState) parseOr() (ir.Node, error) {
	left, err := s.parseAnd()
	if err != nil {
		return nil, err
	}
	for s.lexer.PeekToken().Type == TokenOr {
		s.lexer.NextToken()
		right, err := s.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ir.BinaryOp{Op: ta.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (s *parseState) parseAnd() (ir.Node, error) {
	left, err := s.parseNot()
	if err != nil {
		return nil, err
	}
	for s.lexer.PeekToken().Type == TokenAnd {
		s.lexer.NextToken()
		right, err := s.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ir.BinaryOp{Op: ta.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (s *parseState) parseNot() (ir.Node, error) {
	if s.lexer.PeekToken().Type == TokenNot {
		s.lexer.NextToken()
		operand, err := s.parseNot()
		if err != nil {
			return nil, err
		}
		return &ir.UnaryOp{Op: ta.OpNot, Operand: operand}, nil
	}
	return s.parseComparison()
}

var comparisonOps = map[TokenType]string{
	TokenEq: ta.OpEq,
	TokenNe: ta.OpNe,
	TokenLt: ta.OpLt,
	TokenLe: ta.OpLe,
	TokenGt: ta.OpGt,
	TokenGe: ta.OpGe,
}

// parseComparison handles chained comparisons (a < b < c) as a
// conjunction of pairwise comparisons.
func (s *parseState) parseComparison() (ir.Node, error) {
	left, err := s.parseAdditive()
	if err != nil {
		return nil, err
	}
	var result ir.Node
	for {
		op, ok := comparisonOps[s.lexer.PeekToken().Type]
		if !ok {
			break
		}
		s.lexer.NextToken()
		right, err := s.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp := &ir.BinaryOp{Op: op, Left: left, Right: right}
		if result == nil {
			result = cmp
		} else {
			result = &ir.BinaryOp{Op: ta.OpAnd, Left: result, Right: cmp}
		}
		left = right
	}
	if result != nil {
		return result, nil
	}
	return left, nil
}

func (s *parseState) parseAdditive() (ir.Node, error) {
	left, err := s.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch s.lexer.PeekToken().Type {
		case TokenPlus:
			op = ta.OpAdd
		case TokenMinus:
			op = ta.OpSub
		default:
			return left, nil
		}
		s.lexer.NextToken()
		right, err := s.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ir.BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (s *parseState) parseTerm() (ir.Node, error) {
	left, err := s.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch s.lexer.PeekToken().Type {
		case TokenStar:
			op = ta.OpMul
		case TokenSlash:
			op = ta.OpDiv
		case TokenPercent:
			op = ta.OpMod
		default:
			return left, nil
		}
		s.lexer.NextToken()
		right, err := s.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ir.BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (s *parseState) parseUnary() (ir.Node, error) {
	switch s.lexer.PeekToken().Type {
	case TokenMinus:
		s.lexer.NextToken()
		operand, err := s.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold negation into numeric literals.
		if lit, ok := operand.(*ir.Literal); ok {
			if f, isNum := lit.Value.(float64); isNum {
				return &ir.Literal{Value: -f}, nil
			}
		}
		return &ir.UnaryOp{Op: ta.OpNeg, Operand: operand}, nil
	case TokenPlus:
		s.lexer.NextToken()
		operand, err := s.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ir.UnaryOp{Op: ta.OpPos, Operand: operand}, nil
	}
	return s.parsePower()
}

// parsePower is right-associative: a ** b ** c = a ** (b ** c).
func (s *parseState) parsePower() (ir.Node, error) {
	base, err := s.parsePostfix()
	if err != nil {
		return nil, err
	}
	if s.lexer.PeekToken().Type == TokenPower {
		s.lexer.NextToken()
		exp, err := s.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ir.BinaryOp{Op: ta.OpPow, Left: base, Right: exp}, nil
	}
	return base, nil
}

var aggregationOps = map[string]bool{"sum": true, "avg": true, "max": true, "min": true, "count": true}

// parsePostfix handles attribute chains and method calls following a
// primary expression.
func (s *parseState) parsePostfix() (ir.Node, error) {
	node, err := s.parsePrimary()
	if err != nil {
		return nil, err
	}
	for s.lexer.PeekToken().Type == TokenDot {
		s.lexer.NextToken()
		attrTok := s.lexer.NextToken()
		if attrTok.Type != TokenIdent {
			return nil, errAt(attrTok, "expected attribute name after '.'")
		}
		attr := attrTok.Value

		// Time-shift suffixes first: close.24h_ago, volume.change_pct_24h.
		if shifted := parseTimeShiftSuffix(node, attr); shifted != nil {
			node = shifted
			continue
		}

		// Method calls: .filter(cond), .sum(field), .count().
		if s.lexer.PeekToken().Type == TokenLParen {
			if attr == "filter" {
				n, err := s.parseFilterCall(node, attrTok)
				if err != nil {
					return nil, err
				}
				node = n
				continue
			}
			if aggregationOps[attr] {
				n, err := s.parseAggregateCall(node, attr, attrTok)
				if err != nil {
					return nil, err
				}
				node = n
				continue
			}
			return nil, errAt(attrTok, "unknown method '%s'", attr)
		}

		// Aggregation property: trades.count.
		if attr == "count" {
			node = &ir.Aggregate{Series: node, Op: "count"}
			continue
		}

		// Source field access: trades.volume, ohlcv.close.
		if ref, ok := node.(*ir.SourceRef); ok {
			node = &ir.SourceRef{Source: ref.Source, Field: attr, Symbol: ref.Symbol, Timeframe: ref.Timeframe}
			continue
		}

		// Named output of a multi-output expression: macd(...).signal.
		node = &ir.MemberAccess{Expr: node, Member: attr}
	}
	return node, nil
}

func (s *parseState) parsePrimary() (ir.Node, error) {
	tok := s.lexer.NextToken()
	switch tok.Type {
	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, errAt(tok, "invalid number '%s'", tok.Value)
		}
		return &ir.Literal{Value: f}, nil
	case TokenString:
		return &ir.Literal{Value: tok.Value}, nil
	case TokenLParen:
		node, err := s.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := s.lexer.NextToken(); closing.Type != TokenRParen {
			return nil, errAt(closing, "expected ')'")
		}
		return node, nil
	case TokenIdent:
		return s.parseIdent(tok)
	}
	return nil, errAt(tok, "unexpected token '%s'", tok.Value)
}

func (s *parseState) parseIdent(tok Token) (ir.Node, error) {
	name := tok.Value

	if s.lexer.PeekToken().Type == TokenLParen {
		return s.parseCall(name, tok)
	}

	switch name {
	case "true":
		return &ir.Literal{Value: true}, nil
	case "false":
		return &ir.Literal{Value: false}, nil
	}

	// Bare sources support method calls and qualified fields:
	// trades.filter(...), ohlcv.close.
	if ta.KnownSource(name) {
		field := ""
		if name == ta.SourceOHLCV {
			field = "close"
		}
		return &ir.SourceRef{Source: name, Field: field}, nil
	}

	// Bare field identifiers desugar to select(field).
	if ta.KnownBareField(name) {
		return &ir.Call{
			Name:   "select",
			Kwargs: map[string]ir.Node{"field": &ir.Literal{Value: ta.CanonicalField(name)}},
		}, nil
	}

	return nil, errAt(tok, "unknown identifier '%s'", name)
}

func (s *parseState) parseFilterCall(series ir.Node, tok Token) (ir.Node, error) {
	args, kwargs, err := s.parseArgList()
	if err != nil {
		return nil, err
	}
	if len(args) != 1 || len(kwargs) > 0 {
		return nil, errAt(tok, "filter() requires exactly one argument (the condition)")
	}
	return &ir.Filter{Series: series, Condition: args[0]}, nil
}

func (s *parseState) parseAggregateCall(series ir.Node, op string, tok Token) (ir.Node, error) {
	// A single bare identifier names a source field; it is taken as
	// written so the typechecker can validate it against the schema.
	if l := s.lexer; l.current+2 < len(l.tokens) && l.tokens[l.current].Type == TokenLParen &&
		l.tokens[l.current+1].Type == TokenIdent && l.tokens[l.current+2].Type == TokenRParen {
		field := l.tokens[l.current+1].Value
		l.current += 3
		return &ir.Aggregate{Series: series, Op: op, Field: ta.CanonicalField(field)}, nil
	}
	args, kwargs, err := s.parseArgList()
	if err != nil {
		return nil, err
	}
	if len(kwargs) > 0 || len(args) > 1 {
		return nil, errAt(tok, "%s() accepts at most one argument (field name)", op)
	}
	field := ""
	if len(args) == 1 {
		switch v := args[0].(type) {
		case *ir.Literal:
			str, ok := v.Value.(string)
			if !ok {
				return nil, errAt(tok, "%s() requires a field name as argument", op)
			}
			field = str
		case *ir.Call:
			// Bare identifiers desugared to select(field).
			if v.Name == "select" {
				if lit, ok := v.Kwargs["field"].(*ir.Literal); ok {
					field, _ = lit.Value.(string)
					break
				}
			}
			return nil, errAt(tok, "%s() requires a field name as argument", op)
		case *ir.SourceRef:
			field = v.Field
		default:
			return nil, errAt(tok, "%s() requires a field name as argument", op)
		}
	}
	return &ir.Aggregate{Series: series, Op: op, Field: field}, nil
}

// rawArg is one parsed call argument, positional or keyword.
type rawArg struct {
	name string
	node ir.Node
	col  int
}

func (s *parseState) parseArgList() ([]ir.Node, []rawArg, error) {
	open := s.lexer.NextToken()
	if open.Type != TokenLParen {
		return nil, nil, errAt(open, "expected '('")
	}
	var args []ir.Node
	var kwargs []rawArg
	if s.lexer.PeekToken().Type == TokenRParen {
		s.lexer.NextToken()
		return args, kwargs, nil
	}
	for {
		tok := s.lexer.PeekToken()
		// Keyword argument: ident '=' expression.
		if tok.Type == TokenIdent {
			saved := s.lexer.current
			ident := s.lexer.NextToken()
			if s.lexer.PeekToken().Type == TokenAssign {
				s.lexer.NextToken()
				value, err := s.parseOr()
				if err != nil {
					return nil, nil, err
				}
				kwargs = append(kwargs, rawArg{name: ident.Value, node: value, col: ident.Col})
				if !s.finishArg() {
					return args, kwargs, s.expectClose()
				}
				continue
			}
			s.lexer.current = saved
		}
		if len(kwargs) > 0 {
			return nil, nil, errAt(tok, "positional argument after keyword argument")
		}
		value, err := s.parseOr()
		if err != nil {
			return nil, nil, err
		}
		args = append(args, value)
		if !s.finishArg() {
			return args, kwargs, s.expectClose()
		}
	}
}

// finishArg consumes a comma separator, reporting false at the end
// of the list.
func (s *parseState) finishArg() bool {
	if s.lexer.PeekToken().Type == TokenComma {
		s.lexer.NextToken()
		return true
	}
	return false
}

func (s *parseState) expectClose() error {
	if tok := s.lexer.NextToken(); tok.Type != TokenRParen {
		return errAt(tok, "expected ')'")
	}
	return nil
}

// parseCall parses an indicator call and binds its arguments per the
// registry spec: expression-typed positional arguments fill input
// slots, literals bind to declared parameters in order, and keyword
// arguments override by canonical name.
func (s *parseState) parseCall(name string, tok Token) (ir.Node, error) {
	args, kwargs, err := s.parseArgList()
	if err != nil {
		return nil, err
	}

	if name == "select" {
		return buildSelectCall(args, kwargs, tok)
	}

	spec, err := s.parser.reg.Lookup(name)
	if err != nil {
		return nil, err
	}

	call := &ir.Call{Name: spec.Name, Kwargs: make(map[string]ir.Node)}
	slotArgs := make([]ir.Node, 0, len(spec.Inputs))
	paramIdx := 0

	for _, arg := range args {
		if lit, isLit := arg.(*ir.Literal); isLit && paramIdx < len(spec.Params) {
			call.Kwargs[spec.Params[paramIdx].Name] = lit
			paramIdx++
			continue
		}
		if len(slotArgs) < len(spec.Inputs) {
			slotArgs = append(slotArgs, liftFieldArg(arg, spec))
			continue
		}
		if paramIdx < len(spec.Params) {
			if _, isLit := arg.(*ir.Literal); !isLit {
				return nil, errAt(tok,
					"indicator '%s' parameter '%s' expects a literal value", spec.Name, spec.Params[paramIdx].Name)
			}
			call.Kwargs[spec.Params[paramIdx].Name] = arg
			paramIdx++
			continue
		}
		return nil, errAt(tok, "indicator '%s' accepts at most %d positional arguments", spec.Name, len(spec.Inputs)+len(spec.Params))
	}

	for _, kw := range kwargs {
		canonical := spec.ResolveParamAlias(kw.name)
		if slotIdx := inputSlotIndex(spec, canonical); slotIdx >= 0 {
			for len(slotArgs) <= slotIdx {
				slotArgs = append(slotArgs, nil)
			}
			if slotArgs[slotIdx] != nil {
				return nil, errAt(tok, "indicator '%s' input '%s' specified twice", spec.Name, canonical)
			}
			slotArgs[slotIdx] = liftFieldArg(kw.node, spec)
			continue
		}
		if spec.Param(canonical) == nil {
			return nil, &ta.UnknownParameterError{Indicator: spec.Name, Name: kw.name}
		}
		if _, exists := call.Kwargs[canonical]; exists {
			return nil, errAt(tok,
				"indicator '%s' parameter '%s' cannot be specified both as positional and keyword argument", spec.Name, canonical)
		}
		call.Kwargs[canonical] = kw.node
	}

	// Trim trailing unfilled slots; interior gaps are an error.
	for len(slotArgs) > 0 && slotArgs[len(slotArgs)-1] == nil {
		slotArgs = slotArgs[:len(slotArgs)-1]
	}
	for _, slot := range slotArgs {
		if slot == nil {
			return nil, errAt(tok, "indicator '%s' has an unbound input slot", spec.Name)
		}
	}
	call.Args = slotArgs
	return call, nil
}

// liftFieldArg rewrites a bare-field select() into a SourceRef when
// it stands in an input-slot position of an indicator.
func liftFieldArg(arg ir.Node, spec *registry.IndicatorSpec) ir.Node {
	if !spec.HasInputSlot() {
		return arg
	}
	if call, ok := arg.(*ir.Call); ok && call.Name == "select" && len(call.Args) == 0 {
		if lit, ok := call.Kwargs["field"].(*ir.Literal); ok {
			if field, ok := lit.Value.(string); ok {
				return &ir.SourceRef{Source: ta.SourceOHLCV, Field: field}
			}
		}
	}
	return arg
}

func inputSlotIndex(spec *registry.IndicatorSpec, name string) int {
	for i, slot := range spec.Inputs {
		if slot.Name == name {
			return i
		}
	}
	return -1
}

func buildSelectCall(args []ir.Node, kwargs []rawArg, tok Token) (ir.Node, error) {
	call := &ir.Call{Name: "select", Kwargs: make(map[string]ir.Node)}
	if len(args) > 1 {
		return nil, errAt(tok, "select() expects at most one positional argument")
	}
	if len(args) == 1 {
		lit, ok := args[0].(*ir.Literal)
		if !ok {
			return nil, errAt(tok, "select() field parameter must be a string literal")
		}
		field, ok := lit.Value.(string)
		if !ok {
			return nil, errAt(tok, "select() field parameter must be a string literal")
		}
		call.Kwargs["field"] = &ir.Literal{Value: ta.CanonicalField(field)}
	}
	for _, kw := range kwargs {
		if kw.name != "field" {
			return nil, &ta.UnknownParameterError{Indicator: "select", Name: kw.name}
		}
		lit, ok := kw.node.(*ir.Literal)
		if !ok {
			return nil, errAt(tok, "select() field parameter must be a string literal")
		}
		field, ok := lit.Value.(string)
		if !ok {
			return nil, errAt(tok, "select() field parameter must be a string literal")
		}
		call.Kwargs["field"] = &ir.Literal{Value: ta.CanonicalField(field)}
	}
	return call, nil
}
