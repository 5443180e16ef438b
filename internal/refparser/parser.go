package refparser

import (
	"github.com/ralts/langindex/internal/ast"
	"github.com/ralts/langindex/internal/occurrence"
)

// Parser implements indexer.Parser using the lexer in this package.
// It is the module's default wiring for cmd/langindexd; swapping in a
// real grammar (e.g. a tree-sitter binding) means implementing the
// same one-method interface and does not touch anything downstream.
type Parser struct{}

// New returns a Parser. It carries no state — Parse is safe to call
// concurrently from multiple indexer workers.
func New() *Parser { return &Parser{} }

// Parse tokenizes src and builds the tree shape internal/ast defines,
// recognizing class/module nesting, method definitions, assignments,
// and the four variable sigils. Anything it doesn't recognize (binary
// operators, string interpolation, control-flow keywords) is skipped
// rather than structured; the occurrence emission rules in 
// only need identifier positions to be right, not a faithful parse.
func (Parser) Parse(_ string, src []byte) (*ast.Node, error) {
	lx := NewLexer(string(src))
	var tokens []Token
	for {
		tok := lx.NextToken()
		tokens = append(tokens, tok)
		if tok.Kind == EOF {
			break
		}
	}

	p := &reader{tokens: tokens}
	body := p.statements(EOF)
	return &ast.Node{Kind: ast.KindProgram, Body: body}, nil
}

// reader walks the flat token slice with one token of lookahead.
type reader struct {
	tokens []Token
	pos    int
}

func (r *reader) peek() Token {
	if r.pos >= len(r.tokens) {
		return Token{Kind: EOF}
	}
	return r.tokens[r.pos]
}

func (r *reader) advance() Token {
	tok := r.peek()
	if r.pos < len(r.tokens) {
		r.pos++
	}
	return tok
}

func (r *reader) skipNewlines() {
	for r.peek().Kind == Newline {
		r.advance()
	}
}

// statements reads top-level constructs until a token of kind until is
// seen (KeywordEnd for a nested body, EOF for the program).
func (r *reader) statements(until Kind) []*ast.Node {
	var out []*ast.Node
	for {
		r.skipNewlines()
		tok := r.peek()
		if tok.Kind == until || tok.Kind == EOF {
			return out
		}
		if n := r.statement(); n != nil {
			out = append(out, n)
		}
	}
}

func (r *reader) statement() *ast.Node {
	switch r.peek().Kind {
	case KeywordClass:
		return r.classOrModule(ast.KindClass)
	case KeywordModule:
		return r.classOrModule(ast.KindModule)
	case KeywordDef:
		return r.methodDef()
	case Identifier, Constant, InstanceVar, ClassVar, GlobalVar, Symbol, KeywordSelf:
		return r.exprStatement()
	default:
		r.advance()
		return nil
	}
}

func (r *reader) classOrModule(kind ast.Kind) *ast.Node {
	startTok := r.advance() // 'class' or 'module'
	nameTok := r.advance()
	r.skipToNewline() // discard superclass clause, if any
	body := r.statements(KeywordEnd)
	endTok := r.advance() // 'end'
	return &ast.Node{
		Kind:      kind,
		Name:      nameTok.Literal,
		NameRange: rangeFor(nameTok),
		Range:     spanning(startTok, endTok),
		Body:      body,
	}
}

func (r *reader) methodDef() *ast.Node {
	startTok := r.advance() // 'def'
	kind := ast.KindMethodDef
	nameTok := r.advance()
	if nameTok.Kind == KeywordSelf {
		kind = ast.KindSingletonMethodDef
		if r.peek().Kind == Dot {
			r.advance()
		}
		nameTok = r.advance()
	}
	params := r.paramList()
	body := r.statements(KeywordEnd)
	endTok := r.advance() // 'end'
	return &ast.Node{
		Kind:      kind,
		Name:      nameTok.Literal,
		NameRange: rangeFor(nameTok),
		Range:     spanning(startTok, endTok),
		Params:    params,
		Body:      body,
	}
}

// paramList reads a parenthesized parameter list. Parameters given
// without parens (`def foo a, b`) are not supported; the rest of the
// line is skipped in that case.
func (r *reader) paramList() []*ast.Node {
	if r.peek().Kind != LParen {
		r.skipToNewline()
		return nil
	}
	r.advance() // '('

	var params []*ast.Node
	for r.peek().Kind != RParen && r.peek().Kind != EOF {
		if r.peek().Kind == Comma {
			r.advance()
			continue
		}
		switch tok := r.advance(); tok.Kind {
		case Amp:
			name := r.advance()
			params = append(params, &ast.Node{Kind: ast.KindBlockParam, Name: name.Literal, NameRange: rangeFor(name), Range: rangeFor(name)})
		case Star, DStar:
			name := r.advance()
			params = append(params, &ast.Node{Kind: ast.KindParam, Name: name.Literal, NameRange: rangeFor(name), Range: rangeFor(name)})
		case Identifier:
			if r.peek().Kind == Other && r.peek().Literal == ":" {
				r.advance() // ':'
				r.skipDefaultValue()
				params = append(params, &ast.Node{Kind: ast.KindKeywordParam, Name: tok.Literal, NameRange: rangeFor(tok), Range: rangeFor(tok)})
			} else {
				r.skipDefaultValue()
				params = append(params, &ast.Node{Kind: ast.KindParam, Name: tok.Literal, NameRange: rangeFor(tok), Range: rangeFor(tok)})
			}
		}
	}
	if r.peek().Kind == RParen {
		r.advance()
	}
	return params
}

// skipDefaultValue consumes `= <expr>` up to the next comma or
// closing paren at depth zero, without structuring the expression.
func (r *reader) skipDefaultValue() {
	if r.peek().Kind != Assign {
		return
	}
	r.advance()
	depth := 0
	for {
		switch r.peek().Kind {
		case EOF, Newline:
			return
		case LParen:
			depth++
		case RParen:
			if depth == 0 {
				return
			}
			depth--
		case Comma:
			if depth == 0 {
				return
			}
		}
		r.advance()
	}
}

func (r *reader) skipToNewline() {
	for r.peek().Kind != Newline && r.peek().Kind != EOF {
		r.advance()
	}
}

// exprStatement reads one identifier/constant/variable/symbol atom,
// then resolves it into an Assignment, MultipleAssignment, or a bare
// expression statement (variable reference or method call).
func (r *reader) exprStatement() *ast.Node {
	first := r.atom()
	targets := []*ast.Node{first}
	for r.peek().Kind == Comma {
		r.advance()
		targets = append(targets, r.atom())
	}

	if r.peek().Kind != Assign {
		r.skipToNewline()
		return first
	}
	r.advance() // '='
	value := r.value()
	r.skipToNewline()

	if len(targets) > 1 {
		return &ast.Node{Kind: ast.KindMultipleAssignment, Targets: targets, Value: value, Range: spanRange(targets[0], value)}
	}
	return &ast.Node{Kind: ast.KindAssignment, Target: targets[0], Value: value, Range: spanRange(targets[0], value)}
}

// value reads a single expression for an assignment's right-hand
// side; it must be walked before the left-hand side is recorded as a
// definition.
func (r *reader) value() *ast.Node {
	switch r.peek().Kind {
	case Identifier, Constant, InstanceVar, ClassVar, GlobalVar, Symbol, KeywordSelf:
		return r.atom()
	default:
		tok := r.advance()
		return &ast.Node{Kind: ast.KindLiteral, Name: tok.Literal, Range: rangeFor(tok), NameRange: rangeFor(tok)}
	}
}

// atom reads one identifier/constant/variable/symbol leaf, then
// extends it into a method-call/attribute chain if followed by `(` or
// `.`.
func (r *reader) atom() *ast.Node {
	tok := r.advance()
	node := leafFor(tok)

	for {
		switch r.peek().Kind {
		case LParen:
			r.advance()
			args := r.argList()
			node = &ast.Node{Kind: ast.KindMethodCall, Receiver: node.Receiver, Name: node.Name, NameRange: node.NameRange, Args: args, Range: node.Range}
		case Dot:
			r.advance()
			methodTok := r.advance()
			call := &ast.Node{Kind: ast.KindMethodCall, Receiver: node, Name: methodTok.Literal, NameRange: rangeFor(methodTok), Range: rangeFor(methodTok)}
			if r.peek().Kind == LParen {
				r.advance()
				call.Args = r.argList()
			}
			node = call
		default:
			return node
		}
	}
}

func (r *reader) argList() []*ast.Node {
	var args []*ast.Node
	for r.peek().Kind != RParen && r.peek().Kind != EOF {
		if r.peek().Kind == Comma {
			r.advance()
			continue
		}
		args = append(args, r.value())
	}
	if r.peek().Kind == RParen {
		r.advance()
	}
	return args
}

func leafFor(tok Token) *ast.Node {
	kind := ast.KindIdentifier
	switch tok.Kind {
	case Constant:
		kind = ast.KindConstant
	case InstanceVar:
		kind = ast.KindInstanceVar
	case ClassVar:
		kind = ast.KindClassVar
	case GlobalVar:
		kind = ast.KindGlobalVar
	case Symbol:
		kind = ast.KindSymbolLiteral
	}
	return &ast.Node{Kind: kind, Name: tok.Literal, NameRange: rangeFor(tok), Range: rangeFor(tok)}
}

func rangeFor(tok Token) occurrence.Range {
	start := occurrence.Position{Line: tok.Line, Column: tok.Column}
	end := occurrence.Position{Line: tok.Line, Column: tok.Column + len(tok.Literal)}
	return occurrence.Range{Start: start, End: end}
}

func spanning(start, end Token) occurrence.Range {
	return occurrence.Range{Start: rangeFor(start).Start, End: rangeFor(end).End}
}

func spanRange(first, last *ast.Node) occurrence.Range {
	if last == nil {
		return first.Range
	}
	return occurrence.Range{Start: first.Range.Start, End: last.Range.End}
}
