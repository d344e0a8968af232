// Package parser turns Ruby source into the tagged AST the rest of the
// server consumes. The Parser interface is the seam for a real Ruby
// frontend; the default implementation is a line-oriented scanner for the
// subset of the language the server models structurally (class/module
// nesting, method definitions, sigs, visibility modifiers, constants),
// preserving everything else as raw expressions.
package parser

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/donaldong/sorbet/ast"
	"github.com/donaldong/sorbet/core"
)

// Parser produces an AST for one file. Implementations must be safe for
// concurrent use: the pipeline invokes Parse from a worker pool.
type Parser interface {
	Parse(file *core.File) (*ast.Root, error)
}

// Default returns the built-in Ruby-subset parser.
func Default() Parser {
	return rubyParser{}
}

type rubyParser struct{}

var (
	classPattern     = regexp.MustCompile(`^class\s+([A-Z][\w:]*)\s*(?:<\s*([A-Z][\w:]*))?\s*$`)
	singletonPattern = regexp.MustCompile(`^class\s*<<\s*self\s*$`)
	modulePattern    = regexp.MustCompile(`^module\s+([A-Z][\w:]*)\s*$`)
	methodPattern    = regexp.MustCompile(`^def\s+(self\.)?([A-Za-z_]\w*[!?=]?)\s*(?:\(([^)]*)\))?\s*$`)
	modifierPattern  = regexp.MustCompile(`^(private|protected|public|private_class_method)\s+(def\s+.+)$`)
	bareModPattern   = regexp.MustCompile(`^(private|protected|public)\s*$`)
	sigBracePattern  = regexp.MustCompile(`^sig\s*(\{.*\})\s*$`)
	sigDoPattern     = regexp.MustCompile(`^sig\s+do\s*$`)
	mixinPattern     = regexp.MustCompile(`^(include|extend|prepend)\s+(.+)$`)
	constPattern     = regexp.MustCompile(`^([A-Z][A-Za-z0-9_]*)\s*=\s*(.+)$`)
	classSendPattern = regexp.MustCompile(`^([a-z_]\w*[!?]?)\s+(:.+|".+|'.+)$`)
	endPattern       = regexp.MustCompile(`^end\b\s*$`)
	openerPattern    = regexp.MustCompile(`^(if|unless|while|until|case|begin|for)\b`)
	trailingDo       = regexp.MustCompile(`\bdo(\s*\|[^|]*\|)?\s*$`)
)

// stmt is one logical statement: a physical line, or a `;`-separated segment
// of one.
type stmt struct {
	text string
	line int
	col  int
}

func (p rubyParser) Parse(file *core.File) (*ast.Root, error) {
	source := file.Source()
	if err := checkBrackets(source); err != nil {
		return nil, err
	}
	r := &run{stmts: splitStatements(source)}
	body, err := r.parseBody(false)
	if err != nil {
		return nil, err
	}
	return &ast.Root{Body: body}, nil
}

type run struct {
	stmts []stmt
	pos   int
}

func (r *run) peek() (stmt, bool) {
	if r.pos >= len(r.stmts) {
		return stmt{}, false
	}
	return r.stmts[r.pos], true
}

func (r *run) next() stmt {
	s := r.stmts[r.pos]
	r.pos++
	return s
}

// parseBody consumes statements until EOF (insideBlock false) or a matching
// `end` (insideBlock true).
func (r *run) parseBody(insideBlock bool) ([]ast.Node, error) {
	var body []ast.Node
	for {
		s, ok := r.peek()
		if !ok {
			if insideBlock {
				return nil, errors.New("unexpected end of file: unterminated block")
			}
			return body, nil
		}
		if endPattern.MatchString(s.text) {
			if !insideBlock {
				return nil, errors.Errorf("unexpected `end` at line %d", s.line+1)
			}
			r.next()
			return body, nil
		}
		node, err := r.parseStatement()
		if err != nil {
			return nil, err
		}
		if node != nil {
			body = append(body, node)
		}
	}
}

func (r *run) parseStatement() (ast.Node, error) {
	s := r.next()
	text := s.text

	switch {
	case singletonPattern.MatchString(text):
		body, err := r.parseBody(true)
		if err != nil {
			return nil, err
		}
		return &ast.ClassDef{
			Rng:       r.rangeFrom(s),
			Singleton: true,
			Body:      body,
		}, nil

	case classPattern.MatchString(text):
		m := classPattern.FindStringSubmatch(text)
		body, err := r.parseBody(true)
		if err != nil {
			return nil, err
		}
		var ancestors []string
		if m[2] != "" {
			ancestors = []string{m[2]}
		}
		return &ast.ClassDef{
			Rng:       r.rangeFrom(s),
			Name:      m[1],
			Ancestors: ancestors,
			Body:      body,
		}, nil

	case modulePattern.MatchString(text):
		m := modulePattern.FindStringSubmatch(text)
		body, err := r.parseBody(true)
		if err != nil {
			return nil, err
		}
		return &ast.ClassDef{
			Rng:      r.rangeFrom(s),
			Name:     m[1],
			IsModule: true,
			Body:     body,
		}, nil

	case methodPattern.MatchString(text):
		return r.parseMethod(s, text)

	case modifierPattern.MatchString(text):
		m := modifierPattern.FindStringSubmatch(text)
		method, err := r.parseMethod(s, m[2])
		if err != nil {
			return nil, err
		}
		return &ast.Send{
			Rng:  method.Range(),
			Fun:  m[1],
			Args: []ast.Node{method},
		}, nil

	case bareModPattern.MatchString(text):
		m := bareModPattern.FindStringSubmatch(text)
		return &ast.Send{Rng: stmtRange(s), Fun: m[1]}, nil

	case sigBracePattern.MatchString(text):
		m := sigBracePattern.FindStringSubmatch(text)
		return &ast.Send{Rng: stmtRange(s), Fun: "sig", BlockSrc: m[1]}, nil

	case sigDoPattern.MatchString(text):
		block, end, err := r.consumeOpaque(s)
		if err != nil {
			return nil, err
		}
		return &ast.Send{
			Rng:      core.Range{Start: stmtRange(s).Start, End: end},
			Fun:      "sig",
			BlockSrc: block,
		}, nil

	case mixinPattern.MatchString(text):
		m := mixinPattern.FindStringSubmatch(text)
		return &ast.Send{Rng: stmtRange(s), Fun: m[1], ArgSrc: strings.TrimSpace(m[2])}, nil

	case constPattern.MatchString(text):
		m := constPattern.FindStringSubmatch(text)
		return &ast.ConstAssign{Rng: stmtRange(s), Name: m[1], ValueSrc: strings.TrimSpace(m[2])}, nil

	case classSendPattern.MatchString(text):
		m := classSendPattern.FindStringSubmatch(text)
		return &ast.Send{Rng: stmtRange(s), Fun: m[1], ArgSrc: strings.TrimSpace(m[2])}, nil

	case openerPattern.MatchString(text) || trailingDo.MatchString(text):
		block, end, err := r.consumeOpaque(s)
		if err != nil {
			return nil, err
		}
		return &ast.RawExpr{
			Rng: core.Range{Start: stmtRange(s).Start, End: end},
			Src: text + "\n" + block,
		}, nil

	default:
		return &ast.RawExpr{Rng: stmtRange(s), Src: text}, nil
	}
}

func (r *run) parseMethod(opener stmt, defText string) (*ast.MethodDef, error) {
	m := methodPattern.FindStringSubmatch(defText)
	if m == nil {
		return nil, errors.Errorf("malformed method definition at line %d", opener.line+1)
	}
	body, err := r.parseBody(true)
	if err != nil {
		return nil, err
	}
	var params []string
	if m[3] != "" {
		for _, p := range strings.Split(m[3], ",") {
			name := strings.TrimSpace(p)
			name = strings.TrimLeft(name, "*&")
			if i := strings.IndexAny(name, ":= "); i >= 0 {
				name = name[:i]
			}
			if name != "" {
				params = append(params, name)
			}
		}
	}
	return &ast.MethodDef{
		Rng:    r.rangeFrom(opener),
		Name:   m[2],
		Params: params,
		Self:   m[1] != "",
		Body:   body,
	}, nil
}

// consumeOpaque swallows a block the parser does not model (control flow,
// iterator blocks, sig do-blocks) through its matching `end`, returning the
// raw text. Nested openers are tracked so the right `end` closes the block.
func (r *run) consumeOpaque(opener stmt) (string, core.Position, error) {
	depth := 1
	var lines []string
	end := stmtRange(opener).End
	for depth > 0 {
		s, ok := r.peek()
		if !ok {
			return "", end, errors.Errorf("unexpected end of file: unterminated block from line %d", opener.line+1)
		}
		r.next()
		if endPattern.MatchString(s.text) {
			depth--
			end = stmtRange(s).End
			if depth == 0 {
				break
			}
		} else if blockOpener(s.text) {
			depth++
		}
		lines = append(lines, s.text)
	}
	return strings.Join(lines, "\n"), end, nil
}

// blockOpener reports whether text begins a construct terminated by `end`.
func blockOpener(text string) bool {
	return openerPattern.MatchString(text) ||
		trailingDo.MatchString(text) ||
		singletonPattern.MatchString(text) ||
		classPattern.MatchString(text) ||
		modulePattern.MatchString(text) ||
		methodPattern.MatchString(text) ||
		modifierPattern.MatchString(text) ||
		sigDoPattern.MatchString(text)
}

// rangeFrom spans from the opener statement through the last consumed one.
func (r *run) rangeFrom(opener stmt) core.Range {
	start := stmtRange(opener).Start
	if r.pos == 0 {
		return stmtRange(opener)
	}
	last := r.stmts[r.pos-1]
	return core.Range{Start: start, End: stmtRange(last).End}
}

func stmtRange(s stmt) core.Range {
	return core.Range{
		Start: core.Position{Line: s.line, Character: s.col},
		End:   core.Position{Line: s.line, Character: s.col + len(s.text)},
	}
}

// splitStatements splits source into logical statements: physical lines,
// further divided on top-level `;` so one-line definitions parse the same
// way as their multi-line spelling. Comments and blank segments drop out.
func splitStatements(source string) []stmt {
	var stmts []stmt
	for lineNo, line := range strings.Split(source, "\n") {
		inString := byte(0)
		segStart := 0
		flush := func(end int) {
			seg := line[segStart:end]
			trimmed := strings.TrimSpace(seg)
			if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
				lead := segStart + strings.Index(seg, trimmed)
				stmts = append(stmts, stmt{text: trimmed, line: lineNo, col: lead})
			}
			segStart = end + 1
		}
		for i := 0; i < len(line); i++ {
			c := line[i]
			switch {
			case inString != 0:
				if c == inString && (i == 0 || line[i-1] != '\\') {
					inString = 0
				}
			case c == '\'' || c == '"':
				inString = c
			case c == '#':
				// comment to end of line
				flush(i)
				segStart = len(line) + 1
				i = len(line)
			case c == ';':
				flush(i)
			}
		}
		if segStart <= len(line) {
			flush(len(line))
		}
	}
	return stmts
}

// checkBrackets is a whole-file sanity pass: unbalanced brackets outside
// strings and comments are reported as syntax errors before any structural
// parsing happens.
func checkBrackets(source string) error {
	var stack []byte
	inString := byte(0)
	line := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case c == '\n':
			line++
			inString = 0
		case inString != 0:
			if c == inString && (i == 0 || source[i-1] != '\\') {
				inString = 0
			}
		case c == '\'' || c == '"':
			inString = c
		case c == '#':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			line++
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, c)
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 {
				return errors.Errorf("unmatched `%c` at line %d", c, line+1)
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if (c == ')' && open != '(') || (c == ']' && open != '[') || (c == '}' && open != '{') {
				return errors.Errorf("mismatched `%c` at line %d", c, line+1)
			}
		}
	}
	if len(stack) > 0 {
		return errors.Errorf("unclosed `%c` at end of file", stack[len(stack)-1])
	}
	return nil
}
