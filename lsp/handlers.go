package lsp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/donaldong/sorbet/core"
)

const maxQueryResults = 50

// wordAt extracts the identifier under the cursor.
func wordAt(source string, line, character int) string {
	lines := strings.Split(source, "\n")
	if line < 0 || line >= len(lines) {
		return ""
	}
	runes := []rune(lines[line])
	if character < 0 || character > len(runes) {
		return ""
	}
	if character == len(runes) && character > 0 {
		character--
	}
	if character < len(runes) && !isWordChar(runes[character]) && character > 0 && isWordChar(runes[character-1]) {
		character--
	}
	start := character
	for start > 0 && isWordChar(runes[start-1]) {
		start--
	}
	end := character
	for end < len(runes) && isWordChar(runes[end]) {
		end++
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

func isWordChar(r rune) bool {
	return r == '_' || r == '!' || r == '?' || r == ':' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// lookupWord resolves the word under the cursor, with leading and trailing
// colons stripped, against the symbol table by name, falling back to symbols
// whose fully qualified name ends in `::word`.
func lookupWord(gs *core.GlobalState, word string) []core.SymbolRef {
	clean := strings.Trim(word, ":")
	refs := gs.LookupSymbols(clean)
	if len(refs) > 0 {
		return refs
	}
	// Symbols interned by fully qualified name do not answer short lookups;
	// fall back to a scan for FQN suffix matches.
	var out []core.SymbolRef
	gs.EachSymbol(func(ref core.SymbolRef, sym *core.Symbol) bool {
		if sym.Exists() && strings.HasSuffix(sym.FQN, "::"+clean) {
			out = append(out, ref)
		}
		return true
	})
	return out
}

func symbolLocation(gs *core.GlobalState, sym *core.Symbol) (Location, bool) {
	file := gs.File(sym.File)
	if file == nil {
		return Location{}, false
	}
	return Location{URI: pathToURI(file.Path()), Range: fromCoreRange(sym.Loc)}, true
}

func symbolKindToLSP(kind core.SymbolKind) int {
	switch kind {
	case core.SymbolClass:
		return 5
	case core.SymbolModule:
		return 2
	case core.SymbolMethod:
		return 6
	case core.SymbolConstant:
		return 14
	default:
		return 1
	}
}

func completionKindFromSymbol(kind core.SymbolKind) int {
	switch kind {
	case core.SymbolClass:
		return 7
	case core.SymbolModule:
		return 9
	case core.SymbolMethod:
		return 2
	case core.SymbolConstant:
		return 21
	default:
		return 1
	}
}

func handleDefinition(tc *Typechecker, params TextDocumentPositionParams) interface{} {
	gs := tc.GS()
	word := wordAtURI(gs, params)
	if word == "" {
		return []Location{}
	}
	locations := []Location{}
	for _, ref := range lookupWord(gs, word) {
		sym := gs.Symbol(ref)
		if sym == nil || !sym.Exists() {
			continue
		}
		if loc, ok := symbolLocation(gs, sym); ok {
			locations = append(locations, loc)
		}
	}
	return locations
}

func handleTypeDefinition(tc *Typechecker, params TextDocumentPositionParams) interface{} {
	gs := tc.GS()
	word := wordAtURI(gs, params)
	if word == "" {
		return []Location{}
	}
	locations := []Location{}
	for _, ref := range lookupWord(gs, word) {
		sym := gs.Symbol(ref)
		if sym == nil || !sym.Exists() {
			continue
		}
		if sym.Kind != core.SymbolClass && sym.Kind != core.SymbolModule {
			continue
		}
		if loc, ok := symbolLocation(gs, sym); ok {
			locations = append(locations, loc)
		}
	}
	return locations
}

func handleHover(tc *Typechecker, params TextDocumentPositionParams) interface{} {
	gs := tc.GS()
	word := wordAtURI(gs, params)
	if word == "" {
		return nil
	}
	var parts []string
	for _, ref := range lookupWord(gs, word) {
		sym := gs.Symbol(ref)
		if sym == nil || !sym.Exists() {
			continue
		}
		header := fmt.Sprintf("```ruby\n%s %s\n```", sym.Kind, sym.FQN)
		var details []string
		if file := gs.File(sym.File); file != nil {
			details = append(details, fmt.Sprintf("**Defined in:** `%s:%d`", file.Path(), sym.Loc.Start.Line+1))
		}
		if sym.Kind == core.SymbolClass && len(sym.Ancestors) > 0 {
			details = append(details, fmt.Sprintf("**Inherits from:** `%s`", sym.Ancestors[0]))
		}
		if sym.Sig != "" {
			details = append(details, fmt.Sprintf("**Signature:** `sig %s`", sym.Sig))
		}
		parts = append(parts, header+"\n\n"+strings.Join(details, "\n\n"))
	}
	if len(parts) == 0 {
		return nil
	}
	return Hover{Contents: MarkupContent{Kind: "markdown", Value: strings.Join(parts, "\n\n---\n\n")}}
}

func handleCompletion(tc *Typechecker, params TextDocumentPositionParams) interface{} {
	gs := tc.GS()
	word := strings.Trim(wordAtURI(gs, params), ":.")
	if len(word) < 1 {
		return CompletionList{Items: []CompletionItem{}}
	}
	prefix := strings.ToLower(word)

	var items []CompletionItem
	seen := make(map[string]bool)
	gs.EachSymbol(func(_ core.SymbolRef, sym *core.Symbol) bool {
		if !sym.Exists() {
			return true
		}
		name := gs.Names.String(sym.Name)
		if !strings.HasPrefix(strings.ToLower(name), prefix) || seen[name] {
			return true
		}
		seen[name] = true
		detail := sym.Kind.String()
		if sym.Sig != "" {
			detail += " sig " + sym.Sig
		}
		items = append(items, CompletionItem{
			Label:  name,
			Kind:   completionKindFromSymbol(sym.Kind),
			Detail: detail,
		})
		return len(items) < maxQueryResults
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return CompletionList{IsIncomplete: len(items) >= maxQueryResults, Items: items}
}

func handleReferences(tc *Typechecker, params ReferenceParams) interface{} {
	gs := tc.GS()
	word := wordAtURI(gs, params.TextDocumentPositionParams)
	word = strings.Trim(word, ":")
	if word == "" {
		return []Location{}
	}
	locations := []Location{}
	for _, file := range gs.Files() {
		if file == nil {
			continue
		}
		for _, rng := range occurrences(file.Source(), word) {
			locations = append(locations, Location{URI: pathToURI(file.Path()), Range: rng})
		}
	}
	return locations
}

// occurrences finds word-boundary matches of word in source.
func occurrences(source, word string) []Range {
	var out []Range
	for lineNo, line := range strings.Split(source, "\n") {
		for from := 0; ; {
			i := strings.Index(line[from:], word)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(word)
			before := start == 0 || !isWordChar(rune(line[start-1]))
			after := end >= len(line) || !isWordChar(rune(line[end]))
			if before && after {
				out = append(out, Range{
					Start: Position{Line: lineNo, Character: start},
					End:   Position{Line: lineNo, Character: end},
				})
			}
			from = end
		}
	}
	return out
}

func handleDocumentSymbol(tc *Typechecker, params DocumentSymbolParams) interface{} {
	gs := tc.GS()
	fref := gs.FindFileByPath(uriToPath(params.TextDocument.URI))
	if !fref.Exists() {
		return []SymbolInformation{}
	}
	symbols := []SymbolInformation{}
	for _, ref := range gs.SymbolsInFile(fref) {
		sym := gs.Symbol(ref)
		if sym == nil || !sym.Exists() {
			continue
		}
		loc, ok := symbolLocation(gs, sym)
		if !ok {
			continue
		}
		container := ""
		if owner := gs.Symbol(sym.Owner); owner != nil && owner.Exists() {
			container = owner.FQN
		}
		symbols = append(symbols, SymbolInformation{
			Name:          gs.Names.String(sym.Name),
			Kind:          symbolKindToLSP(sym.Kind),
			Location:      loc,
			ContainerName: container,
		})
	}
	return symbols
}

func handleWorkspaceSymbol(tc *Typechecker, params WorkspaceSymbolParams) interface{} {
	gs := tc.GS()
	query := strings.ToLower(params.Query)
	if len(query) < 2 {
		return []SymbolInformation{}
	}
	symbols := []SymbolInformation{}
	gs.EachSymbol(func(_ core.SymbolRef, sym *core.Symbol) bool {
		if !sym.Exists() {
			return true
		}
		name := gs.Names.String(sym.Name)
		if !strings.Contains(strings.ToLower(name), query) {
			return true
		}
		loc, ok := symbolLocation(gs, sym)
		if !ok {
			return true
		}
		symbols = append(symbols, SymbolInformation{
			Name:     sym.FQN,
			Kind:     symbolKindToLSP(sym.Kind),
			Location: loc,
		})
		return len(symbols) < maxQueryResults
	})
	return symbols
}

func handleDocumentHighlight(tc *Typechecker, params TextDocumentPositionParams) interface{} {
	gs := tc.GS()
	fref := gs.FindFileByPath(uriToPath(params.TextDocument.URI))
	file := gs.File(fref)
	if file == nil {
		return []DocumentHighlight{}
	}
	word := strings.Trim(wordAt(file.Source(), params.Position.Line, params.Position.Character), ":")
	if word == "" {
		return []DocumentHighlight{}
	}
	highlights := []DocumentHighlight{}
	for _, rng := range occurrences(file.Source(), word) {
		highlights = append(highlights, DocumentHighlight{Range: rng, Kind: 1})
	}
	return highlights
}

func handleSignatureHelp(tc *Typechecker, params TextDocumentPositionParams) interface{} {
	gs := tc.GS()
	fref := gs.FindFileByPath(uriToPath(params.TextDocument.URI))
	file := gs.File(fref)
	if file == nil {
		return SignatureHelp{Signatures: []SignatureInformation{}}
	}
	word := callTargetAt(file.Source(), params.Position)
	if word == "" {
		return SignatureHelp{Signatures: []SignatureInformation{}}
	}
	signatures := []SignatureInformation{}
	for _, ref := range gs.LookupSymbols(word) {
		sym := gs.Symbol(ref)
		if sym == nil || !sym.Exists() || sym.Kind != core.SymbolMethod {
			continue
		}
		label := fmt.Sprintf("%s/%d", sym.FQN, sym.Arity)
		var docs string
		if sym.Sig != "" {
			docs = "sig " + sym.Sig
		}
		var paramInfo []ParameterInformation
		for i := 0; i < sym.Arity; i++ {
			paramInfo = append(paramInfo, ParameterInformation{Label: fmt.Sprintf("arg%d", i)})
		}
		signatures = append(signatures, SignatureInformation{
			Label:         label,
			Documentation: docs,
			Parameters:    paramInfo,
		})
	}
	return SignatureHelp{Signatures: signatures}
}

// callTargetAt scans left from the cursor, past an open paren or comma, to
// the method name being called.
func callTargetAt(source string, pos Position) string {
	lines := strings.Split(source, "\n")
	if pos.Line < 0 || pos.Line >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	i := pos.Character
	if i > len(line) {
		i = len(line)
	}
	depth := 0
	for i > 0 {
		i--
		switch line[i] {
		case ')':
			depth++
		case '(':
			if depth == 0 {
				return wordAt(line, 0, i-1)
			}
			depth--
		}
	}
	return ""
}

func handleCodeAction(tc *Typechecker, params CodeActionParams) interface{} {
	gs := tc.GS()
	fref := gs.FindFileByPath(uriToPath(params.TextDocument.URI))
	file := gs.File(fref)
	if file == nil {
		return []CodeAction{}
	}
	actions := []CodeAction{}
	if file.Strict() == core.StrictLevelNone {
		actions = append(actions, CodeAction{
			Title: "Add `# typed: false` sigil",
			Kind:  "quickfix",
			Edit: &WorkspaceEdit{
				Changes: map[string][]TextEdit{
					params.TextDocument.URI: {{
						Range:   Range{},
						NewText: "# typed: false\n",
					}},
				},
			},
		})
	}
	return actions
}

func handleReadFile(tc *Typechecker, params TextDocumentIdentifier) (TextDocumentItem, bool) {
	gs := tc.GS()
	fref := gs.FindFileByPath(uriToPath(params.URI))
	file := gs.File(fref)
	if file == nil {
		return TextDocumentItem{}, false
	}
	return TextDocumentItem{
		URI:        params.URI,
		LanguageID: "ruby",
		Version:    0,
		Text:       file.Source(),
	}, true
}

// wordAtURI resolves the document and extracts the word at the cursor.
func wordAtURI(gs *core.GlobalState, params TextDocumentPositionParams) string {
	fref := gs.FindFileByPath(uriToPath(params.TextDocument.URI))
	file := gs.File(fref)
	if file == nil {
		return ""
	}
	return wordAt(file.Source(), params.Position.Line, params.Position.Character)
}
