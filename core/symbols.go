package core

// NameRef is an interned name within one GlobalState.
type NameRef uint32

// NoName is the zero NameRef; it never resolves.
const NoName NameRef = 0

// NameTable interns strings so symbols can compare names by integer.
type NameTable struct {
	byName map[string]NameRef
	names  []string
}

func NewNameTable() *NameTable {
	return &NameTable{
		byName: make(map[string]NameRef),
		names:  []string{""}, // slot 0 reserved for NoName
	}
}

// Enter interns name, returning its ref.
func (t *NameTable) Enter(name string) NameRef {
	if ref, ok := t.byName[name]; ok {
		return ref
	}
	ref := NameRef(len(t.names))
	t.names = append(t.names, name)
	t.byName[name] = ref
	return ref
}

// Lookup returns the ref for name if it has been interned.
func (t *NameTable) Lookup(name string) (NameRef, bool) {
	ref, ok := t.byName[name]
	return ref, ok
}

// String resolves a ref back to its string.
func (t *NameTable) String(ref NameRef) string {
	if int(ref) >= len(t.names) {
		return ""
	}
	return t.names[ref]
}

func (t *NameTable) deepCopy() *NameTable {
	cp := &NameTable{
		byName: make(map[string]NameRef, len(t.byName)),
		names:  append([]string(nil), t.names...),
	}
	for k, v := range t.byName {
		cp.byName[k] = v
	}
	return cp
}

// SymbolKind classifies a symbol-table entry.
type SymbolKind uint8

const (
	SymbolClass SymbolKind = iota
	SymbolModule
	SymbolMethod
	SymbolConstant
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolClass:
		return "class"
	case SymbolModule:
		return "module"
	case SymbolMethod:
		return "def"
	case SymbolConstant:
		return "constant"
	default:
		return "symbol"
	}
}

// SymbolRef indexes into a GlobalState's symbol list.
type SymbolRef int

// NoSymbol is the invalid SymbolRef.
const NoSymbol SymbolRef = -1

// Symbol is one entry in the workspace symbol table. Method symbols carry
// arity/static-ness/visibility; class symbols carry their ancestor list.
type Symbol struct {
	Name       NameRef
	FQN        string
	Kind       SymbolKind
	Owner      SymbolRef
	File       FileRef
	Loc        Range
	Ancestors  []string
	Visibility string
	Self       bool
	Arity      int
	Sig        string
}

// symbolTable holds the workspace's resolved symbols. It lives inside
// GlobalState and is rebuilt from indexed trees by the typechecker.
type symbolTable struct {
	symbols       []Symbol
	symbolsByName map[NameRef][]SymbolRef
	fileSymbols   map[FileRef][]SymbolRef
}

func newSymbolTable() *symbolTable {
	return &symbolTable{
		symbolsByName: make(map[NameRef][]SymbolRef),
		fileSymbols:   make(map[FileRef][]SymbolRef),
	}
}

func (st *symbolTable) deepCopy() *symbolTable {
	cp := &symbolTable{
		symbols:       make([]Symbol, len(st.symbols)),
		symbolsByName: make(map[NameRef][]SymbolRef, len(st.symbolsByName)),
		fileSymbols:   make(map[FileRef][]SymbolRef, len(st.fileSymbols)),
	}
	for i, s := range st.symbols {
		s.Ancestors = append([]string(nil), s.Ancestors...)
		cp.symbols[i] = s
	}
	for k, v := range st.symbolsByName {
		cp.symbolsByName[k] = append([]SymbolRef(nil), v...)
	}
	for k, v := range st.fileSymbols {
		cp.fileSymbols[k] = append([]SymbolRef(nil), v...)
	}
	return cp
}

// EnterSymbol appends a symbol and indexes it by name and file.
func (gs *GlobalState) EnterSymbol(sym Symbol) SymbolRef {
	ref := SymbolRef(len(gs.symbols.symbols))
	gs.symbols.symbols = append(gs.symbols.symbols, sym)
	gs.symbols.symbolsByName[sym.Name] = append(gs.symbols.symbolsByName[sym.Name], ref)
	gs.symbols.fileSymbols[sym.File] = append(gs.symbols.fileSymbols[sym.File], ref)
	return ref
}

// Symbol returns the entry at ref.
func (gs *GlobalState) Symbol(ref SymbolRef) *Symbol {
	if ref < 0 || int(ref) >= len(gs.symbols.symbols) {
		return nil
	}
	return &gs.symbols.symbols[ref]
}

// LookupSymbols returns every symbol with the given name.
func (gs *GlobalState) LookupSymbols(name string) []SymbolRef {
	ref, ok := gs.Names.Lookup(name)
	if !ok {
		return nil
	}
	return gs.symbols.symbolsByName[ref]
}

// SymbolsInFile returns the symbols defined in fref, in definition order.
func (gs *GlobalState) SymbolsInFile(fref FileRef) []SymbolRef {
	return gs.symbols.fileSymbols[fref]
}

// EachSymbol iterates the full symbol table.
func (gs *GlobalState) EachSymbol(fn func(SymbolRef, *Symbol) bool) {
	for i := range gs.symbols.symbols {
		if !fn(SymbolRef(i), &gs.symbols.symbols[i]) {
			return
		}
	}
}

// ClearSymbols drops the whole symbol table, keeping interned names.
func (gs *GlobalState) ClearSymbols() {
	gs.symbols = newSymbolTable()
}

// DropFileSymbols removes all symbols defined in fref. Used by the fast path
// to re-resolve a single file in place.
func (gs *GlobalState) DropFileSymbols(fref FileRef) {
	refs := gs.symbols.fileSymbols[fref]
	if len(refs) == 0 {
		return
	}
	dropped := make(map[SymbolRef]bool, len(refs))
	for _, r := range refs {
		dropped[r] = true
	}
	for name, list := range gs.symbols.symbolsByName {
		kept := list[:0]
		for _, r := range list {
			if !dropped[r] {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(gs.symbols.symbolsByName, name)
		} else {
			gs.symbols.symbolsByName[name] = kept
		}
	}
	delete(gs.symbols.fileSymbols, fref)
	// Tombstone the entries. EachSymbol still visits them; its callers and
	// the queries skip symbols whose FQN has been cleared (see Exists).
	for _, r := range refs {
		if s := gs.Symbol(r); s != nil {
			s.Name = NoName
			s.FQN = ""
			s.File = 0
		}
	}
}

// Exists reports whether the symbol entry is live (not a tombstone).
func (s *Symbol) Exists() bool { return s.FQN != "" }
