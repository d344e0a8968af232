package core

// Sentinel values for FileHash fields. A freshly allocated hash is
// NOT_COMPUTED; a file that failed to parse carries INVALID. Real hashes are
// remapped away from the sentinel range (see GuardHash).
const (
	HashStateNotComputed uint64 = 0
	HashStateInvalid     uint64 = 1
)

// DefinitionsHash summarizes every top-level declaration in a file: names,
// shapes, visibility, static-ness, ancestor lists and signatures. Two files
// with equal definitions hashes expose the same external surface.
type DefinitionsHash struct {
	HierarchyHash uint64
}

// UsagesHash is the content hash of expressions inside method bodies.
type UsagesHash struct {
	Hash uint64
}

// FileHash is the two-part fingerprint of a file used for the fast-path /
// slow-path decision: equal definitions hashes make an edit eligible for the
// fast path regardless of usages changes.
type FileHash struct {
	Definitions DefinitionsHash
	Usages      UsagesHash
}

// InvalidFileHash marks a file whose parse failed.
func InvalidFileHash() FileHash {
	return FileHash{Definitions: DefinitionsHash{HierarchyHash: HashStateInvalid}}
}

// GuardHash remaps a raw hash value out of the sentinel range.
func GuardHash(h uint64) uint64 {
	if h <= HashStateInvalid {
		return h + 2
	}
	return h
}

// Computed reports whether the hash has been filled in.
func (h FileHash) Computed() bool {
	return h.Definitions.HierarchyHash != HashStateNotComputed
}

// Invalid reports whether the file failed to parse.
func (h FileHash) Invalid() bool {
	return h.Definitions.HierarchyHash == HashStateInvalid
}
