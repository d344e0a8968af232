package core

import (
	"regexp"
	"strings"
)

// StrictLevel is the typedness sigil declared at the top of a file.
type StrictLevel int

const (
	StrictLevelNone StrictLevel = iota
	StrictLevelIgnore
	StrictLevelFalse
	StrictLevelTrue
	StrictLevelStrict
	StrictLevelStrong
)

func (l StrictLevel) String() string {
	switch l {
	case StrictLevelIgnore:
		return "ignore"
	case StrictLevelFalse:
		return "false"
	case StrictLevelTrue:
		return "true"
	case StrictLevelStrict:
		return "strict"
	case StrictLevelStrong:
		return "strong"
	default:
		return "none"
	}
}

var sigilPattern = regexp.MustCompile(`^#\s*typed:\s*(ignore|false|true|strict|strong)\s*$`)

// sniffStrictLevel scans the leading comment block for a `# typed:` sigil.
func sniffStrictLevel(source string) StrictLevel {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		if m := sigilPattern.FindStringSubmatch(trimmed); m != nil {
			switch m[1] {
			case "ignore":
				return StrictLevelIgnore
			case "false":
				return StrictLevelFalse
			case "true":
				return StrictLevelTrue
			case "strict":
				return StrictLevelStrict
			case "strong":
				return StrictLevelStrong
			}
		}
	}
	return StrictLevelNone
}

// File is an immutable snapshot of one source file: path, text and the
// strictness sigil sniffed from its header. Two Files with the same path but
// different text are distinct values; edits produce new Files rather than
// mutating old ones.
type File struct {
	path   string
	source string
	strict StrictLevel
}

// NewFile builds a File snapshot from path and source text.
func NewFile(path, source string) *File {
	return &File{
		path:   path,
		source: source,
		strict: sniffStrictLevel(source),
	}
}

func (f *File) Path() string        { return f.path }
func (f *File) Source() string      { return f.source }
func (f *File) Strict() StrictLevel { return f.strict }

// LineCount returns the number of lines in the file.
func (f *File) LineCount() int {
	return strings.Count(f.source, "\n") + 1
}
