// Package store tracks documents currently open in the editor. The
// preprocessor consults it while canonicalizing edits: while a document is
// open, the editor's view of its text wins over the file system; when it
// closes, the server's view reverts to disk.
package store

import (
	"sync"
)

type Store struct {
	documents map[string]*Document
	mutex     sync.RWMutex
}

// Document is one open editor buffer.
type Document struct {
	URI        string
	Path       string
	Version    int
	Source     string
	LanguageID string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		documents: make(map[string]*Document),
	}
}

// Get retrieves an open document by URI.
func (s *Store) Get(uri string) (*Document, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	doc, exists := s.documents[uri]
	return doc, exists
}

// IsOpen reports whether the URI is currently open in the editor.
func (s *Store) IsOpen(uri string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, exists := s.documents[uri]
	return exists
}

// Open registers a document the editor just opened.
func (s *Store) Open(uri, path, source string, version int, languageID string) *Document {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc := &Document{
		URI:        uri,
		Path:       path,
		Version:    version,
		Source:     source,
		LanguageID: languageID,
	}
	s.documents[uri] = doc
	return doc
}

// Update replaces the text of an open document. Returns false if the URI is
// not open.
func (s *Store) Update(uri, source string, version int) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc, exists := s.documents[uri]
	if !exists {
		return false
	}
	doc.Source = source
	if version > doc.Version {
		doc.Version = version
	}
	return true
}

// Close removes a document from the store, returning it if it was open.
func (s *Store) Close(uri string) (*Document, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc, exists := s.documents[uri]
	delete(s.documents, uri)
	return doc, exists
}

// Clear removes all documents from the store.
func (s *Store) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.documents = make(map[string]*Document)
}

// Keys returns all open URIs.
func (s *Store) Keys() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0, len(s.documents))
	for uri := range s.documents {
		keys = append(keys, uri)
	}
	return keys
}
