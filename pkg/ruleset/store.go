package ruleset

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

//go:embed rulesets/*.yaml
var embedded embed.FS

const fileSuffix = ".yaml"

// Store reads ruleset documents from one or more file systems. Layers are
// consulted in order; the first that holds <id>.yaml wins.
type Store struct {
	layers []fs.FS
}

// NewStore returns a store over the given layers.
func NewStore(layers ...fs.FS) *Store {
	return &Store{layers: layers}
}

// Embedded returns the file system holding the built-in rulesets.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "rulesets")
	if err != nil {
		panic(fmt.Sprintf("ruleset: embedded rulesets: %v", err))
	}
	return sub
}

// DefaultStore reads from dir when non-empty, falling back to the built-in
// rulesets.
func DefaultStore(dir string) *Store {
	if dir == "" {
		return NewStore(Embedded())
	}
	return NewStore(os.DirFS(dir), Embedded())
}

// Load reads and parses the ruleset with the given id.
func (s *Store) Load(id string) (*Descriptor, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	name := id + fileSuffix
	for _, layer := range s.layers {
		data, err := fs.ReadFile(layer, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ruleset: read %s: %w", name, err)
		}
		d, err := Parse(data, id)
		if err != nil {
			return nil, fmt.Errorf("ruleset %s: %w", id, err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// IDs lists the ids available across all layers, sorted.
func (s *Store) IDs() ([]string, error) {
	seen := make(map[string]struct{})
	for _, layer := range s.layers {
		matches, err := fs.Glob(layer, "*"+fileSuffix)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			id := strings.TrimSuffix(m, fileSuffix)
			if ValidID(id) {
				seen[id] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
