// Package contracts holds the JSON Schema contracts of the validate
// operation. Both schemas are embedded and compiled once.
package contracts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const baseURL = "https://bafe.schemas.local/"

// Schema names.
const (
	Request  = "ValidateRequest"
	Response = "ValidateResponse"
)

// Violation is the first schema violation of a document.
type Violation struct {
	// Path is a JSON pointer into the instance; "" is the document root.
	Path    string
	Message string
}

func (v *Violation) Error() string {
	p := v.Path
	if p == "" {
		p = "/"
	}
	return fmt.Sprintf("%s: %s", p, v.Message)
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func load() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		names := []string{Request, Response}
		for _, name := range names {
			raw, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("contracts: read %s: %w", name, err)
				return
			}
			if err := c.AddResource(baseURL+name+".schema.json", bytes.NewReader(raw)); err != nil {
				compileErr = fmt.Errorf("contracts: load %s: %w", name, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			s, err := c.Compile(baseURL + name + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("contracts: compile %s: %w", name, err)
				return
			}
			out[name] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// MustLoad panics if the embedded schemas do not compile.
func MustLoad() {
	if _, err := load(); err != nil {
		panic(err)
	}
}

// Raw returns the embedded schema document for name.
func Raw(name string) ([]byte, error) {
	return schemaFS.ReadFile("schemas/" + name + ".schema.json")
}

// ValidateRequest checks a decoded request document. doc must be the result
// of decoding JSON into any (json.Number is accepted).
func ValidateRequest(doc any) (*Violation, error) {
	return validate(Request, doc)
}

// ValidateResponse checks a decoded response document.
func ValidateResponse(doc any) (*Violation, error) {
	return validate(Response, doc)
}

func validate(name string, doc any) (*Violation, error) {
	schemas, err := load()
	if err != nil {
		return nil, err
	}
	err = schemas[name].Validate(doc)
	if err == nil {
		return nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("contracts: validate %s: %w", name, err)
	}
	leaf := firstLeaf(ve)
	return &Violation{Path: leaf.InstanceLocation, Message: leaf.Message}, nil
}

// firstLeaf picks a deterministic leaf cause: the deepest instance location,
// ties broken by location then message.
func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	var leaves []*jsonschema.ValidationError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			leaves = append(leaves, e)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	sort.SliceStable(leaves, func(i, j int) bool {
		di, dj := depth(leaves[i].InstanceLocation), depth(leaves[j].InstanceLocation)
		if di != dj {
			return di > dj
		}
		if leaves[i].InstanceLocation != leaves[j].InstanceLocation {
			return leaves[i].InstanceLocation < leaves[j].InstanceLocation
		}
		return leaves[i].Message < leaves[j].Message
	})
	return leaves[0]
}

func depth(pointer string) int {
	if pointer == "" {
		return 0
	}
	return strings.Count(pointer, "/")
}
