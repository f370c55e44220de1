package protocol

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed defs/*.json
var bundled embed.FS

// ErrNotFound is returned when no definition file exists for a protocol,
// neither in the project-local override location nor among the bundled
// definitions.
var ErrNotFound = errors.New("protocol not found")

// ParseError wraps a malformed definition file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing protocol %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError reports a structurally invalid definition: a required
// field is absent or an invariant is violated.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("protocol schema: %s: %s", e.Field, e.Reason)
}

// LocalPath returns the project-local override location for a protocol
// definition. A file there shadows the bundled definition of the same name.
func LocalPath(root, name string) string {
	return filepath.Join(root, ".drover", "protocols", name+".json")
}

// Load reads, validates, and normalizes the named protocol definition.
// The project-local override location is checked first, then the bundled
// definitions shipped with the binary. Load performs no side effects.
func Load(root, name string) (*Definition, error) {
	data, err := os.ReadFile(LocalPath(root, name))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading protocol %q: %w", name, err)
		}
		data, err = bundled.ReadFile("defs/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("protocol %q: %w", name, ErrNotFound)
		}
	}
	return parse(name, data)
}

// parse decodes and validates a definition payload.
func parse(name string, data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &ParseError{Path: name, Err: err}
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	def.normalize()
	return &def, nil
}
