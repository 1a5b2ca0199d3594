package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// ValidationError is one field-level configuration problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	return b.String()
}

// InvalidConfigError aggregates every validation error in a file.
type InvalidConfigError struct {
	Errors []ValidationError
}

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Validate checks raw YAML configuration against the embedded CUE
// schema. A nil result means the file is well-formed; otherwise every
// violation is reported, not just the first.
func Validate(name string, data []byte) []ValidationError {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return []ValidationError{{Field: "schema", Message: err.Error()}}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return []ValidationError{{Field: "schema", Message: "missing #Config definition"}}
	}

	if err := cueyaml.Validate(data, def); err != nil {
		return collect(err)
	}
	return nil
}

// collect flattens CUE's error list into field-level errors.
func collect(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		v := ValidationError{
			Field:   strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if pos := e.Position(); pos.IsValid() {
			v.Line = pos.Line()
		}
		out = append(out, v)
	}
	if len(out) == 0 && err != nil {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}
