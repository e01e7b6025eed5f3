package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// FieldKind selects how a field takes part in diffs and merges.
type FieldKind int

const (
	// Scalar fields are compared and replaced as a whole.
	Scalar FieldKind = iota
	// Map fields are diffed per key. A null value in a diff removes the key.
	Map
	// NestedMap fields are diffed per key of per key (user then node). An
	// outer key left without entries is dropped.
	NestedMap
)

// Field describes one attribute of a record.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	Default  func() any
	Validate Validator
}

// Schema is the descriptor of a record kind. The generic persistence layer
// is driven entirely by it.
type Schema struct {
	Entity   EntityType
	Identity string
	Fields   []Field
}

// Field returns the descriptor of the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Check verifies mandatory fields are present and runs the validators of
// the fields that are.
func (s Schema) Check(doc map[string]any) error {
	for _, f := range s.Fields {
		v, present := doc[f.Name]
		if !present || v == nil {
			if f.Required {
				return MissingFieldError{Entity: s.Entity, Field: f.Name}
			}
			continue
		}
		if f.Validate != nil {
			if err := f.Validate(v); err != nil {
				return InvalidFormatError{Entity: s.Entity, Field: f.Name, Reason: err.Error()}
			}
		}
	}
	return nil
}

// Missing returns the first mandatory field absent from doc.
func (s Schema) Missing(doc map[string]any) (string, bool) {
	for _, f := range s.Fields {
		if !f.Required {
			continue
		}
		if v, ok := doc[f.Name]; !ok || v == nil || v == "" {
			return f.Name, true
		}
	}
	return "", false
}

// ApplyDefaults fills absent fields that declare a default.
func (s Schema) ApplyDefaults(doc map[string]any) {
	for _, f := range s.Fields {
		if f.Default == nil {
			continue
		}
		if v, ok := doc[f.Name]; !ok || v == nil {
			doc[f.Name] = f.Default()
		}
	}
}

// Project drops attributes the schema does not declare.
func (s Schema) Project(doc map[string]any) map[string]any {
	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		if v, ok := doc[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

// Diff computes the changes turning original into current. Map fields
// yield only the changed keys; removed keys map to null. Scalars appear
// only when their value differs. The identity field never appears.
func (s Schema) Diff(original, current map[string]any) map[string]any {
	diff := map[string]any{}
	for _, f := range s.Fields {
		if f.Name == s.Identity {
			continue
		}
		before, after := original[f.Name], current[f.Name]
		switch f.Kind {
		case Map:
			if d := diffMap(asMap(before), asMap(after)); len(d) > 0 {
				diff[f.Name] = d
			}
		case NestedMap:
			if d := diffNested(asMap(before), asMap(after)); len(d) > 0 {
				diff[f.Name] = d
			}
		default:
			if !Equal(before, after) {
				diff[f.Name] = after
			}
		}
	}
	return diff
}

// Overwrite returns every declared field of current except the identity,
// skipping absent ones.
func (s Schema) Overwrite(current map[string]any) map[string]any {
	out := map[string]any{}
	for _, f := range s.Fields {
		if f.Name == s.Identity {
			continue
		}
		if v, ok := current[f.Name]; ok && v != nil {
			out[f.Name] = v
		}
	}
	return out
}

// Merge applies a diff produced by Diff onto a stored document in place and
// returns it. Unknown fields and the identity are ignored.
func (s Schema) Merge(stored, diff map[string]any) map[string]any {
	if stored == nil {
		stored = map[string]any{}
	}
	for name, value := range diff {
		f, ok := s.Field(name)
		if !ok || name == s.Identity {
			continue
		}
		switch f.Kind {
		case Map:
			stored[name] = mergeMap(asMap(stored[name]), asMap(value))
		case NestedMap:
			stored[name] = mergeNested(asMap(stored[name]), asMap(value))
		default:
			if value != nil {
				stored[name] = value
				continue
			}
			if f.Default != nil {
				stored[name] = f.Default()
			} else if !f.Required {
				delete(stored, name)
			}
		}
	}
	return stored
}

// Replace sets every field of fields on stored wholesale, bypassing per-key
// merges. The identity is never replaced.
func (s Schema) Replace(stored, fields map[string]any) map[string]any {
	if stored == nil {
		stored = map[string]any{}
	}
	for name, value := range fields {
		if _, ok := s.Field(name); !ok || name == s.Identity {
			continue
		}
		if value == nil {
			delete(stored, name)
			continue
		}
		stored[name] = value
	}
	return stored
}

func diffMap(before, after map[string]any) map[string]any {
	d := map[string]any{}
	for k, v := range after {
		if old, ok := before[k]; !ok || !Equal(old, v) {
			d[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			d[k] = nil
		}
	}
	return d
}

func diffNested(before, after map[string]any) map[string]any {
	d := map[string]any{}
	for outer, inner := range after {
		if sub := diffMap(asMap(before[outer]), asMap(inner)); len(sub) > 0 {
			d[outer] = sub
		}
	}
	for outer, inner := range before {
		if _, ok := after[outer]; ok {
			continue
		}
		sub := map[string]any{}
		for k := range asMap(inner) {
			sub[k] = nil
		}
		if len(sub) > 0 {
			d[outer] = sub
		}
	}
	return d
}

func mergeMap(stored, diff map[string]any) map[string]any {
	if stored == nil {
		stored = map[string]any{}
	}
	for k, v := range diff {
		if v == nil {
			delete(stored, k)
			continue
		}
		stored[k] = v
	}
	return stored
}

func mergeNested(stored, diff map[string]any) map[string]any {
	if stored == nil {
		stored = map[string]any{}
	}
	for outer, value := range diff {
		if value == nil {
			delete(stored, outer)
			continue
		}
		inner := mergeMap(asMap(stored[outer]), asMap(value))
		if len(inner) == 0 {
			delete(stored, outer)
			continue
		}
		stored[outer] = inner
	}
	return stored
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// Equal compares two normalized document values.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// ToDocument converts a record into its normalized document form: the
// result of a JSON round trip with numbers kept as json.Number.
func ToDocument(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return ParseDocument(raw)
}

// ParseDocument decodes a JSON object into the normalized document form.
func ParseDocument(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return doc, nil
}

// FromDocument decodes a document into a record.
func FromDocument(doc map[string]any, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// Decode builds a record from an inbound JSON body. Undeclared attributes
// are dropped, mandatory fields and validators are checked, and defaults
// are applied to absent fields.
func Decode[T any](s Schema, raw []byte) (T, error) {
	var out T
	doc, err := ParseDocument(raw)
	if err != nil {
		return out, InvalidFormatError{Entity: s.Entity, Field: "body", Reason: err.Error()}
	}
	doc = s.Project(doc)
	if err := s.Check(doc); err != nil {
		return out, err
	}
	s.ApplyDefaults(doc)
	if err := FromDocument(doc, &out); err != nil {
		return out, InvalidFormatError{Entity: s.Entity, Field: "body", Reason: err.Error()}
	}
	return out, nil
}
