package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Encode serializes a document.
func Encode(doc Document) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return raw, nil
}

// Decode parses a serialized document into its normalized form.
func Decode(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("docstore: decode: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// DecodeValue parses a serialized view value.
func DecodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("docstore: decode value: %w", err)
	}
	return v, nil
}

// Normalize returns a deep copy of doc in normalized form along with its
// serialization.
func Normalize(doc Document) (Document, []byte, error) {
	raw, err := Encode(doc)
	if err != nil {
		return nil, nil, err
	}
	out, err := Decode(raw)
	if err != nil {
		return nil, nil, err
	}
	return out, raw, nil
}

// ApplyUpdate runs the named handler of design against a copy of stored and
// enforces the document size quota.
func ApplyUpdate(design Design, handler string, stored, args Document, opts Options) (Document, []byte, error) {
	fn, ok := design.Updates[handler]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownHandler, handler)
	}
	working, _, err := Normalize(stored)
	if err != nil {
		return nil, nil, err
	}
	input, _, err := Normalize(args)
	if err != nil {
		return nil, nil, err
	}
	updated, err := fn(working, input)
	if err != nil {
		return nil, nil, err
	}
	out, raw, err := Normalize(updated)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckSize(raw, opts); err != nil {
		return nil, nil, err
	}
	return out, raw, nil
}

// CheckSize rejects a serialized document larger than the quota of opts
// with ErrPaymentRequired.
func CheckSize(raw []byte, opts Options) error {
	if opts.MaxDocumentBytes > 0 && len(raw) > opts.MaxDocumentBytes {
		return fmt.Errorf("%w: document is %d bytes, quota is %d", ErrPaymentRequired, len(raw), opts.MaxDocumentBytes)
	}
	return nil
}

// IndexRows maps a document through every view of design. Rows of each
// view are sorted by key.
func IndexRows(design Design, id string, doc Document) map[string][]Row {
	out := make(map[string][]Row, len(design.Views))
	for name, view := range design.Views {
		var rows []Row
		view.Map(doc, func(key string, value any) {
			rows = append(rows, Row{ID: id, Key: key, Value: value})
		})
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
		out[name] = rows
	}
	return out
}

// SortRows orders rows by key then document id.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Key != rows[j].Key {
			return rows[i].Key < rows[j].Key
		}
		return rows[i].ID < rows[j].ID
	})
}

// ReduceRows groups rows by key and folds each group with reduce. The
// result is ordered by key.
func ReduceRows(reduce ReduceFunc, rows []Row) []Row {
	groups := map[string][]any{}
	var keys []string
	for _, r := range rows {
		if _, ok := groups[r.Key]; !ok {
			keys = append(keys, r.Key)
		}
		groups[r.Key] = append(groups[r.Key], r.Value)
	}
	sort.Strings(keys)
	out := make([]Row, 0, len(keys))
	for _, k := range keys {
		out = append(out, Row{Key: k, Value: reduce(groups[k])})
	}
	return out
}

// Fingerprint identifies the indexing behaviour of a design.
func Fingerprint(design Design) string {
	names := make([]string, 0, len(design.Views))
	for name := range design.Views {
		names = append(names, name)
	}
	sort.Strings(names)
	return strconv.Itoa(design.Version) + ":" + strings.Join(names, ",")
}

// KeySet builds a lookup set from query keys; nil means every key.
func KeySet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// EncodedRow is a view row with its value serialized, as persisted by the
// backends.
type EncodedRow struct {
	View  string
	Key   string
	ID    string
	Seq   int
	Value []byte
}

// EncodeIndex maps doc through every view of design and serializes the
// resulting rows.
func EncodeIndex(design Design, id string, doc Document) ([]EncodedRow, error) {
	var out []EncodedRow
	for view, rows := range IndexRows(design, id, doc) {
		for i, r := range rows {
			raw, err := json.Marshal(r.Value)
			if err != nil {
				return nil, fmt.Errorf("docstore: encode %s row: %w", view, err)
			}
			out = append(out, EncodedRow{View: view, Key: r.Key, ID: id, Seq: i, Value: raw})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].View != out[j].View {
			return out[i].View < out[j].View
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// Row decodes the row value.
func (r EncodedRow) Row() (Row, error) {
	v, err := DecodeValue(r.Value)
	if err != nil {
		return Row{}, err
	}
	return Row{ID: r.ID, Key: r.Key, Value: v}, nil
}
