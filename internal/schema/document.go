package schema

import "fmt"

// IDField is the primary key of every stored document.
const IDField = "_id"

// VersionField stamps a document with the schema version it was last written
// or migrated at.
const VersionField = "_schema_version"

// Document is a schemaless record as read from or written to a collection.
type Document map[string]any

// Clone returns a shallow copy. Nested maps and slices are shared.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ID renders the primary key as a string, or "" when absent.
func (d Document) ID() string {
	v, ok := d[IDField]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// StampedVersion returns the version recorded in VersionField.
func (d Document) StampedVersion() (Version, bool) {
	raw, ok := d[VersionField].(string)
	if !ok {
		return Version{}, false
	}
	v, err := ParseVersion(raw)
	if err != nil {
		return Version{}, false
	}
	return v, true
}

// Stamp records v in VersionField.
func (d Document) Stamp(v Version) {
	d[VersionField] = v.String()
}
