package store

import (
	"sort"
	"strconv"
	"time"
)

// Object is an immutable metadata snapshot of one remote object. All
// fields are fixed at construction; there are no mutators.
type Object struct {
	filename string
	modified time.Time
	size     int64
	etag     string
}

// NewObject builds an Object from a raw listing entry.
func NewObject(filename string, modified time.Time, size int64, etag string) Object {
	return Object{filename: filename, modified: modified, size: size, etag: etag}
}

func (o Object) Filename() string    { return o.filename }
func (o Object) Modified() time.Time { return o.modified }
func (o Object) Size() int64         { return o.size }
func (o Object) ETag() string        { return o.etag }

// AsMap returns the object metadata as a plain mapping.
func (o Object) AsMap() map[string]any {
	return map[string]any{
		"filename": o.filename,
		"modified": o.modified,
		"size":     o.size,
		"etag":     o.etag,
	}
}

// Field names an Object attribute for ordering and lookup.
type Field string

const (
	ByFilename Field = "filename"
	ByModified Field = "modified"
	BySize     Field = "size"
	ByETag     Field = "etag"
)

// Collection is an ordered sequence of Objects. Filtering, ordering and
// slicing return fresh collections; a Collection is never mutated.
type Collection struct {
	objects []Object
}

// NewCollection copies objects into a new collection.
func NewCollection(objects ...Object) Collection {
	cp := make([]Object, len(objects))
	copy(cp, objects)
	return Collection{objects: cp}
}

func (c Collection) Len() int { return len(c.objects) }

// Objects returns a copy of the underlying sequence.
func (c Collection) Objects() []Object {
	cp := make([]Object, len(c.objects))
	copy(cp, c.objects)
	return cp
}

// Filenames returns the filenames of the collection's objects, in order.
func (c Collection) Filenames() []string {
	names := make([]string, len(c.objects))
	for i, o := range c.objects {
		names[i] = o.filename
	}
	return names
}

// Get looks up an object by filename.
func (c Collection) Get(filename string) (Object, bool) {
	return c.GetBy(ByFilename, filename)
}

// GetBy returns the first object whose field renders to value.
func (c Collection) GetBy(field Field, value string) (Object, bool) {
	for _, o := range c.objects {
		if fieldString(o, field) == value {
			return o, true
		}
	}
	return Object{}, false
}

// Filter returns a new collection holding the objects keep accepts.
func (c Collection) Filter(keep func(Object) bool) Collection {
	var kept []Object
	for _, o := range c.objects {
		if keep(o) {
			kept = append(kept, o)
		}
	}
	return Collection{objects: kept}
}

// Ordered returns a new collection sorted by field. The sort is stable,
// so equal keys keep their listing order.
func (c Collection) Ordered(field Field, desc bool) Collection {
	cp := c.Objects()
	sort.SliceStable(cp, func(i, j int) bool {
		if desc {
			i, j = j, i
		}
		return fieldLess(cp[i], cp[j], field)
	})
	return Collection{objects: cp}
}

// Slice returns the sub-range [i, j) as a new collection. Bounds are
// clamped to the collection.
func (c Collection) Slice(i, j int) Collection {
	i = min(max(i, 0), len(c.objects))
	j = min(max(j, i), len(c.objects))
	return NewCollection(c.objects[i:j]...)
}

func fieldLess(a, b Object, field Field) bool {
	switch field {
	case ByModified:
		return a.modified.Before(b.modified)
	case BySize:
		return a.size < b.size
	case ByETag:
		return a.etag < b.etag
	default:
		return a.filename < b.filename
	}
}

func fieldString(o Object, field Field) string {
	switch field {
	case ByModified:
		return o.modified.Format(time.RFC3339)
	case BySize:
		return strconv.FormatInt(o.size, 10)
	case ByETag:
		return o.etag
	default:
		return o.filename
	}
}
