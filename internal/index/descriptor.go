package index

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/skyline93/strvct/internal/strvct"
)

// Loader resolves a path with an expected content hash to its bytes.
type Loader interface {
	LoadResource(ctx context.Context, path string, id strvct.ID) ([]byte, error)
}

// Descriptor is one indexed resource together with its content once loaded.
type Descriptor struct {
	strvct.IndexEntry

	m       sync.Mutex
	loaded  bool
	data    []byte
	decoded bool
	value   interface{}
}

// Ext returns the lowercase extension of the resource.
func (d *Descriptor) Ext() string {
	return strvct.Ext(d.Path)
}

// Loaded reports whether the content is available without loading.
func (d *Descriptor) Loaded() bool {
	d.m.Lock()
	defer d.m.Unlock()
	return d.loaded
}

// Load returns the raw content, loading it through l on first use. Concurrent
// callers wait for the first one; a failed load is not remembered.
func (d *Descriptor) Load(ctx context.Context, l Loader) ([]byte, error) {
	d.m.Lock()
	defer d.m.Unlock()

	if d.loaded {
		return d.data, nil
	}

	buf, err := l.LoadResource(ctx, d.Path, d.Hash)
	if err != nil {
		return nil, err
	}

	d.data = buf
	d.loaded = true
	return buf, nil
}

// Value returns the decoded content: parsed JSON for .json resources, a
// string for text resources and the raw bytes for everything else.
func (d *Descriptor) Value(ctx context.Context, l Loader) (interface{}, error) {
	buf, err := d.Load(ctx, l)
	if err != nil {
		return nil, err
	}

	d.m.Lock()
	defer d.m.Unlock()

	if d.decoded {
		return d.value, nil
	}

	switch {
	case d.Ext() == "json":
		var v interface{}
		if err := json.Unmarshal(buf, &v); err != nil {
			return nil, errors.Wrapf(err, "decode %v", d.Path)
		}
		d.value = v
	case strvct.IsText(d.Path):
		d.value = string(buf)
	default:
		d.value = buf
	}

	d.decoded = true
	return d.value, nil
}
