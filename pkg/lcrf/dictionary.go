package lcrf

import (
	"io"

	"github.com/samcharles93/lcrf/pkg/quark"
)

// DictionaryFormat builds and opens the string dictionaries stored in the
// label and attribute chunks. The container treats their bytes as opaque.
type DictionaryFormat interface {
	// NewWriter starts a dictionary at the current position of ws. The
	// returned writer must leave ws positioned at the end of the dictionary
	// when closed.
	NewWriter(ws io.WriteSeeker) (DictionaryWriter, error)

	// Open returns a read view over a dictionary starting at data[0]. data
	// may extend past the end of the dictionary.
	Open(data []byte) (Dictionary, error)
}

// DictionaryWriter is a write session for one dictionary.
type DictionaryWriter interface {
	Put(key string, id int) error
	Close() error
}

// Dictionary is an immutable string/id mapping. Implementations must be safe
// for concurrent lookups.
type Dictionary interface {
	ToString(id int) (string, bool)
	ToID(key string) (int, bool)
	Len() int
	// IDBound is one past the largest id stored.
	IDBound() int
	Close() error
}

// QuarkFormat stores dictionaries as quark databases. It is the default.
type QuarkFormat struct{}

func (QuarkFormat) NewWriter(ws io.WriteSeeker) (DictionaryWriter, error) {
	w, err := quark.NewWriter(ws)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (QuarkFormat) Open(data []byte) (Dictionary, error) {
	db, err := quark.Open(data)
	if err != nil {
		return nil, err
	}
	return db, nil
}
