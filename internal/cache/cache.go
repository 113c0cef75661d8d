// Package cache stores decoded worker records on disk so repeated
// conversions of the same trace can skip parsing.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"mirtrace/internal/record"
)

// Current schema version - increment when entry format changes
const schemaVersion uint16 = 1

// AppName names the cache directory under the user cache root.
const AppName = "mirtrace"

// Key identifies one decoded worker record.
type Key [sha256.Size]byte

// String returns the hex form of k.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// KeyFor derives the key of a worker record from its raw content, the
// runtime creation time it is relative to, and the dictionary fingerprint
// used to resolve its state names.
func KeyFor(content []byte, creationTime int64, dict [sha256.Size]byte) Key {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(creationTime)) //nolint:gosec // bit pattern only
	h.Write(buf[:])
	h.Write(dict[:])
	h.Write(content)
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// Cache is a directory of msgpack-encoded decode results.
// Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// entry is the on-disk form of record.Decoded. Happenings are split by kind
// and Order restores their interleaving.
type entry struct {
	Schema   uint16                            `msgpack:"schema"`
	Worker   int                               `msgpack:"worker"`
	Names    record.NameTables                 `msgpack:"names"`
	Order    []record.Kind                     `msgpack:"order"`
	States   []record.StateInterval            `msgpack:"states"`
	Events   []record.EventRecord              `msgpack:"events"`
	Unknown  int                               `msgpack:"unknown"`
	Warnings []record.UnknownHappeningTagError `msgpack:"warnings"`
}

// Open returns a cache rooted at dir. An empty dir selects
// $XDG_CACHE_HOME/mirtrace, falling back to ~/.cache/mirtrace.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, AppName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key Key) string {
	return filepath.Join(c.dir, "workers", key.String()+".mp")
}

// Put stores d under key. A nil cache ignores the call.
func (c *Cache) Put(key Key, d *record.Decoded) (err error) {
	if c == nil || d == nil {
		return nil
	}
	e := toEntry(d)

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(e); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get loads the entry stored under key. Entries written with another schema
// version are reported as misses.
func (c *Cache) Get(key Key) (*record.Decoded, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var e entry
	if err := msgpack.NewDecoder(f).Decode(&e); err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	if e.Schema != schemaVersion {
		return nil, false, nil
	}
	d, err := fromEntry(&e)
	if err != nil {
		return nil, false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	return d, true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

func toEntry(d *record.Decoded) *entry {
	e := &entry{
		Schema:   schemaVersion,
		Worker:   d.Worker,
		Names:    d.Names,
		Order:    make([]record.Kind, len(d.Happenings)),
		Unknown:  d.Unknown,
		Warnings: d.Warnings,
	}
	for i, h := range d.Happenings {
		e.Order[i] = h.Kind()
		switch v := h.(type) {
		case record.StateInterval:
			e.States = append(e.States, v)
		case record.EventRecord:
			e.Events = append(e.Events, v)
		}
	}
	return e
}

func fromEntry(e *entry) (*record.Decoded, error) {
	if len(e.Order) != len(e.States)+len(e.Events) {
		return nil, fmt.Errorf("order has %d entries for %d happenings", len(e.Order), len(e.States)+len(e.Events))
	}
	d := &record.Decoded{
		Worker:     e.Worker,
		Names:      e.Names,
		Happenings: make([]record.Happening, 0, len(e.Order)),
		Unknown:    e.Unknown,
		Warnings:   e.Warnings,
	}
	var si, ei int
	for _, k := range e.Order {
		switch k {
		case record.KindState:
			if si >= len(e.States) {
				return nil, errors.New("order references missing state")
			}
			d.Happenings = append(d.Happenings, e.States[si])
			si++
		case record.KindEvent:
			if ei >= len(e.Events) {
				return nil, errors.New("order references missing event")
			}
			d.Happenings = append(d.Happenings, e.Events[ei])
			ei++
		default:
			return nil, fmt.Errorf("unknown happening kind %d", k)
		}
	}
	return d, nil
}
