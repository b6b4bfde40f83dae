package packagedb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/zjrosen/pkgdb/internal/artifact"
	"github.com/zjrosen/pkgdb/internal/savor"
)

// FormatVersion is written first in every stream.
const FormatVersion = 1

const (
	maxStringLen = 1 << 20
	flagGhost    = 1 << 0
)

// Stream layout, all integers as varints:
//
//	format-version db-version
//	instance-count instance...   (dependency order: targets first)
//	feed-count feed...
//	has-last-update [unix-nanos]
//
// Savor contexts and sets go through one interning pool shared by the
// whole stream. The first occurrence is written in full and takes the next
// pool index; later ones are written as a reference to that index. Reader
// and writer must fill their pools in exactly the same order.

// Write serializes db to w.
func Write(w io.Writer, db *DB) error {
	e := &encoder{w: bufio.NewWriter(w), pool: make(map[any]int)}

	order, err := dependencyOrder(db.store)
	if err != nil {
		return err
	}

	e.uvarint(FormatVersion)
	e.uvarint(uint64(db.version))
	e.uvarint(uint64(len(order)))
	written := make(map[*Instance]int, len(order))
	for i, p := range order {
		written[p] = i
		e.key(p.key)
		var flags uint64
		if p.ghost {
			flags |= flagGhost
		}
		e.uvarint(flags)
		if p.ghost {
			e.strings(p.consulted)
		}
		e.set(p.savors)
		e.uvarint(uint64(len(p.deps)))
		for _, ref := range p.deps {
			e.uvarint(uint64(written[ref.Target]))
			e.uvarint(uint64(ref.Kind))
			e.set(ref.Savors)
		}
	}

	feeds := db.Feeds()
	e.uvarint(uint64(len(feeds)))
	for _, f := range feeds {
		e.str(f.name.String())
		e.uvarint(uint64(f.store.Len()))
		for _, p := range f.store.items {
			i, _ := db.store.Position(p.key)
			e.uvarint(uint64(i))
		}
	}

	if db.lastUpdate.IsZero() {
		e.uvarint(0)
	} else {
		e.uvarint(1)
		e.varint(db.lastUpdate.UnixNano())
	}

	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

// dependencyOrder lists the store in post-order so that every edge target
// comes before its owner. It fails if an edge leaves the store.
func dependencyOrder(store Store) ([]*Instance, error) {
	order := make([]*Instance, 0, store.Len())
	done := make(map[*Instance]bool, store.Len())
	var visit func(p *Instance) error
	visit = func(p *Instance) error {
		if done[p] {
			return nil
		}
		done[p] = true
		for _, ref := range p.deps {
			if store.Find(ref.Target.key) != ref.Target {
				return fmt.Errorf("package %s: dependency %s is not part of the store", p.key, ref.Target.key)
			}
			if err := visit(ref.Target); err != nil {
				return err
			}
		}
		order = append(order, p)
		return nil
	}
	for _, p := range store.items {
		if err := visit(p); err != nil {
			return nil, err
		}
	}
	return order, nil
}

type encoder struct {
	w    *bufio.Writer
	pool map[any]int
	err  error
	buf  [binary.MaxVarintLen64]byte
}

func (e *encoder) write(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) uvarint(v uint64) {
	e.write(e.buf[:binary.PutUvarint(e.buf[:], v)])
}

func (e *encoder) varint(v int64) {
	e.write(e.buf[:binary.PutVarint(e.buf[:], v)])
}

func (e *encoder) str(s string) {
	e.uvarint(uint64(len(s)))
	e.write([]byte(s))
}

func (e *encoder) strings(ss []string) {
	e.uvarint(uint64(len(ss)))
	for _, s := range ss {
		e.str(s)
	}
}

func (e *encoder) key(k artifact.Instance) {
	e.str(string(k.Type))
	e.str(k.Name)
	e.str(k.Version.String())
}

// context writes 0 and the name the first time c is seen, index+1 after.
func (e *encoder) context(c savor.Context) {
	if idx, ok := e.pool[c]; ok {
		e.uvarint(uint64(idx) + 1)
		return
	}
	e.uvarint(0)
	e.str(c.Name())
	e.pool[c] = len(e.pool)
}

// set writes 0 for the empty set, 1 and the set the first time it is seen,
// index+2 after.
func (e *encoder) set(s savor.Set) {
	if s.IsEmpty() {
		e.uvarint(0)
		return
	}
	if idx, ok := e.pool[s]; ok {
		e.uvarint(uint64(idx) + 2)
		return
	}
	e.uvarint(1)
	e.context(s.Context())
	e.str(s.String())
	e.pool[s] = len(e.pool)
}

// Read deserializes a database written by Write.
func Read(r io.Reader) (*DB, error) {
	d := &decoder{r: bufio.NewReader(r)}
	db, err := d.db()
	switch {
	case err == nil:
		return db, nil
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrCorruptStream):
		return nil, err
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: unexpected end of stream", ErrCorruptStream)
	default:
		return nil, fmt.Errorf("%w: %w", ErrCorruptStream, err)
	}
}

type decoder struct {
	r    *bufio.Reader
	pool []any
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptStream, fmt.Sprintf(format, args...))
}

func (d *decoder) db() (*DB, error) {
	format, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if format != FormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, format)
	}
	version, err := d.uvarint()
	if err != nil {
		return nil, err
	}

	count, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	order := make([]*Instance, 0, min(count, 1<<16))
	for i := uint64(0); i < count; i++ {
		p, err := d.instance(order)
		if err != nil {
			return nil, err
		}
		order = append(order, p)
	}
	items := slices.Clone(order)
	slices.SortFunc(items, (*Instance).Compare)
	for i := 1; i < len(items); i++ {
		if items[i-1].key == items[i].key {
			return nil, corrupt("duplicate package %s", items[i].key)
		}
	}
	store := newStore(items)

	feedCount, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	feeds := make(map[FeedName]*Feed, min(feedCount, 1<<10))
	for i := uint64(0); i < feedCount; i++ {
		f, err := d.feed(store)
		if err != nil {
			return nil, err
		}
		if _, dup := feeds[f.name]; dup {
			return nil, corrupt("duplicate feed %s", f.name)
		}
		feeds[f.name] = f
	}

	db := &DB{store: store, feeds: feeds, version: int(version)}
	hasLastUpdate, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if hasLastUpdate != 0 {
		nanos, err := binary.ReadVarint(d.r)
		if err != nil {
			return nil, err
		}
		db.lastUpdate = time.Unix(0, nanos).UTC()
	}
	return db, nil
}

func (d *decoder) instance(order []*Instance) (*Instance, error) {
	key, err := d.key()
	if err != nil {
		return nil, err
	}
	flags, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	p := &Instance{key: key, ghost: flags&flagGhost != 0}
	if p.ghost {
		if p.consulted, err = d.strings(); err != nil {
			return nil, err
		}
	}
	if p.savors, err = d.set(); err != nil {
		return nil, err
	}
	depCount, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	for j := uint64(0); j < depCount; j++ {
		target, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if target >= uint64(len(order)) {
			return nil, corrupt("package %s: dependency %d is not written yet", key, target)
		}
		kind, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if !DependencyKind(kind).Valid() || kind > uint64(KindBuild) {
			return nil, corrupt("package %s: invalid dependency kind %d", key, kind)
		}
		s, err := d.set()
		if err != nil {
			return nil, err
		}
		if !s.IsEmpty() && !s.IsSubsetOf(p.savors) {
			return nil, corrupt("package %s: edge savors %q outside %q", key, s, p.savors)
		}
		p.deps = append(p.deps, Reference{Target: order[target], Kind: DependencyKind(kind), Savors: s})
	}
	return p, nil
}

func (d *decoder) feed(store Store) (*Feed, error) {
	raw, err := d.str()
	if err != nil {
		return nil, err
	}
	name, err := ParseFeedName(raw)
	if err != nil {
		return nil, corrupt("%v", err)
	}
	count, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if count > uint64(store.Len()) {
		return nil, corrupt("feed %s has %d packages, store has %d", name, count, store.Len())
	}
	items := make([]*Instance, 0, count)
	prev := -1
	for i := uint64(0); i < count; i++ {
		pos, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if pos >= uint64(store.Len()) || int(pos) <= prev {
			return nil, corrupt("feed %s: invalid package position %d", name, pos)
		}
		prev = int(pos)
		items = append(items, store.At(prev))
	}
	return &Feed{name: name, store: newStore(items)}, nil
}

func (d *decoder) uvarint() (uint64, error) {
	return binary.ReadUvarint(d.r)
}

func (d *decoder) str() (string, error) {
	n, err := d.uvarint()
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", corrupt("string of %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *decoder) strings() ([]string, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	var ss []string
	for i := uint64(0); i < n; i++ {
		s, err := d.str()
		if err != nil {
			return nil, err
		}
		ss = append(ss, s)
	}
	return ss, nil
}

func (d *decoder) key() (artifact.Instance, error) {
	var parts [3]string
	for i := range parts {
		s, err := d.str()
		if err != nil {
			return artifact.Instance{}, err
		}
		parts[i] = s
	}
	key := artifact.NewInstance(artifact.Type(parts[0]), parts[1], parts[2])
	if !key.Valid() {
		return artifact.Instance{}, corrupt("invalid package key %q", parts)
	}
	return key, nil
}

func (d *decoder) context() (savor.Context, error) {
	marker, err := d.uvarint()
	if err != nil {
		return savor.Context{}, err
	}
	if marker == 0 {
		name, err := d.str()
		if err != nil {
			return savor.Context{}, err
		}
		c, err := savor.NewContext(name)
		if err != nil {
			return savor.Context{}, corrupt("%v", err)
		}
		d.pool = append(d.pool, c)
		return c, nil
	}
	idx := marker - 1
	if idx >= uint64(len(d.pool)) {
		return savor.Context{}, corrupt("unknown pool reference %d", idx)
	}
	c, ok := d.pool[idx].(savor.Context)
	if !ok {
		return savor.Context{}, corrupt("pool reference %d is not a savor context", idx)
	}
	return c, nil
}

func (d *decoder) set() (savor.Set, error) {
	marker, err := d.uvarint()
	if err != nil {
		return savor.Set{}, err
	}
	switch marker {
	case 0:
		return savor.Set{}, nil
	case 1:
		c, err := d.context()
		if err != nil {
			return savor.Set{}, err
		}
		raw, err := d.str()
		if err != nil {
			return savor.Set{}, err
		}
		s, err := savor.Parse(c, raw)
		if err != nil || s.IsEmpty() {
			return savor.Set{}, corrupt("invalid savors %q", raw)
		}
		d.pool = append(d.pool, s)
		return s, nil
	}
	idx := marker - 2
	if idx >= uint64(len(d.pool)) {
		return savor.Set{}, corrupt("unknown pool reference %d", idx)
	}
	s, ok := d.pool[idx].(savor.Set)
	if !ok {
		return savor.Set{}, corrupt("pool reference %d is not a savor set", idx)
	}
	return s, nil
}
