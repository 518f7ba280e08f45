package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"aetherlib.ai/internal/sim/aspects"
)

// AspectSyncTag is the first byte of every ASPECT_SYNC binary frame.
const AspectSyncTag byte = 0x01

// MaxStringLen bounds any string in a sync frame.
const MaxStringLen = 32767

var ErrTruncated = errors.New("protocol: truncated aspect sync frame")

type NameMapping struct {
	Name string
	ID   string
}

type AspectRecord struct {
	ID      string
	Name    string
	Texture string
}

// AspectSync carries the registry from server to client: the display-name
// mapping, then the aspect records. Legacy senders stop after the mapping.
type AspectSync struct {
	Names   []NameMapping
	Aspects []AspectRecord
	Legacy  bool
}

// NewAspectSync snapshots a registry in deterministic order. With legacy set
// only the name mapping is included.
func NewAspectSync(r *aspects.Registry, legacy bool) AspectSync {
	var s AspectSync
	for _, n := range r.Names() {
		s.Names = append(s.Names, NameMapping{Name: n.Name, ID: n.ID.String()})
	}
	if legacy {
		s.Legacy = true
		return s
	}
	for _, e := range r.Entries() {
		s.Aspects = append(s.Aspects, AspectRecord{ID: e.ID.String(), Name: e.Def.Name, Texture: e.Def.Texture(e.ID)})
	}
	s.Legacy = len(s.Aspects) == 0
	return s
}

func (s AspectSync) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(AspectSyncTag)
	writeCount(&buf, len(s.Names))
	for _, n := range s.Names {
		if err := writeStrings(&buf, n.Name, n.ID); err != nil {
			return nil, err
		}
	}
	if s.Legacy {
		return buf.Bytes(), nil
	}
	writeCount(&buf, len(s.Aspects))
	for _, a := range s.Aspects {
		if err := writeStrings(&buf, a.ID, a.Name, a.Texture); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a frame. An absent or empty record section marks a
// legacy sender and leaves Aspects nil.
func (s *AspectSync) UnmarshalBinary(b []byte) error {
	if len(b) == 0 || b[0] != AspectSyncTag {
		return fmt.Errorf("protocol: not an aspect sync frame")
	}
	r := bytes.NewReader(b[1:])
	out := AspectSync{}

	n, err := readCount(r, 2)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return err
		}
		id, err := readString(r)
		if err != nil {
			return err
		}
		out.Names = append(out.Names, NameMapping{Name: name, ID: id})
	}

	if r.Len() == 0 {
		out.Legacy = true
		*s = out
		return nil
	}
	n, err = readCount(r, 3)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return err
		}
		name, err := readString(r)
		if err != nil {
			return err
		}
		tex, err := readString(r)
		if err != nil {
			return err
		}
		out.Aspects = append(out.Aspects, AspectRecord{ID: id, Name: name, Texture: tex})
	}
	if r.Len() != 0 {
		return fmt.Errorf("protocol: %d trailing bytes in aspect sync frame", r.Len())
	}
	out.Legacy = len(out.Aspects) == 0
	*s = out
	return nil
}

// Registry rebuilds a client-side registry. For legacy frames every entry
// carries only its display name.
func (s AspectSync) Registry() (*aspects.Registry, error) {
	var entries []aspects.Entry
	if s.Legacy {
		for _, n := range s.Names {
			id, err := aspects.ParseID(n.ID)
			if err != nil {
				return nil, fmt.Errorf("name %q: %w", n.Name, err)
			}
			entries = append(entries, aspects.Entry{ID: id, Def: aspects.Def{Name: n.Name}})
		}
		return aspects.NewRegistry(entries), nil
	}
	for _, a := range s.Aspects {
		id, err := aspects.ParseID(a.ID)
		if err != nil {
			return nil, fmt.Errorf("aspect %q: %w", a.ID, err)
		}
		entries = append(entries, aspects.Entry{ID: id, Def: aspects.Def{Name: a.Name, TextureLocation: a.Texture}})
	}
	return aspects.NewRegistry(entries), nil
}

func writeCount(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

func writeStrings(buf *bytes.Buffer, ss ...string) error {
	for _, s := range ss {
		if len(s) > MaxStringLen {
			return fmt.Errorf("protocol: string of %d bytes exceeds %d", len(s), MaxStringLen)
		}
		buf.Write(binary.AppendUvarint(nil, uint64(len(s))))
		buf.WriteString(s)
	}
	return nil
}

// readCount rejects counts that cannot fit in the remaining bytes, given
// that each entry holds minStrings length prefixes.
func readCount(r *bytes.Reader, minStrings int) (int, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrTruncated
	}
	n := binary.BigEndian.Uint32(b[:])
	if uint64(n)*uint64(minStrings) > uint64(r.Len()) {
		return 0, fmt.Errorf("protocol: count %d exceeds frame size", n)
	}
	return int(n), nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", ErrTruncated
	}
	if n > MaxStringLen {
		return "", fmt.Errorf("protocol: string length %d exceeds %d", n, MaxStringLen)
	}
	if n > uint64(r.Len()) {
		return "", ErrTruncated
	}
	b := make([]byte, n)
	_, _ = io.ReadFull(r, b)
	return string(b), nil
}
