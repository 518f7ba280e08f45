package aspects

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultNamespace is used when a key is written without a namespace.
const DefaultNamespace = "aetherlib"

// ID is an interned namespace:path key. The zero value is invalid.
type ID struct {
	ns   string
	path string
}

var interned sync.Map // string -> ID

func (id ID) Namespace() string { return id.ns }
func (id ID) Path() string      { return id.path }
func (id ID) IsZero() bool      { return id.ns == "" && id.path == "" }

func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.ns + ":" + id.path
}

func (id ID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("aspects: marshal zero id")
	}
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	v, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ParseID parses "ns:path" or a bare "path" (DefaultNamespace).
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if v, ok := interned.Load(s); ok {
		return v.(ID), nil
	}
	ns, path := DefaultNamespace, s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		ns, path = s[:i], s[i+1:]
	}
	if ns == "" || !validNamespace(ns) {
		return ID{}, fmt.Errorf("aspects: bad namespace in %q", s)
	}
	if path == "" || !validPath(path) {
		return ID{}, fmt.Errorf("aspects: bad path in %q", s)
	}
	id := ID{ns: ns, path: path}
	v, _ := interned.LoadOrStore(s, id)
	return v.(ID), nil
}

// MustID is ParseID for literals.
func MustID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// NewID joins an explicit namespace and path.
func NewID(ns, path string) (ID, error) {
	return ParseID(ns + ":" + path)
}

func validNamespace(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '.' || c == '-') {
			return false
		}
	}
	return true
}

func validPath(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '.' || c == '-' || c == '/') {
			return false
		}
	}
	return true
}

// Less orders ids by namespace, then path.
func Less(a, b ID) bool {
	if a.ns != b.ns {
		return a.ns < b.ns
	}
	return a.path < b.path
}
