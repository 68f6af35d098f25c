package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/statewalker/vcs-sub012/codec"
	"github.com/statewalker/vcs-sub012/refs"
	"github.com/statewalker/vcs-sub012/wire/pktline"
)

// ServiceRequest is the parsed form of a smart-protocol request line:
// "<service> <path>\x00host=<host>\x00".
type ServiceRequest struct {
	Service string
	Path    string
	Host    string
}

// ErrMalformedRequest is returned by ParseServiceRequest for a line
// that doesn't match the "<service> <path>\0host=<h>\0" shape.
var ErrMalformedRequest = errors.New("wire: malformed service request")

// ParseServiceRequest parses a pkt-line's payload as a service
// request line, as sent ahead of the ref advertisement over git:// or
// embedded in the HTTP request path for smart HTTP.
func ParseServiceRequest(line []byte) (*ServiceRequest, error) {
	parts := bytes.SplitN(line, []byte{0}, 2)
	head := strings.TrimSpace(string(parts[0]))

	sp := strings.IndexByte(head, ' ')
	if sp < 0 {
		return nil, ErrMalformedRequest
	}
	req := &ServiceRequest{Service: head[:sp], Path: head[sp+1:]}

	if len(parts) > 1 {
		for _, field := range bytes.Split(parts[1], []byte{0}) {
			if host, ok := strings.CutPrefix(string(field), "host="); ok {
				req.Host = host
			}
		}
	}
	return req, nil
}

// Capabilities is an ordered set of protocol capability tokens, some
// carrying a value ("agent=...", "symref=..."). Order is preserved
// since the first line of a ref advertisement or request conveys
// capabilities space-separated in the order they were added.
type Capabilities struct {
	order  []string
	values map[string]string
}

// NewCapabilities returns an empty capability set.
func NewCapabilities() *Capabilities {
	return &Capabilities{values: make(map[string]string)}
}

// Add appends name to the set, optionally with a value, ignoring a
// duplicate add of the same name.
func (c *Capabilities) Add(name string, value ...string) {
	if _, ok := c.values[name]; ok {
		return
	}
	c.order = append(c.order, name)
	if len(value) > 0 {
		c.values[name] = value[0]
	} else {
		c.values[name] = ""
	}
}

// Supports reports whether name was added to the set.
func (c *Capabilities) Supports(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Get returns the value associated with name, if any.
func (c *Capabilities) Get(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// String renders the set as a space-separated capability line, "name"
// for a flag, "name=value" for a valued capability.
func (c *Capabilities) String() string {
	parts := make([]string, 0, len(c.order))
	for _, name := range c.order {
		if v := c.values[name]; v != "" {
			parts = append(parts, name+"="+v)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseCapabilities splits a capability line as found trailing the
// first ref line of an advertisement or request.
func ParseCapabilities(line string) *Capabilities {
	c := NewCapabilities()
	for _, tok := range strings.Fields(line) {
		if name, value, ok := strings.Cut(tok, "="); ok {
			c.Add(name, value)
		} else {
			c.Add(tok)
		}
	}
	return c
}

// AdvertisedRef pairs a reference name with the object it resolves
// to, for ref advertisement.
type AdvertisedRef struct {
	Name refs.ReferenceName
	ID   codec.ID
}

// AdvertiseRefs writes an advertised-refs pkt-line message: head (if
// non-nil), then others, with capabilities on the first ref line, and a
// closing flush-pkt. When there are no refs at all it writes a single
// zero-id "capabilities^{}" line instead. others must be sorted by Name;
// callers building the list from an iteration should sort first.
func AdvertiseRefs(w io.Writer, head *AdvertisedRef, others []AdvertisedRef, caps *Capabilities) error {
	capLine := ""
	if caps != nil {
		capLine = caps.String()
	}

	first := true
	writeRef := func(name string, id codec.ID) error {
		line := id.String() + " " + name
		if first {
			if capLine != "" {
				line += "\x00" + capLine
			}
			first = false
		}
		_, err := pktline.WritePacketString(w, line+"\n")
		return err
	}

	if head != nil {
		if err := writeRef(string(head.Name), head.ID); err != nil {
			return err
		}
	}
	for _, ref := range others {
		if err := writeRef(string(ref.Name), ref.ID); err != nil {
			return err
		}
	}

	if first {
		// No refs at all: the empty-repository "no-refs" line.
		line := codec.ID{}.String() + " capabilities^{}\x00" + capLine
		if _, err := pktline.WritePacketString(w, line+"\n"); err != nil {
			return err
		}
	}

	return pktline.WriteFlush(w)
}

// SortRefs sorts refs by name, as AdvertiseRefs' others parameter
// requires and Git's own advertisement does.
func SortRefs(refs []AdvertisedRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
}

// UploadPackHandler serves an upload-pack request: wants/haves have
// already been read from r by the caller's negotiation loop, and the
// handler writes the resulting pack to w.
type UploadPackHandler func(w io.Writer, r io.Reader, wants, haves []codec.ID) error

// ReceivePackHandler applies a receive-pack request: ref update
// commands plus an embedded pack read from r.
type ReceivePackHandler func(r io.Reader, commands []RefCommand) error

// RefCommand is one ref update line of a receive-pack request.
type RefCommand struct {
	Name refs.ReferenceName
	Old  codec.ID
	New  codec.ID
}

// Handlers bundles the caller-supplied service implementations
// Dispatch routes a parsed ServiceRequest to.
type Handlers struct {
	UploadPack  UploadPackHandler
	ReceivePack ReceivePackHandler
}

// ErrUnknownService is returned by Dispatch for a service name neither
// upload-pack nor receive-pack.
var ErrUnknownService = errors.New("wire: unknown service")

// Dispatch routes req to the matching handler. It only performs the
// routing; reading the negotiation lines and pack bytes off r is each
// handler's own responsibility, since upload-pack and receive-pack
// negotiate differently.
func Dispatch(req *ServiceRequest, r io.Reader, w io.Writer, h Handlers) error {
	switch req.Service {
	case "git-upload-pack":
		if h.UploadPack == nil {
			return fmt.Errorf("wire: no upload-pack handler configured")
		}
		return dispatchUploadPack(r, w, h.UploadPack)
	case "git-receive-pack":
		if h.ReceivePack == nil {
			return fmt.Errorf("wire: no receive-pack handler configured")
		}
		return dispatchReceivePack(r, h.ReceivePack)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownService, req.Service)
	}
}

// dispatchUploadPack reads "want <id>[ capabilities]" lines up to a
// flush, then "have <id>" lines up to "done", and invokes handler with
// the negotiated sets.
func dispatchUploadPack(r io.Reader, w io.Writer, handler UploadPackHandler) error {
	var wants, haves []codec.ID
	var caps *Capabilities

	s := pktline.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(string(s.Bytes()))
		if line == "" {
			break
		}
		rest, ok := strings.CutPrefix(line, "want ")
		if !ok {
			return fmt.Errorf("wire: expected \"want\", got %q", line)
		}
		if sp := strings.IndexByte(rest, ' '); sp >= 0 {
			if caps == nil {
				caps = ParseCapabilities(rest[sp+1:])
			}
			rest = rest[:sp]
		}
		id, err := codec.NewID(rest)
		if err != nil {
			return err
		}
		wants = append(wants, id)
	}
	if err := s.Err(); err != nil {
		return err
	}

	for s.Scan() {
		line := strings.TrimSpace(string(s.Bytes()))
		if line == "done" || line == "" {
			break
		}
		rest, ok := strings.CutPrefix(line, "have ")
		if !ok {
			return fmt.Errorf("wire: expected \"have\", got %q", line)
		}
		id, err := codec.NewID(rest)
		if err != nil {
			return err
		}
		haves = append(haves, id)
	}
	if err := s.Err(); err != nil {
		return err
	}

	return handler(w, r, wants, haves)
}

// dispatchReceivePack reads ref update command lines up to a flush
// (the embedded pack, if any, follows immediately and is left for
// handler to consume from r) and invokes handler.
func dispatchReceivePack(r io.Reader, handler ReceivePackHandler) error {
	var commands []RefCommand

	s := pktline.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(string(s.Bytes()))
		if line == "" {
			break
		}
		if sp := strings.IndexByte(line, '\x00'); sp >= 0 {
			line = line[:sp]
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return fmt.Errorf("wire: malformed ref command %q", line)
		}
		oldID, err := codec.NewID(fields[0])
		if err != nil {
			return err
		}
		newID, err := codec.NewID(fields[1])
		if err != nil {
			return err
		}
		commands = append(commands, RefCommand{Name: refs.ReferenceName(fields[2]), Old: oldID, New: newID})
	}
	if err := s.Err(); err != nil {
		return err
	}

	return handler(r, commands)
}
