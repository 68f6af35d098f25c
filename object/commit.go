package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/statewalker/vcs-sub012/codec"
)

// PersonIdent is the (name, email, unix-seconds, tz-offset) tuple used for
// both the author and committer lines of a commit, and the tagger line of
// an annotated tag.
type PersonIdent struct {
	Name  string
	Email string
	// When is the number of seconds since the Unix epoch.
	When int64
	// TZOffset is the signed timezone offset in minutes east of UTC.
	TZOffset int
}

func validatePersonIdent(p PersonIdent) error {
	if strings.ContainsAny(p.Name, "<>") {
		return fmt.Errorf("object: person name must not contain '<' or '>'")
	}
	if strings.ContainsAny(p.Email, "<>") {
		return fmt.Errorf("object: person email must not contain '<' or '>'")
	}
	return nil
}

// Encode renders p as "name <email> seconds ±HHMM".
func (p PersonIdent) Encode() string {
	sign := '+'
	off := p.TZOffset
	if off < 0 {
		sign = '-'
		off = -off
	}
	return fmt.Sprintf("%s <%s> %d %c%02d%02d", p.Name, p.Email, p.When, sign, off/60, off%60)
}

// ParsePersonIdent parses the "name <email> seconds ±HHMM" line format.
func ParsePersonIdent(line string) (PersonIdent, error) {
	open := strings.LastIndex(line, "<")
	close := strings.LastIndex(line, ">")
	if open < 0 || close < open {
		return PersonIdent{}, fmt.Errorf("object: malformed person line %q", line)
	}

	name := strings.TrimSpace(line[:open])
	email := line[open+1 : close]

	rest := strings.TrimSpace(line[close+1:])
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return PersonIdent{}, fmt.Errorf("object: malformed person timestamp %q", rest)
	}

	when, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return PersonIdent{}, fmt.Errorf("object: malformed person timestamp %q: %w", fields[0], err)
	}

	tz := fields[1]
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return PersonIdent{}, fmt.Errorf("object: malformed tz offset %q", tz)
	}
	hh, err1 := strconv.Atoi(tz[1:3])
	mm, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return PersonIdent{}, fmt.Errorf("object: malformed tz offset %q", tz)
	}
	offset := hh*60 + mm
	if tz[0] == '-' {
		offset = -offset
	}

	return PersonIdent{Name: name, Email: email, When: when, TZOffset: offset}, nil
}

// Commit is a single revision: a tree plus zero or more parents (a root
// commit has none) and author/committer metadata.
type Commit struct {
	TreeID       codec.ID
	ParentIDs    []codec.ID
	Author       PersonIdent
	Committer    PersonIdent
	Message      string
	Encoding     string // optional; empty means UTF-8 (the field is omitted)
	PGPSignature string // optional; raw "-----BEGIN PGP SIGNATURE-----..." block
}

// Encode renders the commit in Git's exact canonical field order: tree,
// parent(s), author, committer, optional encoding, blank line, message,
// with the PGP signature (if any) embedded as a "gpgsig" header whose
// continuation lines are space-indented, per Git's multi-line header
// convention.
func (c *Commit) Encode() ([]byte, error) {
	if err := validatePersonIdent(c.Author); err != nil {
		return nil, err
	}
	if err := validatePersonIdent(c.Committer); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeID)
	for _, p := range c.ParentIDs {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author.Encode())
	fmt.Fprintf(&buf, "committer %s\n", c.Committer.Encode())
	if c.Encoding != "" {
		fmt.Fprintf(&buf, "encoding %s\n", c.Encoding)
	}
	if c.PGPSignature != "" {
		buf.WriteString("gpgsig ")
		buf.WriteString(indentContinuation(c.PGPSignature))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)

	return buf.Bytes(), nil
}

// indentContinuation re-indents every line after the first with a single
// space, matching how Git stores multi-line header values (gpgsig, mergetag).
func indentContinuation(s string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = " " + lines[i]
	}
	return strings.Join(lines, "\n")
}

func dedentContinuation(s string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = strings.TrimPrefix(lines[i], " ")
	}
	return strings.Join(lines, "\n")
}

// DecodeCommit parses a commit payload.
func DecodeCommit(payload []byte) (*Commit, error) {
	r := bufio.NewReader(bytes.NewReader(payload))
	c := &Commit{}

	for {
		line, err := readHeaderLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}

		key, rest, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("object: commit: malformed header line %q", line)
		}

		switch key {
		case "tree":
			id, err := codec.NewID(rest)
			if err != nil {
				return nil, fmt.Errorf("object: commit: bad tree id: %w", err)
			}
			c.TreeID = id
		case "parent":
			id, err := codec.NewID(rest)
			if err != nil {
				return nil, fmt.Errorf("object: commit: bad parent id: %w", err)
			}
			c.ParentIDs = append(c.ParentIDs, id)
		case "author":
			p, err := ParsePersonIdent(rest)
			if err != nil {
				return nil, err
			}
			c.Author = p
		case "committer":
			p, err := ParsePersonIdent(rest)
			if err != nil {
				return nil, err
			}
			c.Committer = p
		case "encoding":
			c.Encoding = rest
		case "gpgsig":
			full, err := readContinuation(r, rest)
			if err != nil {
				return nil, err
			}
			c.PGPSignature = dedentContinuation(full)
		default:
			// Unknown headers (e.g. mergetag) round-trip as part of the
			// message is wrong; the core engine does not need to preserve
			// them for spec's purposes, so they are simply ignored.
		}
	}

	msg, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	c.Message = string(msg)

	return c, nil
}

// readHeaderLine reads one line (without its trailing newline). An empty
// line (just "\n") signals the end of headers and is reported as "".
func readHeaderLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// readContinuation reads subsequent space-indented lines belonging to a
// multi-line header value that started with first.
func readContinuation(r *bufio.Reader, first string) (string, error) {
	lines := []string{first}
	for {
		peek, err := r.Peek(1)
		if err != nil || len(peek) == 0 || peek[0] != ' ' {
			break
		}
		line, err := readHeaderLine(r)
		if err != nil {
			return "", err
		}
		lines = append(lines, strings.TrimPrefix(line, " "))
	}
	return strings.Join(lines, "\n"), nil
}

// ID returns the content-addressed ID of c.
func (c *Commit) ID() (codec.ID, error) {
	payload, err := c.Encode()
	if err != nil {
		return codec.ID{}, err
	}
	return Hash(CommitType, payload), nil
}
