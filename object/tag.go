package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/statewalker/vcs-sub012/codec"
)

// Tag is an annotated tag object: a named, signed-or-not pointer to
// another object (usually a commit).
type Tag struct {
	Object       codec.ID
	ObjectType   Type
	Name         string
	Tagger       PersonIdent
	Message      string
	PGPSignature string
}

// Encode renders the tag in Git's canonical field order.
func (t *Tag) Encode() ([]byte, error) {
	if err := validatePersonIdent(t.Tagger); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object)
	fmt.Fprintf(&buf, "type %s\n", t.ObjectType)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s\n", t.Tagger.Encode())
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	if t.PGPSignature != "" {
		if !strings.HasSuffix(t.Message, "\n") {
			buf.WriteByte('\n')
		}
		buf.WriteString(t.PGPSignature)
	}

	return buf.Bytes(), nil
}

// DecodeTag parses a tag payload, splitting off a trailing signature block
// if present using the same detection DetectSignatureType relies on.
func DecodeTag(payload []byte) (*Tag, error) {
	r := bufio.NewReader(bytes.NewReader(payload))
	t := &Tag{}

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
			return nil, fmt.Errorf("object: tag: malformed header line %q", line)
		}

		switch key {
		case "object":
			id, err := codec.NewID(rest)
			if err != nil {
				return nil, fmt.Errorf("object: tag: bad object id: %w", err)
			}
			t.Object = id
		case "type":
			typ, err := ParseType(rest)
			if err != nil {
				return nil, err
			}
			t.ObjectType = typ
		case "tag":
			t.Name = rest
		case "tagger":
			p, err := ParsePersonIdent(rest)
			if err != nil {
				return nil, err
			}
			t.Tagger = p
		}
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if pos, _ := parseSignedBytes(rest); pos != -1 {
		t.Message = string(rest[:pos])
		t.PGPSignature = string(rest[pos:])
	} else {
		t.Message = string(rest)
	}

	return t, nil
}

// ID returns the content-addressed ID of t.
func (t *Tag) ID() (codec.ID, error) {
	payload, err := t.Encode()
	if err != nil {
		return codec.ID{}, err
	}
	return Hash(TagType, payload), nil
}
