package depot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// NodeKind discriminates the two node encodings.
type NodeKind uint8

const (
	// KindDict is a directory node: named references to child nodes.
	KindDict NodeKind = 1

	// KindFile is a leaf node: raw payload plus a content type.
	KindFile NodeKind = 2
)

const (
	maxNameLen        = 4096
	maxContentTypeLen = 255
)

// Entry is one named child reference inside a dict node.
type Entry struct {
	Name string
	Key  Key
}

// Node is the decoded form of a stored node. Dict nodes populate
// Entries; file nodes populate Data, ContentType and Size.
type Node struct {
	Kind        NodeKind
	Entries     []Entry
	Data        []byte
	ContentType string
	Size        int64
}

// Entry returns the child entry with the given name, if present.
func (n *Node) Entry(name string) (Entry, bool) {
	for _, e := range n.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// EncodeDictNode canonically encodes a dict node and computes its key.
// Entries are sorted by name in the encoding, so identical logical
// content always yields identical bytes. Names must be unique and
// non-empty.
//
// Layout: kind(1) count(2) then per entry nameLen(2) name key(16),
// big-endian, entries in ascending name order.
func EncodeDictNode(entries []Entry, kp KeyProvider) ([]byte, Key, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	buf.WriteByte(byte(KindDict))
	if len(sorted) > 0xffff {
		return nil, ZeroKey, fmt.Errorf("depot: dict has %d entries, max %d", len(sorted), 0xffff)
	}
	binary.Write(&buf, binary.BigEndian, uint16(len(sorted)))

	prev := ""
	for i, e := range sorted {
		if e.Name == "" {
			return nil, ZeroKey, fmt.Errorf("depot: dict entry %d has empty name", i)
		}
		if len(e.Name) > maxNameLen {
			return nil, ZeroKey, fmt.Errorf("depot: dict entry %q exceeds %d bytes", e.Name[:32], maxNameLen)
		}
		if i > 0 && e.Name == prev {
			return nil, ZeroKey, fmt.Errorf("depot: duplicate dict entry %q", e.Name)
		}
		prev = e.Name
		binary.Write(&buf, binary.BigEndian, uint16(len(e.Name)))
		buf.WriteString(e.Name)
		buf.Write(e.Key[:])
	}

	encoded := buf.Bytes()
	return encoded, keyForEncoded(kp, encoded), nil
}

// EncodeFileNode canonically encodes a file node and computes its key.
//
// Layout: kind(1) ctLen(1) contentType size(8) payload, big-endian.
// The declared size always equals the payload length.
func EncodeFileNode(data []byte, contentType string, kp KeyProvider) ([]byte, Key, error) {
	if len(contentType) > maxContentTypeLen {
		return nil, ZeroKey, fmt.Errorf("depot: content type exceeds %d bytes", maxContentTypeLen)
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(KindFile))
	buf.WriteByte(byte(len(contentType)))
	buf.WriteString(contentType)
	binary.Write(&buf, binary.BigEndian, uint64(len(data)))
	buf.Write(data)

	encoded := buf.Bytes()
	return encoded, keyForEncoded(kp, encoded), nil
}

// DecodeNode decodes canonical node bytes. Malformed input returns a
// DecodeError and no node; decoding never partially succeeds. The codec
// does not touch storage and knows nothing about authorization.
func DecodeNode(data []byte) (*Node, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty input"}
	}
	switch NodeKind(data[0]) {
	case KindDict:
		return decodeDict(data[1:])
	case KindFile:
		return decodeFile(data[1:])
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown node kind 0x%02x", data[0])}
	}
}

func decodeDict(data []byte) (*Node, error) {
	if len(data) < 2 {
		return nil, &DecodeError{Reason: "dict truncated before entry count"}
	}
	count := int(binary.BigEndian.Uint16(data))
	data = data[2:]

	entries := make([]Entry, 0, count)
	prev := ""
	for i := 0; i < count; i++ {
		if len(data) < 2 {
			return nil, &DecodeError{Reason: fmt.Sprintf("dict entry %d truncated", i)}
		}
		nameLen := int(binary.BigEndian.Uint16(data))
		data = data[2:]
		if nameLen == 0 || nameLen > maxNameLen {
			return nil, &DecodeError{Reason: fmt.Sprintf("dict entry %d has invalid name length %d", i, nameLen)}
		}
		if len(data) < nameLen+DigestSize {
			return nil, &DecodeError{Reason: fmt.Sprintf("dict entry %d truncated", i)}
		}
		name := string(data[:nameLen])
		data = data[nameLen:]

		// Canonical form is strictly name-ascending; anything else is
		// a forged or corrupted encoding.
		if i > 0 && name <= prev {
			return nil, &DecodeError{Reason: fmt.Sprintf("dict entries out of order at %q", name)}
		}
		prev = name

		var k Key
		copy(k[:], data[:DigestSize])
		data = data[DigestSize:]
		entries = append(entries, Entry{Name: name, Key: k})
	}

	if len(data) != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("%d trailing bytes after dict entries", len(data))}
	}
	return &Node{Kind: KindDict, Entries: entries}, nil
}

func decodeFile(data []byte) (*Node, error) {
	if len(data) < 1 {
		return nil, &DecodeError{Reason: "file truncated before content type"}
	}
	ctLen := int(data[0])
	data = data[1:]
	if len(data) < ctLen+8 {
		return nil, &DecodeError{Reason: "file truncated in header"}
	}
	contentType := string(data[:ctLen])
	data = data[ctLen:]

	size := binary.BigEndian.Uint64(data)
	payload := data[8:]
	if uint64(len(payload)) != size {
		return nil, &DecodeError{Reason: fmt.Sprintf("declared size %d, payload has %d bytes", size, len(payload))}
	}

	return &Node{
		Kind:        KindFile,
		Data:        payload,
		ContentType: contentType,
		Size:        int64(size),
	}, nil
}
