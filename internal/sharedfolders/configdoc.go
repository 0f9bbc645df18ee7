package sharedfolders

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReservedSection is the single top-level key this engine owns inside an
// external package's native configuration document. Everything outside it is
// foreign content and must round-trip untouched.
const ReservedSection = "stability_matrix"

// SectionEntry is one key/value pair upserted into the reserved section.
// Multi-directory values are newline-joined by the caller.
type SectionEntry struct {
	Key   string
	Value string
}

// ConfigDoc is a package-native structured document: an ordered mapping
// keyed by string. It is modeled on yaml.Node so unrelated sections keep
// their original relative order, styles, and comments across a
// read-modify-write cycle.
type ConfigDoc struct {
	root   *yaml.Node
	indent int
}

// NewConfigDoc returns an empty mapping document.
func NewConfigDoc() *ConfigDoc {
	return &ConfigDoc{
		root: &yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		},
		indent: defaultIndent,
	}
}

// LoadConfigDoc reads the document at path. An absent or unparsable file
// yields a fresh empty document; a parsable file whose top level is not a
// mapping is foreign content and yields an invalid-config error.
func LoadConfigDoc(path string) (*ConfigDoc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfigDoc(), nil
		}
		return nil, errConfigIO("read", path, err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return NewConfigDoc(), nil
	}
	if node.Kind == 0 || len(node.Content) == 0 {
		// empty file
		return NewConfigDoc(), nil
	}
	if node.Content[0].Kind != yaml.MappingNode {
		return nil, errInvalidConfig(path, "top level is not a mapping")
	}
	return &ConfigDoc{root: &node, indent: detectIndent(b)}, nil
}

const defaultIndent = 2

// detectIndent reads the document's own indent width off its first indented
// line, so re-encoding keeps foreign sections formatted as the package wrote
// them. A flat document falls back to the default.
func detectIndent(b []byte) int {
	for _, line := range strings.Split(string(b), "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if n := len(line) - len(trimmed); n > 0 {
			return n
		}
	}
	return defaultIndent
}

func (d *ConfigDoc) mapping() *yaml.Node { return d.root.Content[0] }

// findKey returns the index of the key node for key inside mapping m, or -1.
func findKey(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

// UpsertSection writes entries under the reserved section, creating it when
// absent. Unrelated sections are left in place; the reserved section itself
// is normalized to the last position. If the reserved section exists but is
// not a mapping the document is left untouched and an invalid-config error
// is returned.
func (d *ConfigDoc) UpsertSection(path string, entries []SectionEntry) error {
	m := d.mapping()
	var sec *yaml.Node
	if i := findKey(m, ReservedSection); i >= 0 {
		val := m.Content[i+1]
		switch {
		case val.Kind == yaml.MappingNode:
			sec = val
		case val.Kind == yaml.ScalarNode && val.Tag == "!!null":
			sec = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		default:
			return errInvalidConfig(path, "reserved section is not a mapping")
		}
		// detach; re-appended below at the normalized position
		m.Content = append(m.Content[:i], m.Content[i+2:]...)
	} else {
		sec = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}

	for _, e := range entries {
		val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Value}
		if strings.Contains(e.Value, "\n") {
			val.Style = yaml.LiteralStyle
		}
		if i := findKey(sec, e.Key); i >= 0 {
			sec.Content[i+1] = val
		} else {
			sec.Content = append(sec.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key}, val)
		}
	}

	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ReservedSection}, sec)
	return nil
}

// RemoveSection deletes exactly the reserved section. It reports whether the
// document changed; removal of an absent section is a no-op.
func (d *ConfigDoc) RemoveSection() bool {
	m := d.mapping()
	i := findKey(m, ReservedSection)
	if i < 0 {
		return false
	}
	m.Content = append(m.Content[:i], m.Content[i+2:]...)
	return true
}

// Empty reports whether the document holds no sections at all.
func (d *ConfigDoc) Empty() bool { return len(d.mapping().Content) == 0 }

// Encode renders the whole document.
func (d *ConfigDoc) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(d.indent)
	if err := enc.Encode(d.root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the whole document atomically: encode, write a sibling temp
// file, then rename over path. A failure never leaves path half-written.
func (d *ConfigDoc) Save(path string) error {
	b, err := d.Encode()
	if err != nil {
		return errConfigIO("encode", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errConfigIO("mkdir", path, err)
	}
	tmp, err := os.CreateTemp(dir, ".smconfig-*")
	if err != nil {
		return errConfigIO("write", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errConfigIO("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errConfigIO("write", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errConfigIO("rename", path, err)
	}
	return nil
}
