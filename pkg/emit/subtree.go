package emit

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netplan-go/netplan/pkg/util"
)

// PathSep separates segments of the key paths accepted by DumpSubtree
// and CreatePatch. Dots are accepted as a CLI convenience; tabs allow
// keys that themselves contain dots.
const PathSep = "\t"

func splitPath(path string) []string {
	if strings.Contains(path, PathSep) {
		return strings.Split(path, PathSep)
	}
	return strings.Split(path, ".")
}

// DumpSubtree reads a YAML document from r and writes only the subtree
// rooted at the given key path. A scalar leaf is written as-is followed
// by a newline; mappings and sequences are re-emitted in block style.
func DumpSubtree(path string, r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrFile, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", util.ErrParse, err)
	}
	if len(doc.Content) == 0 {
		return fmt.Errorf("%w: empty document", util.ErrParse)
	}
	node := doc.Content[0]
	for _, seg := range splitPath(path) {
		if seg == "" {
			continue
		}
		next := childByKey(node, seg)
		if next == nil {
			return fmt.Errorf("%w: path '%s' not found", util.ErrValidation, strings.Join(splitPath(path), "."))
		}
		node = next
	}
	if node.Kind == yaml.ScalarNode {
		_, err := fmt.Fprintln(w, node.Value)
		return err
	}
	return encode(node, w)
}

func childByKey(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

// CreatePatch writes a minimal YAML document that sets the given key
// path to payload. The payload is parsed as YAML so mappings, sequences
// and typed scalars are all accepted; the special payload "null"
// produces an explicit null usable as a deletion overlay.
func CreatePatch(path, payload string, w io.Writer) error {
	var value yaml.Node
	if err := yaml.Unmarshal([]byte(payload), &value); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", util.ErrParse, err)
	}
	var leaf *yaml.Node
	if len(value.Content) == 0 {
		leaf = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	} else {
		leaf = value.Content[0]
	}
	node := leaf
	segs := splitPath(path)
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == "" {
			continue
		}
		m := newMapping()
		m.set(segs[i], node)
		node = m.node
	}
	return encode(node, w)
}

// MergeDocuments merges patch into base: mappings merge key by key,
// scalars and sequences are replaced, an explicit null in the patch
// deletes the key from base. Returns the merged root.
func MergeDocuments(base, patch *yaml.Node) *yaml.Node {
	if base == nil || base.Kind != yaml.MappingNode || patch.Kind != yaml.MappingNode {
		return patch
	}
	for i := 0; i+1 < len(patch.Content); i += 2 {
		key, value := patch.Content[i], patch.Content[i+1]
		idx := -1
		for j := 0; j+1 < len(base.Content); j += 2 {
			if base.Content[j].Value == key.Value {
				idx = j
				break
			}
		}
		isNull := value.Kind == yaml.ScalarNode && (value.Tag == "!!null" || value.Value == "null")
		switch {
		case isNull && idx >= 0:
			base.Content = append(base.Content[:idx], base.Content[idx+2:]...)
		case isNull:
			// deleting a key that does not exist: nothing to do
		case idx >= 0:
			base.Content[idx+1] = MergeDocuments(base.Content[idx+1], value)
		default:
			base.Content = append(base.Content, key, value)
		}
	}
	return base
}
