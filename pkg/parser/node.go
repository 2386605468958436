package parser

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netplan-go/netplan/pkg/util"
)

// Node helpers wrap the yaml.v3 node API with the schema errors this
// package reports. Every helper validates the node kind so handlers can
// assume shape.

func (p *Parser) schemaErrorf(n *yaml.Node, format string, args ...interface{}) error {
	e := util.NewSchemaError(p.curFile, n.Line, n.Column, format, args...)
	e.Excerpt = p.excerpt(n.Line)
	return e
}

func (p *Parser) refErrorf(n *yaml.Node, format string, args ...interface{}) error {
	e := util.NewReferenceError(p.curFile, n.Line, n.Column, format, args...)
	e.Excerpt = p.excerpt(n.Line)
	return e
}

func (p *Parser) excerpt(line int) string {
	if line < 1 || line > len(p.curLines) {
		return ""
	}
	return p.curLines[line-1]
}

// resolveAlias rejects alias nodes: the grammar keeps documents free of
// YAML references so the overlay and dirty tracking stay well-defined.
func (p *Parser) resolveAlias(n *yaml.Node) (*yaml.Node, error) {
	if n.Kind == yaml.AliasNode {
		return nil, p.schemaErrorf(n, "YAML aliases are not supported")
	}
	return n, nil
}

func (p *Parser) asScalar(n *yaml.Node, what string) (*yaml.Node, error) {
	n, err := p.resolveAlias(n)
	if err != nil {
		return nil, err
	}
	if n.Kind != yaml.ScalarNode {
		return nil, p.schemaErrorf(n, "expected scalar for %s", what)
	}
	return n, nil
}

func (p *Parser) asString(n *yaml.Node, what string) (string, error) {
	s, err := p.asScalar(n, what)
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

func (p *Parser) asBool(n *yaml.Node, what string) (bool, error) {
	s, err := p.asScalar(n, what)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s.Value) {
	case "true", "yes", "on":
		return true, nil
	case "false", "no", "off":
		return false, nil
	}
	return false, p.schemaErrorf(n, "invalid boolean value '%s' for %s", s.Value, what)
}

func (p *Parser) asInt(n *yaml.Node, what string, min, max int64) (int64, error) {
	s, err := p.asScalar(n, what)
	if err != nil {
		return 0, err
	}
	v, perr := strconv.ParseInt(s.Value, 10, 64)
	if perr != nil {
		return 0, p.schemaErrorf(n, "invalid integer value '%s' for %s", s.Value, what)
	}
	if v < min || v > max {
		return 0, p.schemaErrorf(n, "%s value %d out of range [%d, %d]", what, v, min, max)
	}
	return v, nil
}

func (p *Parser) asUint32(n *yaml.Node, what string) (uint32, error) {
	v, err := p.asInt(n, what, 0, 1<<32-1)
	return uint32(v), err
}

func (p *Parser) asMapping(n *yaml.Node, what string) (*yaml.Node, error) {
	n, err := p.resolveAlias(n)
	if err != nil {
		return nil, err
	}
	if n.Kind != yaml.MappingNode {
		return nil, p.schemaErrorf(n, "expected mapping for %s", what)
	}
	return n, nil
}

func (p *Parser) asSequence(n *yaml.Node, what string) (*yaml.Node, error) {
	n, err := p.resolveAlias(n)
	if err != nil {
		return nil, err
	}
	if n.Kind != yaml.SequenceNode {
		return nil, p.schemaErrorf(n, "expected sequence for %s", what)
	}
	return n, nil
}

// asStringSeq accepts either a scalar or a sequence of scalars.
func (p *Parser) asStringSeq(n *yaml.Node, what string) ([]string, error) {
	n, err := p.resolveAlias(n)
	if err != nil {
		return nil, err
	}
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}, nil
	}
	seq, err := p.asSequence(n, what)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seq.Content))
	for _, item := range seq.Content {
		s, err := p.asString(item, what)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// isNull reports whether the node is an explicit YAML null. A quoted
// empty string is a string, not a null.
func isNull(n *yaml.Node) bool {
	if n.Kind != yaml.ScalarNode {
		return false
	}
	if n.Tag == "!!null" {
		return true
	}
	return n.Tag != "!!str" && (n.Value == "null" || n.Value == "~" || n.Value == "")
}

// eachPair iterates a mapping's key/value pairs.
func (p *Parser) eachPair(m *yaml.Node, fn func(key, value *yaml.Node) error) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, err := p.asScalar(m.Content[i], "mapping key")
		if err != nil {
			return err
		}
		if err := fn(key, m.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
