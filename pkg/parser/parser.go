// Package parser reads layered netplan YAML into the in-progress
// definition set a State is imported from. It owns the hierarchy
// shadowing rules, the per-field merge semantics, the null-overlay
// patching, forward-reference bookkeeping and the position-carrying
// error surface.
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/util"
)

// Flags tune parser behavior.
type Flags uint

const (
	// IgnoreErrors converts validation errors into warnings; offending
	// definitions are dropped and the rest of the state survives.
	IgnoreErrors Flags = 1 << iota
	// ValidationOnly runs the full pipeline but suppresses file writes.
	ValidationOnly
)

// pathSep joins key-path segments in the null-field set and the subtree
// addressing used by the patch utilities.
const pathSep = "\t"

// refSite remembers where an unresolved id was mentioned so the final
// error points at the original source location.
type refSite struct {
	file      string
	line, col int
	excerpt   string
}

// memberRef is a pending bridge/bond/vrf membership: the parent's
// interfaces list names the member, and the member's link field is only
// set once the member definition exists.
type memberRef struct {
	parentID string
	memberID string
	site     refSite
}

// Parser accumulates definitions across any number of LoadYAML calls.
type Parser struct {
	flags Flags

	defs  map[string]*netdef.NetDef
	order []string

	globalBackend netdef.Backend
	globalOVS     *netdef.OVSSettings

	sources    map[string]struct{}
	missingIDs map[string][]refSite
	members    []memberRef
	nullFields map[string]struct{}

	curFile  string
	curLines []string
}

// New creates an empty parser.
func New() *Parser {
	p := &Parser{}
	p.Reset()
	return p
}

// Reset drops all accumulated state, including dirty sets and the null
// overlay.
func (p *Parser) Reset() {
	p.defs = make(map[string]*netdef.NetDef)
	p.order = nil
	p.globalBackend = netdef.BackendNone
	p.globalOVS = nil
	p.sources = make(map[string]struct{})
	p.missingIDs = make(map[string][]refSite)
	p.members = nil
	p.nullFields = make(map[string]struct{})
}

// SetFlags replaces the parser flags.
func (p *Parser) SetFlags(f Flags) { p.flags = f }

// Flags returns the current parser flags.
func (p *Parser) Flags() Flags { return p.flags }

// Defs returns the in-progress definitions in insertion order. Used by
// State.Import; not part of the public API contract.
func (p *Parser) Defs() []*netdef.NetDef {
	out := make([]*netdef.NetDef, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.defs[id])
	}
	return out
}

// GlobalBackend returns the renderer selected at network scope.
func (p *Parser) GlobalBackend() netdef.Backend { return p.globalBackend }

// GlobalOVS returns the global openvswitch settings, or nil.
func (p *Parser) GlobalOVS() *netdef.OVSSettings { return p.globalOVS }

// Sources returns the set of files that contributed to the state.
func (p *Parser) Sources() []string {
	out := make([]string, 0, len(p.sources))
	for s := range p.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MissingIDError returns the unknown-id error for the first unresolved
// forward reference, or nil when every reference closed.
func (p *Parser) MissingIDError() error {
	if len(p.missingIDs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(p.missingIDs))
	for id := range p.missingIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	site := p.missingIDs[ids[0]][0]
	e := util.NewReferenceError(site.file, site.line, site.col, "definition '%s' was not found", ids[0])
	e.Excerpt = site.excerpt
	return e
}

// ResolveMembers applies the pending bridge/bond/vrf membership lists to
// the member definitions. Call after all files are loaded.
func (p *Parser) ResolveMembers() error {
	for _, m := range p.members {
		parent, pok := p.defs[m.parentID]
		member, mok := p.defs[m.memberID]
		if !pok {
			// parent was deleted by a later overlay; membership dies with it
			continue
		}
		if !mok {
			e := util.NewReferenceError(m.site.file, m.site.line, m.site.col,
				"%s: interface '%s' is not defined", m.parentID, m.memberID)
			e.Excerpt = m.site.excerpt
			return e
		}
		switch parent.Type {
		case netdef.TypeBridge:
			member.BridgeID = parent.ID
		case netdef.TypeBond:
			member.BondID = parent.ID
		case netdef.TypeVRF:
			member.VRFLinkID = parent.ID
		}
	}
	return nil
}

// LoadYAML ingests one file into the parser state.
func (p *Parser) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrFile, err)
	}
	return p.loadData(path, data)
}

// LoadYAMLHierarchy ingests every *.yaml under {lib,etc,run}/netplan
// relative to rootdir. Files are grouped by basename with run > etc >
// lib shadowing, then processed in ascending byte-wise order of
// basename.
func (p *Parser) LoadYAMLHierarchy(rootdir string) error {
	byBase := make(map[string]string)
	// lowest precedence first so later layers shadow
	for _, layer := range []string{"lib/netplan", "etc/netplan", "run/netplan"} {
		matches, err := filepath.Glob(filepath.Join(rootdir, layer, "*.yaml"))
		if err != nil {
			return fmt.Errorf("%w: %v", util.ErrFile, err)
		}
		for _, m := range matches {
			byBase[filepath.Base(m)] = m
		}
	}
	bases := make([]string, 0, len(byBase))
	for b := range byBase {
		bases = append(bases, b)
	}
	sort.Strings(bases)
	for _, b := range bases {
		if err := p.LoadYAML(byBase[b]); err != nil {
			return err
		}
	}
	return nil
}

// LoadNullableFields ingests a null-overlay patch document: every path
// holding an explicit null marks the corresponding field (or whole
// definition) for removal when subsequently encountered during normal
// parsing.
func (p *Parser) LoadNullableFields(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrFile, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return wrapYAMLError("(patch)", data, err)
	}
	if len(doc.Content) == 0 {
		return nil
	}
	p.collectNullPaths(doc.Content[0], nil)
	return nil
}

func (p *Parser) collectNullPaths(n *yaml.Node, path []string) {
	if isNull(n) {
		p.nullFields[strings.Join(path, pathSep)] = struct{}{}
		return
	}
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i]
		if key.Kind != yaml.ScalarNode {
			continue
		}
		p.collectNullPaths(n.Content[i+1], append(path, key.Value))
	}
}

// nulled reports whether the path was marked by the null overlay.
func (p *Parser) nulled(path ...string) bool {
	_, ok := p.nullFields[strings.Join(path, pathSep)]
	return ok
}

// HasNullOverlay reports whether a null overlay was loaded.
func (p *Parser) HasNullOverlay() bool { return len(p.nullFields) > 0 }

func (p *Parser) loadData(path string, data []byte) error {
	p.curFile = path
	p.curLines = strings.Split(string(data), "\n")
	defer func() { p.curFile = ""; p.curLines = nil }()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return wrapYAMLError(path, data, err)
	}
	if len(doc.Content) == 0 {
		// empty file contributes nothing
		return nil
	}
	root, err := p.asMapping(doc.Content[0], "top level")
	if err != nil {
		return err
	}
	sawNetwork := false
	err = p.eachPair(root, func(key, value *yaml.Node) error {
		if key.Value != "network" {
			return p.schemaErrorf(key, "unknown key '%s'", key.Value)
		}
		sawNetwork = true
		if isNull(value) {
			return nil
		}
		return p.processNetwork(value)
	})
	if err != nil {
		return err
	}
	if sawNetwork {
		p.sources[path] = struct{}{}
	}
	return nil
}

// wrapYAMLError converts a raw yaml.v3 failure into a positioned parse
// error, with specialized messages for tab indentation and aliases.
func wrapYAMLError(path string, data []byte, err error) error {
	msg := err.Error()
	line := 0
	// yaml.v3 formats "yaml: line N: ..."
	if n, rest, ok := yamlErrorLine(msg); ok {
		line = n
		msg = rest
	}
	switch {
	case strings.Contains(msg, "found a tab character"):
		msg = "tab characters are not allowed as indentation"
	case strings.Contains(msg, "unknown anchor"), strings.Contains(msg, "anchor"):
		msg = "YAML anchors and aliases are not supported: " + msg
	}
	e := util.NewParseError(path, line, 1, "%s", msg)
	if line >= 1 {
		lines := strings.Split(string(data), "\n")
		if line <= len(lines) {
			e.Excerpt = lines[line-1]
		}
	}
	return e
}

func yamlErrorLine(msg string) (int, string, bool) {
	const prefix = "yaml: line "
	if !strings.HasPrefix(msg, prefix) {
		return 0, strings.TrimPrefix(msg, "yaml: "), false
	}
	rest := msg[len(prefix):]
	sep := strings.Index(rest, ": ")
	if sep < 0 {
		return 0, msg, false
	}
	var n int
	if _, err := fmt.Sscanf(rest[:sep], "%d", &n); err != nil {
		return 0, msg, false
	}
	return n, rest[sep+2:], true
}

func (p *Parser) processNetwork(n *yaml.Node) error {
	m, err := p.asMapping(n, "'network'")
	if err != nil {
		return err
	}
	sawVersion := false
	err = p.eachPair(m, func(key, value *yaml.Node) error {
		switch key.Value {
		case "version":
			v, err := p.asInt(value, "version", 0, 1<<31)
			if err != nil {
				return err
			}
			if v != 2 {
				return p.schemaErrorf(value, "only version 2 is supported")
			}
			sawVersion = true
			return nil
		case "renderer":
			name, err := p.asString(value, "renderer")
			if err != nil {
				return err
			}
			b, ok := netdef.BackendByName(name)
			if !ok {
				return p.schemaErrorf(value, "unknown renderer '%s'", name)
			}
			p.globalBackend = b
			return nil
		case "openvswitch":
			if p.globalOVS == nil {
				p.globalOVS = &netdef.OVSSettings{}
			}
			return p.processOVS(value, p.globalOVS, true)
		}
		t, ok := netdef.TypeByName(key.Value)
		if !ok {
			return p.schemaErrorf(key, "unknown key '%s'", key.Value)
		}
		if isNull(value) {
			return nil
		}
		return p.processGroup(t, key.Value, value)
	})
	if err != nil {
		return err
	}
	if !sawVersion && len(m.Content) > 0 {
		return p.schemaErrorf(n, "missing 'version' (only version 2 is supported)")
	}
	return nil
}

func (p *Parser) processGroup(t netdef.Type, groupKey string, n *yaml.Node) error {
	m, err := p.asMapping(n, fmt.Sprintf("'%s'", groupKey))
	if err != nil {
		return err
	}
	return p.eachPair(m, func(idNode, defNode *yaml.Node) error {
		id := idNode.Value
		if id == "" {
			return p.schemaErrorf(idNode, "empty interface id")
		}
		if isNull(defNode) || p.nulled("network", groupKey, id) {
			p.deleteDef(id)
			return nil
		}
		def := p.getOrCreateDef(id, t)
		if def.Type != t {
			return p.schemaErrorf(idNode,
				"updated definition '%s' changes device type from '%s' to '%s'",
				id, def.Type, t)
		}
		def.Filepath = p.curFile
		return p.processDef(def, groupKey, defNode)
	})
}

func (p *Parser) getOrCreateDef(id string, t netdef.Type) *netdef.NetDef {
	if def, ok := p.defs[id]; ok {
		return def
	}
	def := netdef.New(id, t)
	p.defs[id] = def
	p.order = append(p.order, id)
	delete(p.missingIDs, id)
	return def
}

func (p *Parser) deleteDef(id string) {
	if _, ok := p.defs[id]; !ok {
		return
	}
	delete(p.defs, id)
	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// recordRef registers a cross-definition reference for the forward
// reference closure check.
func (p *Parser) recordRef(id string, n *yaml.Node) {
	if _, ok := p.defs[id]; ok {
		return
	}
	p.missingIDs[id] = append(p.missingIDs[id], refSite{
		file: p.curFile, line: n.Line, col: n.Column, excerpt: p.excerpt(n.Line),
	})
}

// recordMember registers one entry of a bridge/bond/vrf interfaces list.
func (p *Parser) recordMember(parent *netdef.NetDef, memberID string, n *yaml.Node) {
	p.recordRef(memberID, n)
	p.members = append(p.members, memberRef{
		parentID: parent.ID,
		memberID: memberID,
		site:     refSite{file: p.curFile, line: n.Line, col: n.Column, excerpt: p.excerpt(n.Line)},
	})
}
