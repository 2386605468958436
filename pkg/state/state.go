// Package state materializes a frozen State from parser output: the
// ordered definition set with resolved cross-links and computed
// effective backends, validated against the grammar, backend and
// graph-wide rules.
package state

import (
	"github.com/netplan-go/netplan/pkg/netdef"
	"github.com/netplan-go/netplan/pkg/parser"
	"github.com/netplan-go/netplan/pkg/util"
)

// State is a frozen, validated collection of definitions plus globals.
// The ordered slice owns the definitions; the map holds weak references
// into it.
type State struct {
	defs    []*netdef.NetDef
	byID    map[string]*netdef.NetDef
	backend netdef.Backend
	ovs     *netdef.OVSSettings
	sources []string
	flags   parser.Flags
}

// New creates an empty state.
func New() *State {
	return &State{byID: make(map[string]*netdef.NetDef)}
}

// Import freezes the parser's accumulated definitions into s. On
// success the parser's scaffolding (missing ids, dirty sets) is
// dropped; with the IgnoreErrors flag set, definitions failing
// validation are logged and discarded instead of failing the import.
func (s *State) Import(p *parser.Parser) error {
	s.flags = p.Flags()
	ignore := p.Flags()&parser.IgnoreErrors != 0

	// Forward-reference closure: every mentioned id must resolve. The
	// per-definition grammar checks are skipped while references are
	// missing, the dangling ids may be the necessary context.
	if err := p.MissingIDError(); err != nil {
		return err
	}
	if err := p.ResolveMembers(); err != nil {
		return err
	}

	s.backend = p.GlobalBackend()
	s.ovs = p.GlobalOVS()
	s.sources = p.Sources()

	defs := p.Defs()
	s.defs = make([]*netdef.NetDef, 0, len(defs))
	s.byID = make(map[string]*netdef.NetDef, len(defs))
	for _, d := range defs {
		s.defs = append(s.defs, d)
		s.byID[d.ID] = d
	}
	for _, d := range s.defs {
		d.ResolveLinks(s.Get)
	}
	for _, d := range s.defs {
		if d.Backend == netdef.BackendNone {
			d.Backend = s.effectiveBackend(d)
		}
	}

	v := &validator{state: s}
	dropped := v.run(ignore)
	for _, id := range dropped {
		s.drop(id)
	}
	if err := v.errs.Build(); err != nil && !ignore {
		return err
	}

	for _, d := range s.defs {
		d.ClearDirty()
	}
	return nil
}

// effectiveBackend picks the renderer for a definition without an
// explicit one: OVS-configured bridges, bonds and patch ports go to
// OpenVSwitch, otherwise the type default against the global renderer.
func (s *State) effectiveBackend(d *netdef.NetDef) netdef.Backend {
	if d.OVS != nil && (d.Type == netdef.TypeBridge || d.Type == netdef.TypeBond) {
		return netdef.BackendOVS
	}
	return netdef.DefaultBackendForType(d.Type, s.backend)
}

func (s *State) drop(id string) {
	d, ok := s.byID[id]
	if !ok {
		return
	}
	util.WithNetdef(id).Warn("dropping definition that failed validation")
	delete(s.byID, id)
	for i := range s.defs {
		if s.defs[i] == d {
			s.defs = append(s.defs[:i], s.defs[i+1:]...)
			break
		}
	}
}

// NetDefs returns the definitions in YAML insertion order.
func (s *State) NetDefs() []*netdef.NetDef { return s.defs }

// NetDefsByType returns definitions of one type, insertion-ordered.
func (s *State) NetDefsByType(t netdef.Type) []*netdef.NetDef {
	var out []*netdef.NetDef
	for _, d := range s.defs {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

// Get returns the definition with the given id, or nil.
func (s *State) Get(id string) *netdef.NetDef { return s.byID[id] }

// Len returns the number of definitions.
func (s *State) Len() int { return len(s.defs) }

// Backend returns the global renderer selection.
func (s *State) Backend() netdef.Backend { return s.backend }

// OVS returns the global Open vSwitch settings, or nil.
func (s *State) OVS() *netdef.OVSSettings { return s.ovs }

// Sources returns the source files that contributed to the state.
func (s *State) Sources() []string { return s.sources }

// ValidationOnly reports whether file writes are suppressed.
func (s *State) ValidationOnly() bool {
	return s.flags&parser.ValidationOnly != 0
}

// HasNondefaultGlobals reports whether the state carries global settings
// beyond the implicit defaults.
func (s *State) HasNondefaultGlobals() bool {
	return s.backend != netdef.BackendNone || s.ovs != nil
}

