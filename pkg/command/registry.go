package command

import (
	"reflect"
	"sort"
)

// Descriptor describes how to materialise a command type.
type Descriptor struct {
	Type Type
	Name string
	New  func() Message
}

// Table lists, per protocol version, the command types that version understands.
type Table map[ProtocolVersion][]Descriptor

var (
	resultDescriptor             = Descriptor{TypeResult, "RESULT", func() Message { return &Result{} }}
	transferDescriptor           = Descriptor{TypeTransfer, "TRANSFER", func() Message { return &Transfer{} }}
	echoDescriptor               = Descriptor{TypeEcho, "ECHO", func() Message { return &Echo{} }}
	threadDumpDescriptor         = Descriptor{TypeThreadDump, "THREAD_DUMP", func() Message { return &ThreadDump{} }}
	threadDumpResponseDescriptor = Descriptor{TypeThreadDumpResponse, "THREAD_DUMP_RESPONSE", func() Message { return &ThreadDumpResponse{} }}
)

// DefaultTable returns the command table shipped with the agent.
func DefaultTable() Table {
	v102 := []Descriptor{resultDescriptor, transferDescriptor, echoDescriptor}
	v103 := append(append([]Descriptor{}, v102...), threadDumpDescriptor, threadDumpResponseDescriptor)
	return Table{
		Version1_0_2: v102,
		Version1_0_3: v103,
	}
}

// TypeRegistry resolves wire type codes to descriptors for one protocol version,
// and concrete messages back to their type codes. It is immutable after
// construction and safe for concurrent use.
type TypeRegistry struct {
	version  ProtocolVersion
	byType   map[Type]Descriptor
	byGoType map[reflect.Type]Type
}

// NewTypeRegistry builds a registry for version from DefaultTable.
func NewTypeRegistry(version ProtocolVersion) *TypeRegistry {
	return NewTypeRegistryFromTable(version, DefaultTable())
}

// NewTypeRegistryFromTable builds a registry for version from table.
// Descriptors with a nil constructor are skipped. RESULT is always resolvable,
// even for a version missing from the table, so a failure answer can be encoded
// under any registry; a table entry for RESULT replaces the built-in one.
// When two codes materialise the same Go type, TypeOf reports the first one
// listed.
func NewTypeRegistryFromTable(version ProtocolVersion, table Table) *TypeRegistry {
	r := &TypeRegistry{
		version:  version,
		byType:   make(map[Type]Descriptor),
		byGoType: make(map[reflect.Type]Type),
	}
	for _, d := range table[version] {
		if d.New == nil {
			continue
		}
		r.add(d)
	}
	if _, ok := r.byType[TypeResult]; !ok {
		r.add(resultDescriptor)
	}
	return r
}

func (r *TypeRegistry) add(d Descriptor) {
	r.byType[d.Type] = d
	goType := reflect.TypeOf(d.New())
	if _, taken := r.byGoType[goType]; !taken {
		r.byGoType[goType] = d.Type
	}
}

// Version returns the protocol version the registry was built for.
func (r *TypeRegistry) Version() ProtocolVersion {
	return r.version
}

// Resolve returns the descriptor for t. ok is false when the version does not know t.
func (r *TypeRegistry) Resolve(t Type) (Descriptor, bool) {
	d, ok := r.byType[t]
	return d, ok
}

// TypeOf returns the wire type code for msg. ok is false for nil messages and for
// message kinds the version does not know.
func (r *TypeRegistry) TypeOf(msg Message) (Type, bool) {
	if msg == nil {
		return TypeUnknown, false
	}
	t, ok := r.byGoType[reflect.TypeOf(msg)]
	return t, ok
}

// Types returns the known type codes in ascending order.
func (r *TypeRegistry) Types() []Type {
	types := make([]Type, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
