package layout

// Alignment is the alignment of every allocation payload inside the pool.
const Alignment = 8

// SchemaVersion defines version of the schema.
type SchemaVersion uint64

// Schema versions
const (
	PoolV0 SchemaVersion = iota
	RedoV0
)

// Address is the byte offset inside the pool.
type Address uint64

// TypeCode tags allocations and objects so they may be resurrected after restart.
type TypeCode uint64

// Reserved type codes of raw substructure blobs.
const (
	// FreeTypeCode is never assigned to a live allocation.
	FreeTypeCode TypeCode = 0

	// ArrayDataTypeCode tags raw array element bytes.
	ArrayDataTypeCode TypeCode = 70

	// StringTypeCode tags UTF-8 strings.
	StringTypeCode TypeCode = 71
)

// OID identifies an allocation. It stays valid across restarts of the pool.
type OID struct {
	PoolUUIDLo uint64
	Offset     Address
}

// OIDNull means "no allocation".
var OIDNull = OID{}

// IsNull returns true if oid does not point to any allocation.
func (oid OID) IsNull() bool {
	return oid == OIDNull
}

// AlignUp rounds size up to the allocation alignment.
func AlignUp(size uint64) uint64 {
	return (size + Alignment - 1) / Alignment * Alignment
}
