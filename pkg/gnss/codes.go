package gnss

// Code is a closed-set observation code tag (pseudorange or carrier phase),
// spec.md §3 SvMeasurement.
type Code string

// Supported pseudorange and carrier-phase codes.
const (
	C1C Code = "C1C"
	C1B Code = "C1B"
	C1P Code = "C1P"
	C2C Code = "C2C"
	C2P Code = "C2P"
	C2L Code = "C2L"
	C2I Code = "C2I"
	C2M Code = "C2M"
	C7I Code = "C7I"
	C7Q Code = "C7Q"

	L1C Code = "L1C"
	L1P Code = "L1P"
	L2P Code = "L2P"
	L2C Code = "L2C"
	L2L Code = "L2L"
	L2I Code = "L2I"
	L7I Code = "L7I"
)

// IsCarrierPhase reports whether the code carries cycles rather than seconds.
func (c Code) IsCarrierPhase() bool {
	return len(c) > 0 && c[0] == 'L'
}

// compatibleCodes enumerates, for each satellite system, the codes that may
// legally be reported against it (spec.md §3 SvMeasurement invariant).
var compatibleCodes = map[System]map[Code]bool{
	SysGPS: {C1C: true, C1P: true, C2C: true, C2P: true, C2L: true, C2M: true,
		L1C: true, L1P: true, L2P: true, L2C: true, L2L: true},
	SysGAL: {C1C: true, C1B: true, C7I: true, C7Q: true, L1C: true, L7I: true},
	SysBDS: {C2I: true, C7I: true, L2I: true, L7I: true},
	SysGLO: {C1C: true, C1P: true, C2C: true, C2P: true, L1C: true, L1P: true, L2P: true},
	SysQZSS: {C1C: true, C2C: true, C2L: true, L1C: true, L2C: true, L2L: true},
}

// Compatible reports whether code is a legal observation for sys.
func Compatible(sys System, code Code) bool {
	m, ok := compatibleCodes[sys]
	if !ok {
		return false
	}
	return m[code]
}
