package session

// Support is a tri-state capability flag
type Support int8

const (
	// Unknown means the capability has not been probed yet
	Unknown Support = iota
	Supported
	Unsupported
)

// String returns the string representation of the support state
func (s Support) String() string {
	switch s {
	case Supported:
		return "yes"
	case Unsupported:
		return "no"
	default:
		return "unknown"
	}
}

// Capability names a probed remote shell feature
type Capability string

const (
	CapBatchStat   Capability = "batch-stat"
	CapDuSb        Capability = "du-sb"
	CapLsTimeStyle Capability = "ls-time-style"
)

// Features records what the bridge and remote shell support.
// Values live for the connection lifetime and reset on disconnection.
type Features struct {
	BridgeVersion       string
	SupportsBatchStat   Support
	SupportsDuSb        Support
	SupportsLsTimeStyle Support
	Probed              bool

	versionChecked bool
	noticed        map[Capability]bool
}

// Get returns the support state of a capability
func (f *Features) Get(c Capability) Support {
	switch c {
	case CapBatchStat:
		return f.SupportsBatchStat
	case CapDuSb:
		return f.SupportsDuSb
	case CapLsTimeStyle:
		return f.SupportsLsTimeStyle
	}
	return Unknown
}

// Set records the support state of a capability
func (f *Features) Set(c Capability, s Support) {
	switch c {
	case CapBatchStat:
		f.SupportsBatchStat = s
	case CapDuSb:
		f.SupportsDuSb = s
	case CapLsTimeStyle:
		f.SupportsLsTimeStyle = s
	}
}

// Allows reports whether a strategy gated by c may be attempted.
// Unknown counts as allowed so an unprobed session still tries the fast path once.
func (f *Features) Allows(c Capability) bool {
	return f.Get(c) != Unsupported
}

// Downgrade marks a capability unsupported and reports whether this is the
// first time a fallback notice is due for it
func (f *Features) Downgrade(c Capability) bool {
	f.Set(c, Unsupported)
	if f.noticed == nil {
		f.noticed = make(map[Capability]bool)
	}
	if f.noticed[c] {
		return false
	}
	f.noticed[c] = true
	return true
}

// VersionChecked reports whether the bridge version was already queried
func (f *Features) VersionChecked() bool {
	return f.versionChecked
}

// MarkVersionChecked records that the bridge version was queried
func (f *Features) MarkVersionChecked() {
	f.versionChecked = true
}

// Reset forgets every device-specific flag. The bridge version is kept since it
// does not depend on the device.
func (f *Features) Reset() {
	f.SupportsBatchStat = Unknown
	f.SupportsDuSb = Unknown
	f.SupportsLsTimeStyle = Unknown
	f.Probed = false
	f.noticed = nil
}
