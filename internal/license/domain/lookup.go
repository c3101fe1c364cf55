package domain

// LookupKind tags the state of a (license, domain) pair before activation.
type LookupKind int

const (
	LookupNotFound LookupKind = iota
	LookupActiveExisting
	LookupDeactivatedExisting
)

func (k LookupKind) String() string {
	switch k {
	case LookupActiveExisting:
		return "active_existing"
	case LookupDeactivatedExisting:
		return "deactivated_existing"
	default:
		return "not_found"
	}
}

// ActivationLookup is the tagged result of looking up a domain on a license.
// Activation is nil exactly when Kind is LookupNotFound.
type ActivationLookup struct {
	Kind       LookupKind
	Activation *Activation
}

func LookupFrom(activation *Activation) ActivationLookup {
	switch {
	case activation == nil:
		return ActivationLookup{Kind: LookupNotFound}
	case activation.IsActive():
		return ActivationLookup{Kind: LookupActiveExisting, Activation: activation}
	default:
		return ActivationLookup{Kind: LookupDeactivatedExisting, Activation: activation}
	}
}
