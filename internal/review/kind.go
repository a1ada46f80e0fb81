// Package review turns a change into a verdict: it picks the strategy matching
// the change's declared origin, runs it, and aggregates the outcomes into a vote,
// a notification level and the message that gets posted.
package review

// Kind is one reviewable outcome. A change can collect several at once.
type Kind int

const (
	Success Kind = iota
	Backport
	AlteredUpstream
	MissingFields
	MissingHash
	InvalidHash
	MissingAm
	IncorrectPrefix
	FixesRef
	KconfigChange
)

// AllKinds lists every Kind in rendering order.
func AllKinds() []Kind {
	return []Kind{
		Success, Backport, AlteredUpstream, MissingFields, MissingHash,
		InvalidHash, MissingAm, IncorrectPrefix, FixesRef, KconfigChange,
	}
}

// String returns the stable name used as the statistics key.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Backport:
		return "backport"
	case AlteredUpstream:
		return "altered_upstream"
	case MissingFields:
		return "missing_fields"
	case MissingHash:
		return "missing_hash"
	case InvalidHash:
		return "invalid_hash"
	case MissingAm:
		return "missing_am"
	case IncorrectPrefix:
		return "incorrect_prefix"
	case FixesRef:
		return "fixes_ref"
	case KconfigChange:
		return "kconfig_change"
	default:
		return "unknown"
	}
}

// Title is the heading used for the kind in review messages.
func (k Kind) Title() string {
	switch k {
	case Success:
		return "No issues found"
	case Backport:
		return "Differences from the upstream commit"
	case AlteredUpstream:
		return "Change differs from the upstream commit"
	case MissingFields:
		return "Missing required commit message fields"
	case MissingHash:
		return "Missing upstream commit reference"
	case InvalidHash:
		return "Upstream commit could not be found"
	case MissingAm:
		return "Missing mailing list reference"
	case IncorrectPrefix:
		return "Subject prefix does not match the commit's origin"
	case FixesRef:
		return "Upstream fixes exist for this commit"
	case KconfigChange:
		return "Kernel config changes"
	default:
		return "Unknown"
	}
}

// IsIssue reports whether the kind blocks approval. Everything else is feedback.
func (k Kind) IsIssue() bool {
	switch k {
	case AlteredUpstream, MissingFields, MissingHash, InvalidHash, MissingAm, IncorrectPrefix:
		return true
	}
	return false
}

// Vote is the Code-Review score the kind asks for on its own.
func (k Kind) Vote() int {
	if k.IsIssue() {
		return -1
	}
	return 0
}

// Notify is who should be emailed when the kind is posted.
func (k Kind) Notify() Notify {
	switch {
	case k.IsIssue():
		return NotifyOwnerReviewers
	case k == Success:
		return NotifyNone
	default:
		return NotifyOwner
	}
}

// Notify is the notification policy for a posted review, in escalating order.
type Notify int

const (
	NotifyNone Notify = iota
	NotifyOwner
	NotifyOwnerReviewers
)

// String returns the review service's wire name for the policy.
func (n Notify) String() string {
	switch n {
	case NotifyOwner:
		return "OWNER"
	case NotifyOwnerReviewers:
		return "OWNER_REVIEWERS"
	default:
		return "NONE"
	}
}
