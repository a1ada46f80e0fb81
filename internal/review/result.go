package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilupskalvis/patchtroll/internal/models"
)

// DocsURL is linked from the footer of every review message.
const DocsURL = "https://chromium.googlesource.com/chromiumos/docs/+/HEAD/kernel_faq.md#UPSTREAM_BACKPORT_FROMLIST_and-you"

// Result is the verdict for one change revision. Build it with Add; everything
// else is derived and has no side effects.
type Result struct {
	Change  *models.Change
	details map[Kind][]string
}

// NewResult creates an empty verdict for c.
func NewResult(c *models.Change) *Result {
	return &Result{Change: c, details: make(map[Kind][]string)}
}

// Add records kind with an optional supporting detail. Adding the same kind
// twice keeps both details.
func (r *Result) Add(kind Kind, detail string) {
	if detail == "" {
		if _, ok := r.details[kind]; !ok {
			r.details[kind] = nil
		}
		return
	}
	r.details[kind] = append(r.details[kind], detail)
}

// Has reports whether kind was recorded.
func (r *Result) Has(kind Kind) bool {
	_, ok := r.details[kind]
	return ok
}

// Empty reports whether no outcome was recorded.
func (r *Result) Empty() bool {
	return len(r.details) == 0
}

// Detail returns the joined details recorded for kind.
func (r *Result) Detail(kind Kind) string {
	return strings.Join(r.details[kind], "\n\n")
}

// Kinds returns all recorded kinds in rendering order.
func (r *Result) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.details))
	for k := range r.details {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Issues returns the recorded kinds that block approval.
func (r *Result) Issues() []Kind {
	var out []Kind
	for _, k := range r.Kinds() {
		if k.IsIssue() {
			out = append(out, k)
		}
	}
	return out
}

// Feedback returns the recorded informational kinds.
func (r *Result) Feedback() []Kind {
	var out []Kind
	for _, k := range r.Kinds() {
		if !k.IsIssue() {
			out = append(out, k)
		}
	}
	return out
}

// Vote is -1 when any issue is present, 0 otherwise.
func (r *Result) Vote() int {
	vote := 0
	for k := range r.details {
		if v := k.Vote(); v < vote {
			vote = v
		}
	}
	return vote
}

// Notify returns the most escalated notification level of the recorded kinds.
func (r *Result) Notify() Notify {
	n := NotifyNone
	for k := range r.details {
		if kn := k.Notify(); kn > n {
			n = kn
		}
	}
	return n
}

// finish marks a verdict without findings as a success.
func (r *Result) finish() *Result {
	if r.Empty() {
		r.Add(Success, "")
	}
	return r
}

// Message renders the review text that gets posted on the change.
func (r *Result) Message() string {
	var sb strings.Builder

	sb.WriteString("This is an automated review")
	if r.Change != nil && r.Change.Current != nil {
		fmt.Fprintf(&sb, " of patchset %d", r.Change.Current.Number)
	}
	sb.WriteString(".\n\n")

	issues, feedback := r.Issues(), r.Feedback()

	switch len(issues) {
	case 0:
		if r.Has(Success) && len(feedback) == 1 {
			sb.WriteString("This change matches the content it claims to derive from. ")
			sb.WriteString("A human reviewer still needs to approve it.\n")
		}
	case 1:
		sb.WriteString("Found 1 issue that needs to be fixed before this change can land:\n")
	default:
		fmt.Fprintf(&sb, "Found %d issues that need to be fixed before this change can land:\n", len(issues))
	}
	r.writeSection(&sb, issues)

	var extra []Kind
	for _, k := range feedback {
		if k != Success {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sb.WriteString("\nAdditional feedback:\n")
		r.writeSection(&sb, extra)
	}

	sb.WriteString("\n---\n")
	fmt.Fprintf(&sb, "To learn more about the required commit message format, see %s\n", DocsURL)
	return sb.String()
}

func (r *Result) writeSection(sb *strings.Builder, kinds []Kind) {
	for i, k := range kinds {
		fmt.Fprintf(sb, "\n%d) %s\n", i+1, k.Title())
		for _, d := range r.details[k] {
			for _, line := range strings.Split(strings.TrimRight(d, "\n"), "\n") {
				if line == "" {
					sb.WriteString("\n")
					continue
				}
				sb.WriteString("   ")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
	}
}

// Summary is a one-line description of the verdict for logs and console output.
func (r *Result) Summary() string {
	names := func(kinds []Kind) string {
		s := make([]string, len(kinds))
		for i, k := range kinds {
			s[i] = k.String()
		}
		return "[" + strings.Join(s, " ") + "]"
	}
	return fmt.Sprintf("issues=%s feedback=%s vote=%d notify=%s",
		names(r.Issues()), names(r.Feedback()), r.Vote(), r.Notify())
}
