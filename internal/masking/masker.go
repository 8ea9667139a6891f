// Package masking redacts secret-shaped substrings from tool call
// arguments and results before they're written to the durable event
// log or to disk logs.
package masking

// Masker is a code-based masker that needs structural awareness beyond
// a single regex pattern — it can parse a recognizable shape (here,
// shell-style KEY=VALUE assignment blocks) and mask only the values
// that look like secrets, leaving the rest of the structure intact.
type Masker interface {
	// Name is this masker's unique identifier, used in logs.
	Name() string
	// AppliesTo is a cheap pre-check (no parsing) deciding whether Mask
	// is worth running at all.
	AppliesTo(data string) bool
	// Mask applies the masking logic, defensively returning the
	// original data unchanged on any parse failure.
	Mask(data string) string
}
