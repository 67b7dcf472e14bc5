// Package jobname holds the naming conventions shared by submission,
// resumption and batch tracking: batch job ids, runner job names carrying the
// purpose tag, and the deterministic object keys derived from them.
package jobname

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// PassHandle is the synthetic handle returned when submission is skipped
	// because a satisfying artifact already exists.
	PassHandle = "PASS"

	separator        = "_"
	maxNameLength    = 200
	maxPurposeLength = 64
)

// The runner only accepts job names made of these characters.
var invalidChars = regexp.MustCompile(`[^0-9a-zA-Z._-]`)

// NewBatchJobID returns a batch job id of the form job_<8 hex>_<UTC seconds>.
// The embedded timestamp is there for operators reading the status table.
func NewBatchJobID(now time.Time) string {
	return fmt.Sprintf("job_%s_%s", uuid.NewString()[:8], now.UTC().Format("2006-01-02T15:04:05"))
}

// New returns a unique runner job name for the given purpose and input.
func New(purpose, inputRef string) string {
	tag := purposeTag(purpose)
	suffix := uuid.NewString()[:8]
	input := sanitize(inputRef)
	// keep the purpose tag and the unique suffix, trim the input part
	if keep := maxNameLength - len(tag) - len(suffix) - 2*len(separator); len(input) > keep {
		input = input[:keep]
	}
	return tag + separator + input + separator + suffix
}

// MatchesPurpose reports whether the job name was issued for the purpose.
// The tag never contains the separator, so the first segment of the name is
// compared exactly.
func MatchesPurpose(name, purpose string) bool {
	if purpose == "" {
		return false
	}
	first, _, found := strings.Cut(name, separator)
	return found && first == purposeTag(purpose)
}

// OutputKey is the content-addressed key where the runner writes the result
// for (purpose, inputRef). The same key is probed for short-circuiting.
func OutputKey(prefix, purpose, inputRef string) string {
	return joinKey(prefix, fmt.Sprintf("%s-%s.json", purpose, inputRef))
}

// MetadataKey is the key of the extra-metadata document of a unit of work.
func MetadataKey(prefix, purpose, inputRef string) string {
	return joinKey(prefix, fmt.Sprintf("%s-%s.json", purpose, inputRef))
}

func joinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func sanitize(s string) string {
	return invalidChars.ReplaceAllString(s, "-")
}

// purposeTag is the first segment of every job name of a purpose.
func purposeTag(purpose string) string {
	tag := strings.ReplaceAll(sanitize(purpose), separator, "-")
	if len(tag) > maxPurposeLength {
		tag = tag[:maxPurposeLength]
	}
	return tag
}
