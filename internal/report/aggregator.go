package report

import (
	"fmt"

	"github.com/hashguard/hashguard/internal/dispatch"
)

// Summary is the in-memory consolidation of a batch's results.
type Summary struct {
	SuccessHosts []string
	FailureHosts []string

	// Reasons maps a failed host to its short diagnostic.
	Reasons map[string]string
}

// Aggregate partitions results into the success and failure sets.
// Every result lands in exactly one set.
func Aggregate(results []dispatch.Result) *Summary {
	s := &Summary{Reasons: make(map[string]string)}

	for _, r := range results {
		if r.Status == dispatch.StatusSuccess {
			s.SuccessHosts = append(s.SuccessHosts, r.Host)
		} else {
			s.FailureHosts = append(s.FailureHosts, r.Host)
			s.Reasons[r.Host] = r.Reason
		}
	}

	return s
}

// VerifyFailureArtifact asserts the batch-end consistency invariant:
// the in-memory failure set must be exactly as large as the number of
// lines physically present in the failure artifact. A mismatch means
// an append was lost or duplicated and the artifacts cannot be
// trusted.
func (s *Summary) VerifyFailureArtifact(failurePath string) error {
	lines, err := CountLines(failurePath)
	if err != nil {
		return fmt.Errorf("failed to count failure artifact lines: %w", err)
	}

	if lines != len(s.FailureHosts) {
		return fmt.Errorf("failure artifact holds %d lines but %d hosts failed",
			lines, len(s.FailureHosts))
	}

	return nil
}
