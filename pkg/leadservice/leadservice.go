// Package leadservice defines the contract the workflow engine consumes
// from the external CRM that owns lead records.
package leadservice

import (
	"context"
	"errors"
)

// ErrLeadNotFound is returned when the CRM does not know the lead.
var ErrLeadNotFound = errors.New("lead not found")

// Service is the lead-service contract. Calls are at-least-once: a
// retried step may apply the same update or assignment twice, so
// implementations must be idempotent or tolerant of duplicates.
type Service interface {
	// GetLeadFields returns the current field snapshot for a lead.
	GetLeadFields(ctx context.Context, leadID string) (map[string]any, error)
	// ApplyFieldUpdate merges the given updates into the lead record.
	ApplyFieldUpdate(ctx context.Context, leadID string, updates map[string]any) error
	// AssignLead sets the lead owner and/or team. Either value may be empty.
	AssignLead(ctx context.Context, leadID, userID, team string) error
}

// Lister enumerates candidate leads for polled triggers. CRMs that
// cannot expose a listing endpoint leave it unimplemented; polled
// workflows then never enroll anyone.
type Lister interface {
	ListLeadIDs(ctx context.Context) ([]string, error)
}

// IsConverted reports whether a field snapshot marks the lead as
// converted, either via a truthy "converted" flag or a converted stage.
func IsConverted(fields map[string]any) bool {
	if converted, ok := fields["converted"].(bool); ok && converted {
		return true
	}

	stage, _ := fields["stage"].(string)

	return stage == "CONVERTED" || stage == "CLOSED_WON"
}
