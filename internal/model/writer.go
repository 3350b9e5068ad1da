package model

import "context"

// InvestigationWriter defines a generic interface for exporting investigations to an external store.
type InvestigationWriter interface {
	// WriteInvestigations appends a batch of investigations. Implementations must not retain the slice.
	WriteInvestigations(ctx context.Context, batch []Investigation) error
}
