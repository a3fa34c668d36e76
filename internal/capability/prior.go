package capability

import "context"

type priorRecordsKey struct{}

// WithPriorRecords attaches the records of earlier successful steps to
// the context. Capabilities with optional parameters can fall back to
// these, e.g. deriving repository names from previously fetched mail.
func WithPriorRecords(ctx context.Context, records []Record) context.Context {
	if len(records) == 0 {
		return ctx
	}
	return context.WithValue(ctx, priorRecordsKey{}, records)
}

// PriorRecords returns the records attached by WithPriorRecords, or nil.
func PriorRecords(ctx context.Context) []Record {
	records, _ := ctx.Value(priorRecordsKey{}).([]Record)
	return records
}
