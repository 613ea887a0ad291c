package tracing

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on policyhub spans.
const (
	AttrPolicyID        = "policyhub.policy.id"
	AttrPolicyMode      = "policyhub.policy.mode"
	AttrRegistryVersion = "policyhub.registry.version"
	AttrRequestID       = "policyhub.request_id"

	AttrJournalBackend = "policyhub.journal.backend"
	AttrJournalChanges = "policyhub.journal.changes"
)

// PolicyAttributes describes one policy entry. An empty mode is omitted.
func PolicyAttributes(id, mode string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrPolicyID, id)}
	if mode != "" {
		attrs = append(attrs, attribute.String(AttrPolicyMode, mode))
	}
	return attrs
}

// BatchAttributes describes a journal batch ending at version.
func BatchAttributes(changes int, version uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrJournalChanges, changes),
		attribute.Int64(AttrRegistryVersion, int64(version)),
	}
}
