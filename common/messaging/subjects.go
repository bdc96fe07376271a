package messaging

// Subjects follow {domain}.{resource}.{qualifier}.
const (
	// SubjectAuditBatches carries raw CloudWatch Logs subscription payloads.
	SubjectAuditBatches = "audit.batches.raw"

	// SubjectAuditDLQ prefixes dead-lettered records; the failing backend is appended.
	SubjectAuditDLQ = "audit.dlq"
)

// QueueLanders is the queue group shared by consume workers so each batch
// lands once.
const QueueLanders = "audit-landers"

// Header names understood by the consumer.
const (
	// HeaderFormat selects the batch layout (logevents, records, auto).
	HeaderFormat = "Trailhawk-Format"

	// HeaderEncoding selects the decoder (gzip, base64-gzip, auto).
	HeaderEncoding = "Trailhawk-Encoding"
)

// DLQSubject returns the dead-letter subject for a backend, e.g. audit.dlq.dynamodb.
func DLQSubject(backend string) string {
	if backend == "" {
		backend = "unknown"
	}
	return SubjectAuditDLQ + "." + backend
}
