package worker

// IngestPayload is the queue message that hands a document to the ingestion
// pipeline. Delivery is at-least-once with no ordering guarantee; the
// consumer checks task status before acting on a redelivery.
type IngestPayload struct {
	TaskID         string `json:"task_id"`
	DocumentID     string `json:"document_id"`
	UserID         string `json:"user_id"`
	ProcessingType string `json:"processing_type"`
	CorrelationID  string `json:"correlation_id"`
}
