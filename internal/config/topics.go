package config

const (
	// TopicIngestDocument is the NSQ topic for document processing tasks.
	TopicIngestDocument = "ingest.document"

	// ChannelBackend is the consumer channel shared by backend instances.
	ChannelBackend = "backend"
)
