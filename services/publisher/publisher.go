package publisher

// Publisher mirrors committed merchant records to a message stream
type Publisher interface {
	// Publish publishes a message under key to one of the streams
	Publish(key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
