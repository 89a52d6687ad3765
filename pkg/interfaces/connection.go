package interfaces

// Socket is the collaboration core's view of a live client connection.
// Implementations must be safe for concurrent use and must be comparable
// (pointer receivers), since the core keys a side-table by Socket.
type Socket interface {
	// IsOpen reports whether the socket can still accept frames.
	IsOpen() bool

	// Send queues an encoded frame for delivery without blocking.
	// A full or closed socket drops the frame and returns an error;
	// callers treat delivery as best-effort.
	Send(frame []byte) error

	// Close closes the connection and cleans up resources.
	Close() error
}
