package ports

// APIServer defines the interface for the HTTP front end
type APIServer interface {
	// Start starts serving requests
	Start() error

	// Stop shuts the server down gracefully
	Stop() error
}
