package plants

import "context"

// Store port (interface untuk persistence)
//
// Implementations must be safe for concurrent use: Append calls are
// serialized and never lose an update, ListAll never observes a half-applied
// write.
type Store interface {
	// Initialize is idempotent; only the first call loads from storage.
	Initialize(ctx context.Context) error
	// ListAll returns every record in storage order.
	ListAll(ctx context.Context) ([]Plant, error)
	// Append adds a record and persists the collection. No validation.
	Append(ctx context.Context, p Plant) error
	// Exists reports whether a record with id is stored.
	Exists(ctx context.Context, id PlantID) (bool, error)
}

// ReportStore port (interface untuk penyimpanan laporan diagnosa)
type ReportStore interface {
	// Put stores data under key and returns a URL to retrieve it.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ReportRenderer turns a record into a printable document.
type ReportRenderer interface {
	Render(p Plant) ([]byte, error)
}
