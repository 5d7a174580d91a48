// Package docdb defines the durable store interfaces for conversations and
// messages.
package docdb

import "context"

// Type represents the type of document database.
type Type string

const (
	// TypeMongoDB represents a MongoDB database.
	TypeMongoDB Type = "mongodb"
	// TypeCosmosDB represents an Azure Cosmos DB database (MongoDB protocol).
	TypeCosmosDB Type = "cosmosdb"
)

// SortOrder represents the sort direction.
type SortOrder string

const (
	// SortOrderAsc represents ascending order.
	SortOrderAsc SortOrder = "asc"
	// SortOrderDesc represents descending order.
	SortOrderDesc SortOrder = "desc"
)

// Client defines the interface for a document database client.
type Client interface {
	// Conversations returns the typed conversations collection.
	Conversations() ConversationsCollection

	// Messages returns the typed messages collection.
	Messages() MessagesCollection

	// EnsureIndexes creates the secondary indexes for all collections.
	EnsureIndexes(ctx context.Context) error

	// Ping verifies the database connection.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close(ctx context.Context) error
}
