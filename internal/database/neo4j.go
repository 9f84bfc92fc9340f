package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"

	"memoria/internal/models"
)

// Neo4j wraps the Neo4j driver that backs the long-term memory graph.
type Neo4j struct {
	driver neo4j.Driver
}

// NewNeo4j creates a Neo4j driver and verifies connectivity.
func NewNeo4j(uri, user, password string) (*Neo4j, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, &models.ConnectivityError{Service: "neo4j", Err: err}
	}

	log.Println("✅ Neo4j connection established")
	return &Neo4j{driver: driver}, nil
}

// Driver returns the underlying driver.
func (n *Neo4j) Driver() neo4j.Driver {
	return n.driver
}

// ExecuteWrite runs work in a managed write transaction.
func (n *Neo4j) ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

// ExecuteRead runs work in a managed read transaction.
func (n *Neo4j) ExecuteRead(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// Close closes the driver.
func (n *Neo4j) Close(ctx context.Context) error {
	if n.driver != nil {
		return n.driver.Close(ctx)
	}
	return nil
}
