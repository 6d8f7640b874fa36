// Package sink writes exported graphs to external stores.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/zero-day-ai/contextgraph/export"
	"github.com/zero-day-ai/contextgraph/graph"
)

// Neo4jConfig holds connection settings for a Neo4j server.
type Neo4jConfig struct {
	URI      string `yaml:"uri" json:"uri" mapstructure:"uri"`
	Username string `yaml:"username" json:"username" mapstructure:"username"`
	Password string `yaml:"password" json:"password" mapstructure:"password"`
	Database string `yaml:"database" json:"database" mapstructure:"database"`
}

// Validate checks that a URI is set.
func (c Neo4jConfig) Validate() error {
	if c.URI == "" {
		return errors.New("neo4j uri is required")
	}
	return nil
}

// runFunc runs one statement inside a transaction.
type runFunc func(ctx context.Context, query string, params map[string]any) error

// writeFunc runs work inside one write transaction.
type writeFunc func(ctx context.Context, work func(run runFunc) error) error

// Neo4jSink writes Cypher statements to a Neo4j database.
type Neo4jSink struct {
	driver   neo4j.DriverWithContext
	database string
	write    writeFunc
	logger   *slog.Logger
}

// Option configures a Neo4jSink.
type Option func(*Neo4jSink)

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Neo4jSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewNeo4jSink connects to the server described by cfg and verifies
// connectivity.
func NewNeo4jSink(ctx context.Context, cfg Neo4jConfig, opts ...Option) (*Neo4jSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	s := &Neo4jSink{driver: driver, database: cfg.Database}
	s.write = s.executeWrite
	s.apply(opts)
	return s, nil
}

func newSink(write writeFunc, opts ...Option) *Neo4jSink {
	s := &Neo4jSink{write: write}
	s.apply(opts)
	return s
}

func (s *Neo4jSink) apply(opts []Option) {
	s.logger = slog.New(slog.DiscardHandler)
	for _, opt := range opts {
		opt(s)
	}
}

func (s *Neo4jSink) executeWrite(ctx context.Context, work func(run runFunc) error) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(func(ctx context.Context, query string, params map[string]any) error {
			res, err := tx.Run(ctx, query, params)
			if err != nil {
				return err
			}
			_, err = res.Consume(ctx)
			return err
		})
	})
	return err
}

// Apply runs the statements in order inside one write transaction. Either all
// statements take effect or none do.
func (s *Neo4jSink) Apply(ctx context.Context, stmts []export.Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	err := s.write(ctx, func(run runFunc) error {
		for i, st := range stmts {
			if err := run(ctx, st.Query, st.Params); err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply statements: %w", err)
	}
	s.logger.Info("statements applied", "count", len(stmts))
	return nil
}

// Write exports the graph and applies it.
func (s *Neo4jSink) Write(ctx context.Context, r graph.Reader) error {
	return s.Apply(ctx, export.Cypher(r))
}

// SchemaStatements returns the schema the exported statements rely on: id
// uniqueness across every node, which also indexes the MERGE and MATCH
// lookups, and an index on semantic node names.
func SchemaStatements() []string {
	return []string{
		fmt.Sprintf("CREATE CONSTRAINT node_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", export.LabelNode),
		fmt.Sprintf("CREATE INDEX semantic_name IF NOT EXISTS FOR (n:%s) ON (n.name)", export.LabelSemantic),
	}
}

// EnsureSchema creates the constraint and index. Schema changes cannot share a
// transaction with data writes, so each runs on its own.
func (s *Neo4jSink) EnsureSchema(ctx context.Context) error {
	for _, q := range SchemaStatements() {
		err := s.write(ctx, func(run runFunc) error {
			return run(ctx, q, nil)
		})
		if err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the driver.
func (s *Neo4jSink) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}
