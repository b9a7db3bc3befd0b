// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package graphingest writes a parsed symbol table and call graph into a
// Neo4j property graph: PROJECT/FOLDER/FILE/FUNCTION/DATA_STRUCTURE nodes and
// CONTAINS/DEFINES/CALLS/INCLUDES edges, batched and parallelized per the
// three DEFINES strategies.
package graphingest

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Session is the slice of neo4j.SessionWithContext the ingestor needs,
// narrowed so tests can supply a fake in-memory implementation instead of a
// live driver.
type Session interface {
	Run(ctx context.Context, cypher string, params map[string]any) (ResultCursor, error)
	Close(ctx context.Context) error
}

// ResultCursor is the slice of neo4j.ResultWithContext the ingestor
// consumes.
type ResultCursor interface {
	Consume(ctx context.Context) (neo4j.ResultSummary, error)
}

// Driver is the slice of neo4j.DriverWithContext the ingestor needs.
type Driver interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) Session
}

// driverAdapter wraps a real neo4j.DriverWithContext to satisfy Driver.
type driverAdapter struct {
	inner neo4j.DriverWithContext
}

// NewDriver connects to uri with basic auth and wraps the result as a
// graphingest.Driver.
func NewDriver(ctx context.Context, uri, username, password string) (Driver, error) {
	inner, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}
	if err := inner.VerifyConnectivity(ctx); err != nil {
		return nil, err
	}
	return &driverAdapter{inner: inner}, nil
}

// WrapDriver adapts an already-connected neo4j.DriverWithContext, letting
// callers share a single driver between the ingestor and packages that need
// raw read access (e.g. ragenrich).
func WrapDriver(inner neo4j.DriverWithContext) Driver {
	return &driverAdapter{inner: inner}
}

func (d *driverAdapter) NewSession(ctx context.Context, config neo4j.SessionConfig) Session {
	return &sessionAdapter{inner: d.inner.NewSession(ctx, config)}
}

type sessionAdapter struct {
	inner neo4j.SessionWithContext
}

func (s *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (ResultCursor, error) {
	return s.inner.Run(ctx, cypher, params)
}

func (s *sessionAdapter) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}
