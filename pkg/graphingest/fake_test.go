// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphingest

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// fakeDriver and fakeSession keep IngestorFunc tests hermetic: they record
// every Cypher statement and parameter set run against them instead of
// talking to a live Neo4j instance.
type fakeDriver struct {
	mu    sync.Mutex
	calls []fakeCall
}

type fakeCall struct {
	cypher string
	params map[string]any
}

func (d *fakeDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) Session {
	return &fakeSession{driver: d}
}

type fakeSession struct {
	driver *fakeDriver
}

func (s *fakeSession) Run(ctx context.Context, cypher string, params map[string]any) (ResultCursor, error) {
	s.driver.mu.Lock()
	s.driver.calls = append(s.driver.calls, fakeCall{cypher: cypher, params: params})
	s.driver.mu.Unlock()
	return &fakeCursor{}, nil
}

func (s *fakeSession) Close(ctx context.Context) error { return nil }

type fakeCursor struct{}

func (c *fakeCursor) Consume(ctx context.Context) (neo4j.ResultSummary, error) { return nil, nil }

func (d *fakeDriver) rowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := 0
	for _, c := range d.calls {
		if rows, ok := c.params["rows"].([]map[string]any); ok {
			total += len(rows)
		}
	}
	return total
}

func (d *fakeDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}
