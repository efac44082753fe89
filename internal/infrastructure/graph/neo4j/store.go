// Package neo4j exposes the training-knowledge graph as an entity
// expansion source. Nodes are concepts (muscles, exercises, principles)
// linked by typed relations such as TARGETS, VARIANT_OF and SUPPORTS.
package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(ctx context.Context, uri, user, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{driver: driver, database: database}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// RelatedEntities returns one-hop neighbors of the named concept,
// regardless of edge direction. Lookup is case-insensitive.
func (s *Store) RelatedEntities(ctx context.Context, entity string, limit int) ([]domain.RelatedEntity, error) {
	name := strings.ToLower(strings.TrimSpace(entity))
	if name == "" || limit <= 0 {
		return nil, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	const query = `
MATCH (c:Concept)-[r]-(n:Concept)
WHERE toLower(c.name) = $name
RETURN DISTINCT n.name AS name, type(r) AS relation
LIMIT $limit`

	result, err := session.Run(ctx, query, map[string]any{
		"name":  name,
		"limit": limit,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "neo4j.related_entities", err)
	}

	var out []domain.RelatedEntity
	for result.Next(ctx) {
		record := result.Record()
		neighbor, _ := record.Get("name")
		relation, _ := record.Get("relation")
		neighborName, ok := neighbor.(string)
		if !ok || neighborName == "" {
			continue
		}
		relationName, _ := relation.(string)
		out = append(out, domain.RelatedEntity{
			Name:     neighborName,
			Relation: relationName,
		})
	}
	if err := result.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "neo4j.related_entities", err)
	}
	return out, nil
}
