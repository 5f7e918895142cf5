package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/schema"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding document chunks when the weaviate
// backend is selected.
const ClassName = "PropertyChunk"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

// EnsureSchema checks that the chunk class exists with all expected
// properties and creates whatever is missing.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "documentId",
			DataType: []string{"string"}, // UUID as string (exact match)
		},
		{
			Name:     "documentType",
			DataType: []string{"string"},
		},
		{
			Name:     "chunkIndex",
			DataType: []string{"int"},
		},
		{
			Name:     "charStart",
			DataType: []string{"int"},
		},
		{
			Name:     "charEnd",
			DataType: []string{"int"},
		},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "A chunk of an uploaded property document",
			Vectorizer:  "none",
			Properties:  properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}

type clientSchema struct {
	api *schema.API
}

// Schema exposes a weaviate client's schema endpoints as a SchemaClient.
func Schema(c *weaviate.Client) SchemaClient {
	return &clientSchema{api: c.Schema()}
}

func (s *clientSchema) ClassExists(ctx context.Context, name string) (bool, error) {
	ok, err := s.api.ClassExistenceChecker().WithClassName(name).Do(ctx)
	if err != nil {
		return false, fmt.Errorf("checking class %s: %w", name, err)
	}
	return ok, nil
}

func (s *clientSchema) CreateClass(ctx context.Context, class *models.Class) error {
	if err := s.api.ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("creating class %s: %w", class.Class, err)
	}
	return nil
}

func (s *clientSchema) GetClass(ctx context.Context, name string) (*models.Class, error) {
	class, err := s.api.ClassGetter().WithClassName(name).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching class %s: %w", name, err)
	}
	return class, nil
}

func (s *clientSchema) AddProperty(ctx context.Context, name string, prop *models.Property) error {
	if err := s.api.PropertyCreator().WithClassName(name).WithProperty(prop).Do(ctx); err != nil {
		return fmt.Errorf("adding property %s.%s: %w", name, prop.Name, err)
	}
	return nil
}
