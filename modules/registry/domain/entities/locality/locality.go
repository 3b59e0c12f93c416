package locality

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("locality not found")

// Locality is a normalized place reference keyed by ubigeo. Localities
// preexist in the registry; the ingest engine looks them up but never creates
// them.
type Locality struct {
	id         uuid.UUID
	ubigeo     string
	name       string
	province   string
	department string
}

func Hydrate(id uuid.UUID, ubigeo, name, province, department string) Locality {
	return Locality{
		id:         id,
		ubigeo:     strings.TrimSpace(ubigeo),
		name:       strings.ToUpper(strings.TrimSpace(name)),
		province:   strings.ToUpper(strings.TrimSpace(province)),
		department: strings.ToUpper(strings.TrimSpace(department)),
	}
}

func (l Locality) ID() uuid.UUID      { return l.id }
func (l Locality) Ubigeo() string     { return l.ubigeo }
func (l Locality) Name() string       { return l.name }
func (l Locality) Province() string   { return l.province }
func (l Locality) Department() string { return l.department }
func (l Locality) IsZero() bool       { return l.id == uuid.Nil && l.ubigeo == "" }

type Repository interface {
	GetByUbigeo(ctx context.Context, ubigeo string) (Locality, error)
	// GetByNames resolves a batch of upper-cased locality names in one
	// query; unknown names are absent from the result.
	GetByNames(ctx context.Context, names []string) (map[string]Locality, error)
}
