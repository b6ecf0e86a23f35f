package patient

import (
	"context"

	"github.com/clinicdesk/console/pkg/pagination"
)

type Repository interface {
	Search(ctx context.Context, query string, p pagination.Params) ([]*Patient, int, error)
	GetByID(ctx context.Context, id string) (*Patient, error)
	Create(ctx context.Context, p *Patient) (*Patient, error)
	Update(ctx context.Context, p *Patient) (*Patient, error)
	Delete(ctx context.Context, id string) error
}
