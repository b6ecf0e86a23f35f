package appointment

import (
	"context"

	"github.com/clinicdesk/console/pkg/pagination"
)

type Repository interface {
	List(ctx context.Context, f Filter, p pagination.Params) ([]*Appointment, int, error)
	GetByID(ctx context.Context, id string) (*Appointment, error)
	Create(ctx context.Context, a *Appointment) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateStatus(ctx context.Context, id, status string) (*Appointment, error)
	Delete(ctx context.Context, id string) error
}
