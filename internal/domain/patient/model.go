package patient

import (
	"strings"
	"time"
)

// Patient is a clinic patient record as stored by the backend.
type Patient struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"first_name" validate:"required,max=100"`
	LastName    string    `json:"last_name" validate:"required,max=100"`
	Email       string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone       string    `json:"phone" validate:"required,phone"`
	DateOfBirth string    `json:"date_of_birth,omitempty" validate:"omitempty,isodate"`
	Gender      string    `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Address     string    `json:"address,omitempty" validate:"max=500"`
	BloodType   string    `json:"blood_type,omitempty" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Allergies   string    `json:"allergies,omitempty" validate:"max=1000"`
	Notes       string    `json:"notes,omitempty" validate:"max=2000"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// normalize trims free-text input before validation.
func (p *Patient) normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Phone = strings.TrimSpace(p.Phone)
	p.DateOfBirth = strings.TrimSpace(p.DateOfBirth)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.BloodType = strings.ToUpper(strings.TrimSpace(p.BloodType))
	p.Address = strings.TrimSpace(p.Address)
}
