package company

import (
	"github.com/go-playground/validator/v10"

	"github.com/sirta-dev/sirta/pkg/constants"
	"github.com/sirta-dev/sirta/pkg/serrors"
)

type CreateDTO struct {
	RUC                string `json:"ruc" validate:"required,len=11,numeric"`
	PrincipalName      string `json:"principal_name" validate:"required"`
	OfficialName       string `json:"official_name"`
	ShortName          string `json:"short_name"`
	FiscalAddress      string `json:"fiscal_address"`
	RepresentativeName string `json:"representative_name"`
	RepresentativeDNI  string `json:"representative_dni" validate:"omitempty,max=8,numeric"`
	Phone              string `json:"phone"`
	Email              string `json:"email" validate:"omitempty,email"`
	ServiceType        string `json:"service_type" validate:"required"`
	State              string `json:"state" validate:"required"`
}

func (d *CreateDTO) Normalize() {
	d.RUC = NormalizeRUC(d.RUC)
	d.RepresentativeDNI = NormalizeDNI(d.RepresentativeDNI)
}

func (d *CreateDTO) Ok() (serrors.ValidationErrors, bool) {
	d.Normalize()

	out := serrors.ValidationErrors{}
	if errs := constants.Validate.Struct(d); errs != nil {
		out = serrors.ProcessValidatorErrors(errs.(validator.ValidationErrors))
	}
	if _, ok := ParseServiceType(d.ServiceType); !ok && d.ServiceType != "" {
		out["ServiceType"] = "unknown service type"
	}
	if _, ok := ParseState(d.State); !ok && d.State != "" {
		out["State"] = "unknown company state"
	}
	return out, len(out) == 0
}

func (d *CreateDTO) ToEntity() Company {
	serviceType, _ := ParseServiceType(d.ServiceType)
	state, _ := ParseState(d.State)
	c := New(d.RUC, d.PrincipalName, serviceType, state)
	c.officialName = d.OfficialName
	c.shortName = d.ShortName
	c.fiscalAddress = d.FiscalAddress
	c.representativeName = d.RepresentativeName
	c.representativeDNI = d.RepresentativeDNI
	c.phone = d.Phone
	c.email = d.Email
	return c
}
