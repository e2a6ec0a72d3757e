package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"

	"github.com/smallbiznis/scorebench/internal/billing/domain"
)

// checkoutScope selects the checkout reconciliation branch.
type checkoutScope int

const (
	scopePersonal checkoutScope = iota
	scopeOrganizationNew
	scopeOrganizationUpgrade
)

func (s checkoutScope) String() string {
	switch s {
	case scopeOrganizationNew:
		return "organization_new"
	case scopeOrganizationUpgrade:
		return "organization_upgrade"
	default:
		return "personal"
	}
}

// checkoutMetadata is the untrusted metadata attached to a checkout session.
type checkoutMetadata struct {
	UserID           string `validate:"required_unless=IsUpgrade true,omitempty,numeric"`
	OrganizationID   string `validate:"required_if=IsUpgrade true,omitempty,numeric"`
	OrganizationName string `validate:"required_if=IsOrganization true IsUpgrade false,omitempty,max=120"`
	PlanType         string `validate:"omitempty,oneof=basic standard premium"`
	IsOrganization   bool
	IsUpgrade        bool
}

func (m checkoutMetadata) scope() checkoutScope {
	switch {
	case m.IsOrganization && m.IsUpgrade:
		return scopeOrganizationUpgrade
	case m.IsOrganization:
		return scopeOrganizationNew
	default:
		return scopePersonal
	}
}

// toMap is the copy persisted on the subscription row.
func (m checkoutMetadata) toMap() map[string]any {
	out := map[string]any{
		"scope": m.scope().String(),
	}
	if m.UserID != "" {
		out["user_id"] = m.UserID
	}
	if m.OrganizationID != "" {
		out["organization_id"] = m.OrganizationID
	}
	if m.PlanType != "" {
		out["requested_plan"] = m.PlanType
	}
	return out
}

func (s *Service) parseCheckoutMetadata(session domain.CheckoutSession) (checkoutMetadata, error) {
	raw := session.Metadata
	meta := checkoutMetadata{
		UserID:           strings.TrimSpace(raw["user_id"]),
		OrganizationID:   strings.TrimSpace(raw["organization_id"]),
		OrganizationName: strings.TrimSpace(raw["organization_name"]),
		PlanType:         strings.ToLower(strings.TrimSpace(raw["plan_type"])),
	}
	if meta.UserID == "" {
		meta.UserID = strings.TrimSpace(session.ClientReferenceID)
	}

	var err error
	if meta.IsOrganization, err = parseFlag(raw["is_organization"]); err != nil {
		return checkoutMetadata{}, fmt.Errorf("%w: is_organization: %v", domain.ErrInvalidMetadata, err)
	}
	if meta.IsUpgrade, err = parseFlag(raw["is_upgrade"]); err != nil {
		return checkoutMetadata{}, fmt.Errorf("%w: is_upgrade: %v", domain.ErrInvalidMetadata, err)
	}
	if meta.IsUpgrade && !meta.IsOrganization {
		return checkoutMetadata{}, fmt.Errorf("%w: is_upgrade requires is_organization", domain.ErrInvalidMetadata)
	}

	if err := s.validate.Struct(meta); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return checkoutMetadata{}, fmt.Errorf("%w: %s", domain.ErrInvalidMetadata, strings.Join(fields, ", "))
		}
		return checkoutMetadata{}, fmt.Errorf("%w: %v", domain.ErrInvalidMetadata, err)
	}
	return meta, nil
}

func parseFlag(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func parseID(field, raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s", domain.ErrInvalidMetadata, field)
	}
	return id, nil
}
