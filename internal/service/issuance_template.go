package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"

	"verifiedid/issuer/internal/config"
	"verifiedid/issuer/internal/model"
	"verifiedid/issuer/pkg/crypto"
)

// LoadRequestTemplate builds the base issuance payload. With a template
// file the file's shape wins and configured claims only fill claims the file
// declares; otherwise the payload is assembled from configuration.
func LoadRequestTemplate(cfg config.IssuanceConfig) (*model.IssuanceRequest, error) {
	tmpl := &model.IssuanceRequest{
		IncludeQRCode: cfg.IncludeQRCode,
		Registration: model.Registration{
			ClientName: cfg.ClientName,
			Purpose:    cfg.Purpose,
		},
		Type:   cfg.CredentialType,
		Claims: maps.Clone(cfg.Claims),
	}
	if cfg.PinLength > 0 {
		tmpl.Pin = &model.Pin{Length: cfg.PinLength}
	}

	if cfg.TemplateFile != "" {
		data, err := os.ReadFile(cfg.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("read issuance template: %w", err)
		}
		tmpl = &model.IssuanceRequest{}
		if err := json.Unmarshal(data, tmpl); err != nil {
			return nil, fmt.Errorf("decode issuance template: %w", err)
		}
		for name := range tmpl.Claims {
			if v, ok := cfg.Claims[name]; ok {
				tmpl.Claims[name] = v
			}
		}
	}

	tmpl.Authority = cfg.IssuerAuthority
	tmpl.Manifest = cfg.CredentialManifest
	if err := validateTemplate(tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func validateTemplate(tmpl *model.IssuanceRequest) error {
	switch {
	case tmpl.Type == "":
		return errors.New("issuance template: credential type is required")
	case tmpl.Authority == "":
		return errors.New("issuance template: issuer authority is required")
	case tmpl.Manifest == "":
		return errors.New("issuance template: manifest is required")
	case tmpl.Registration.ClientName == "":
		return errors.New("issuance template: registration client name is required")
	case tmpl.Pin != nil && tmpl.Pin.Length > crypto.MaxPinLength:
		return fmt.Errorf("issuance template: pin length must be at most %d", crypto.MaxPinLength)
	}
	return nil
}
