package config

import (
	"fmt"
	"strings"

	"treesort/internal/model"
)

// Variant names one of the two changelist markups the engine understands.
type Variant string

const (
	VariantTreebeard   Variant = "treebeard"
	VariantAdminAddons Variant = "admin-addons"
)

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantTreebeard, VariantAdminAddons:
		return v, nil
	case "":
		return VariantTreebeard, nil
	default:
		return "", fmt.Errorf("unknown variant %q (treebeard|admin-addons)", s)
	}
}

// Profile carries the markup classes and capability flags of a variant.
type Profile struct {
	Variant Variant

	HandleClass string
	IconClass   string
	TitleClass  string

	DetailSource     model.DetailSource
	ReconcileStripes bool
}

var profiles = map[Variant]Profile{
	VariantTreebeard: {
		Variant:          VariantTreebeard,
		HandleClass:      "treebeard-admin-drag",
		IconClass:        "treebeard-admin-icon-button",
		TitleClass:       "field-__str__",
		DetailSource:     model.DetailFromListURL,
		ReconcileStripes: true,
	},
	VariantAdminAddons: {
		Variant:          VariantAdminAddons,
		HandleClass:      "admin-addons-drag",
		IconClass:        "admin-addons-icon-button",
		TitleClass:       "field-__str__",
		DetailSource:     model.DetailFromHref,
		ReconcileStripes: false,
	},
}

// ProfileFor returns the preset for v, falling back to treebeard.
func ProfileFor(v Variant) Profile {
	return Config{Variant: v}.Profile()
}
