package types

// LaunchOptionType distinguishes how an option contributes to the command line.
type LaunchOptionType string

const (
	// OptionString emits "token value" when the resolved value is non-empty.
	OptionString LaunchOptionType = "string"
	// OptionBool emits its token only when the option resolves true.
	OptionBool LaunchOptionType = "bool"
	// OptionFlags emits the resolved value verbatim, split on whitespace.
	OptionFlags LaunchOptionType = "flags"
)

// ExtraArgsOption is the reserved trailing option name for free-text extra
// arguments. It is always emitted last, after every declared option.
const ExtraArgsOption = "extra-args"

// LaunchOptionDef declares one typed launch toggle of a package spec.
//
// Resolution is three-tiered: a persisted per-install override wins over the
// declared default, which wins over the runtime-computed initial value.
// Absence at every tier contributes nothing to the command line.
type LaunchOptionDef struct {
	Name string `json:"name"`
	Type LaunchOptionType `json:"type"`
	// CLI fragment, e.g. "--port". Empty for OptionFlags.
	Token string `json:"token,omitempty"`
	// Declared default. For OptionBool: "true" or "false"; "" means unset.
	Default string `json:"default,omitempty"`
	// Initial computes a hardware- or host-dependent value fresh at every
	// launch. May be nil. Never persisted, so it is not frozen at install
	// time.
	Initial func() string `json:"-"`
}
