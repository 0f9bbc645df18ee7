// Package launch resolves a spec's typed launch options plus persisted
// per-install overrides into a deterministic command-line argument sequence.
package launch

import (
	"strings"

	"github.com/Aurelien590/StabilityMatrix/pkg/types"
)

// Resolve builds the argument vector appended after the entrypoint.
// Declaration order is respected; the reserved extra-args slot is always
// emitted last. Each option resolves through three tiers: persisted
// override, then declared default, then the runtime-computed initial value.
// Absence at every tier contributes nothing.
func Resolve(defs []types.LaunchOptionDef, pkg *types.InstalledPackage) []string {
	var args []string
	for _, def := range defs {
		if def.Name == types.ExtraArgsOption {
			continue
		}
		value, ok := resolveValue(def, pkg)
		if !ok {
			continue
		}
		switch def.Type {
		case types.OptionBool:
			if isTrue(value) {
				args = append(args, def.Token)
			}
		case types.OptionFlags:
			args = append(args, strings.Fields(value)...)
		default:
			if value != "" {
				args = append(args, def.Token, value)
			}
		}
	}
	if extra, ok := pkg.Override(types.ExtraArgsOption); ok {
		args = append(args, strings.Fields(extra)...)
	}
	return args
}

// resolveValue walks the override > default > initial tiers. A present
// override wins outright, even when it disables the option.
func resolveValue(def types.LaunchOptionDef, pkg *types.InstalledPackage) (string, bool) {
	if v, ok := pkg.Override(def.Name); ok {
		return v, true
	}
	if def.Default != "" {
		return def.Default, true
	}
	if def.Initial != nil {
		return def.Initial(), true
	}
	return "", false
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// PruneOverrides drops overrides that resolve to the option's empty or
// default sentinel, so runtime-computed initial values are recomputed fresh
// at every launch instead of being frozen at install time. Unknown names
// (including the extra-args slot) are kept as-is.
func PruneOverrides(defs []types.LaunchOptionDef, overrides []types.ArgOverride) []types.ArgOverride {
	byName := make(map[string]types.LaunchOptionDef, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	var out []types.ArgOverride
	for _, o := range overrides {
		def, known := byName[o.Name]
		if known && (o.Value == "" || o.Value == def.Default) {
			continue
		}
		if !known && o.Value == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}
