package types

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/wippyai/subscript/errors"
)

const maxReported = 5

func validate(defs map[string]*TypeDef) error {
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)

	if err := checkResolved(defs, names); err != nil {
		return err
	}
	return checkFinite(defs, names)
}

func checkResolved(defs map[string]*TypeDef, names []string) error {
	refs := make(map[string][]string)
	for _, n := range names {
		for _, c := range defs[n].Children() {
			if _, ok := defs[c]; !ok {
				refs[c] = append(refs[c], n)
			}
		}
	}
	if len(refs) == 0 {
		return nil
	}

	missing := make([]string, 0, len(refs))
	for m := range refs {
		missing = append(missing, m)
	}
	sort.Strings(missing)

	var errs error
	for _, m := range missing {
		by := refs[m]
		if len(by) > 3 {
			by = append(by[:3:3], fmt.Sprintf("%d more", len(refs[m])-3))
		}
		errs = multierr.Append(errs, errors.New(errors.PhaseSchema, errors.KindUnresolved).
			TypeName(m).Detail("referenced by %s", strings.Join(by, ", ")).Build())
	}
	return errors.Schema(errors.KindUnresolved,
		fmt.Sprintf("%d unresolved type names: %s", len(missing), summarize(missing)), errs)
}

// checkFinite computes the least fixed point of "has a finite encoding".
// Sequences, options, maps and bit sequences have an empty base case, so a
// type may refer to itself through them.
func checkFinite(defs map[string]*TypeDef, names []string) error {
	finite := make(map[string]bool, len(defs))
	for changed := true; changed; {
		changed = false
		for _, n := range names {
			if !finite[n] && isFinite(defs[n], finite) {
				finite[n] = true
				changed = true
			}
		}
	}

	var cyclic []string
	for _, n := range names {
		if !finite[n] {
			cyclic = append(cyclic, n)
		}
	}
	if len(cyclic) == 0 {
		return nil
	}

	var errs error
	for _, n := range cyclic {
		errs = multierr.Append(errs, errors.New(errors.PhaseSchema, errors.KindCycle).
			TypeName(n).Detail("type contains itself with no finite ground case").Build())
	}
	return errors.Schema(errors.KindCycle,
		fmt.Sprintf("%d types have no finite encoding: %s", len(cyclic), summarize(cyclic)), errs)
}

func isFinite(d *TypeDef, finite map[string]bool) bool {
	switch d.Kind {
	case KindPrimitive, KindSequence, KindOption, KindMap, KindBitSequence:
		return true
	case KindArray:
		return d.Len == 0 || finite[d.Elem]
	case KindEnum:
		if len(d.Variants) == 0 {
			return true
		}
		for _, v := range d.Variants {
			if v.Type == "" || finite[v.Type] {
				return true
			}
		}
		return false
	}
	for _, c := range d.Children() {
		if !finite[c] {
			return false
		}
	}
	return true
}

func summarize(names []string) string {
	if len(names) <= maxReported {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:maxReported], ", ") + fmt.Sprintf(" and %d more", len(names)-maxReported)
}
