package scenario

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kuitang/aurora-verify/internal/config"
	"github.com/kuitang/aurora-verify/internal/errs"
)

var varPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.\-]+)\}`)

// Vars holds the values a scenario can reference as ${name}: values saved
// by read_text steps, the scenario's own vars, actor fields as
// ${actor.email}, ${actor.password} and ${actor.name}, and ${target}.
type Vars struct {
	values map[string]string
}

func newVars(target string, actors map[string]config.Actor, initial map[string]string) *Vars {
	v := &Vars{values: map[string]string{"target": target}}
	for key, a := range actors {
		v.values[key+".email"] = a.Email
		v.values[key+".password"] = a.Password
		v.values[key+".name"] = a.Name
	}
	for k, val := range initial {
		v.values[k] = val
	}
	return v
}

// Set stores a value.
func (v *Vars) Set(name, value string) { v.values[name] = value }

// Get returns a value and whether it exists.
func (v *Vars) Get(name string) (string, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Expand replaces every ${name} in s. Unknown names are an
// invalid_argument error listing all of them.
func (v *Vars) Expand(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var missing []string
	out := varPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := varPattern.FindStringSubmatch(m)[1]
		val, ok := v.values[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return val
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("undefined variable(s): %s", strings.Join(missing, ", ")))
	}
	return out, nil
}

// referencedVars returns the names of the ${name} references in s, in order.
func referencedVars(s string) []string {
	var names []string
	for _, m := range varPattern.FindAllStringSubmatch(s, -1) {
		names = append(names, m[1])
	}
	return names
}

// expandStep returns a copy of st with vars expanded in its value, path and
// locator.
func (v *Vars) expandStep(st Step) (Step, error) {
	var firstErr error
	expand := func(s string) string {
		out, err := v.Expand(s)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err != nil {
			return s
		}
		return out
	}
	st.Value = expand(st.Value)
	st.Path = expand(st.Path)
	st.Locator = st.Locator.Map(expand)
	if firstErr != nil {
		return Step{}, firstErr
	}
	return st, nil
}
