package ir

import "fmt"

// ValidKinds lists the state kinds a StateSpec may declare.
var ValidKinds = map[string]bool{
	"watch":  true,
	"always": true,
	"hot":    true,
	"next":   true,
	"wnext":  true,
	"unless": true,
	"until":  true,
}

// SideTableKinds are the kinds that take a watch table besides on.
var SideTableKinds = map[string]bool{
	"unless": true,
	"until":  true,
}

// ValidationError is a structural problem in a spec value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a StateSpec in isolation. It returns every problem rather
// than stopping at the first.
func (s *StateSpec) Validate() []ValidationError {
	var errs []ValidationError

	if !ValidKinds[s.Kind] {
		errs = append(errs, ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("invalid kind %q, must be one of: watch, always, hot, next, wnext, unless, until", s.Kind),
		})
	}

	seen := make(map[string]bool, len(s.Params))
	for i, p := range s.Params {
		if seen[p] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("params[%d]", i),
				Message: fmt.Sprintf("duplicate param %q", p),
			})
		}
		seen[p] = true
	}

	if s.Key != "" && !seen[s.Key] {
		errs = append(errs, ValidationError{
			Field:   "key",
			Message: fmt.Sprintf("key %q is not a param", s.Key),
		})
	}

	if s.Key != "" && (s.Kind == "next" || s.Kind == "wnext") {
		errs = append(errs, ValidationError{
			Field:   "key",
			Message: fmt.Sprintf("%s states react to every event and cannot be keyed", s.Kind),
		})
	}

	if len(s.Watch) > 0 && !SideTableKinds[s.Kind] {
		errs = append(errs, ValidationError{
			Field:   "watch",
			Message: fmt.Sprintf("only unless and until states take a watch table, not %q", s.Kind),
		})
	}

	for i, tr := range s.On {
		errs = append(errs, validateTargets(fmt.Sprintf("on[%d]", i), tr)...)
	}
	for i, tr := range s.Watch {
		errs = append(errs, validateTargets(fmt.Sprintf("watch[%d]", i), tr)...)
	}
	return errs
}

func validateTargets(field string, tr TransitionSpec) []ValidationError {
	var errs []ValidationError
	if tr.Event == "" {
		errs = append(errs, ValidationError{Field: field + ".event", Message: "event is required"})
	}
	if len(tr.Goto) == 0 && tr.Find == nil {
		errs = append(errs, ValidationError{Field: field + ".goto", Message: "at least one target is required"})
	}
	for j, t := range tr.Goto {
		if t.State == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.goto[%d]", field, j),
				Message: "target state is required",
			})
		}
	}
	return errs
}
