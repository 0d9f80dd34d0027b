package messaging

import (
	"fmt"
	"strings"

	"github.com/sungwon/messaging/internal/storage"
)

// Parameter is a caller-supplied template value.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ValidateParameters checks supplied against the declared parameters of et
// and reports the first violation. Entries are checked for presence and name
// first, then duplicates, then missing declared values, then undeclared names.
func ValidateParameters(et storage.EventType, supplied []*Parameter) error {
	for i, p := range supplied {
		if p == nil {
			return fmt.Errorf("%w: parameter %d is null", ErrDomain, i)
		}
		if p.Name == "" {
			return fmt.Errorf("%w: parameter %d has no name", ErrDomain, i)
		}
	}

	byName := make(map[string]string, len(supplied))
	for _, p := range supplied {
		if _, dup := byName[p.Name]; dup {
			return fmt.Errorf("%w: parameter %q is supplied more than once", ErrDomain, p.Name)
		}
		byName[p.Name] = p.Value
	}

	declared := make(map[string]bool, len(et.Parameters))
	for _, d := range et.Parameters {
		declared[d.Name] = true
		if strings.TrimSpace(byName[d.Name]) == "" {
			return fmt.Errorf("%w: parameter %q is required by event type %q", ErrDomain, d.Name, et.Name)
		}
	}

	for _, p := range supplied {
		if !declared[p.Name] {
			return fmt.Errorf("%w: parameter %q is not declared by event type %q", ErrDomain, p.Name, et.Name)
		}
	}
	return nil
}

// bind returns the supplied value for every declared parameter, in declared
// order. supplied must have passed ValidateParameters.
func bind(et storage.EventType, supplied []*Parameter) []storage.CreateParameterValueParams {
	byName := make(map[string]string, len(supplied))
	for _, p := range supplied {
		byName[p.Name] = p.Value
	}
	out := make([]storage.CreateParameterValueParams, 0, len(et.Parameters))
	for _, d := range et.Parameters {
		out = append(out, storage.CreateParameterValueParams{ParameterID: d.ID, Value: byName[d.Name]})
	}
	return out
}
