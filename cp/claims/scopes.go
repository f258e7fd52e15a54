package claims

import (
	"encoding/json"
	"errors"
	"strings"
)

// ScopeInput is the shape granted scopes arrive in from the form layer: either a single
// Scalar or a Sequence. Normalize turns either one into a plain ordered list.
type ScopeInput interface {
	scopes() []string
}

// Scalar is a single scope value.
type Scalar string

// Sequence is an ordered list of scope values.
type Sequence []string

func (s Scalar) scopes() []string {
	return []string{string(s)}
}

func (s Sequence) scopes() []string {
	return s
}

// FromValues builds a ScopeInput out of repeated form values.
func FromValues(values []string) ScopeInput {
	if len(values) == 1 {
		return Scalar(values[0])
	}
	return Sequence(values)
}

// Normalize flattens in into an ordered list. Values are trimmed, empty values dropped and
// duplicates removed, keeping the first occurrence.
func Normalize(in ScopeInput) []string {
	result := []string{}
	if in == nil {
		return result
	}
	seen := make(map[string]bool)
	for _, scope := range in.scopes() {
		scope = strings.TrimSpace(scope)
		if scope == "" || seen[scope] {
			continue
		}
		seen[scope] = true
		result = append(result, scope)
	}
	return result
}

// Contains reports whether scope is part of scopes.
func Contains(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Missing returns the entries of granted that are not in requested.
func Missing(granted []string, requested []string) []string {
	var missing []string
	for _, scope := range granted {
		if !Contains(requested, scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// ScopeList decodes a JSON string or array of strings.
type ScopeList struct {
	Input ScopeInput
}

func (l *ScopeList) UnmarshalJSON(data []byte) error {
	var scalar string
	if err := json.Unmarshal(data, &scalar); err == nil {
		l.Input = Scalar(scalar)
		return nil
	}
	var sequence []string
	if err := json.Unmarshal(data, &sequence); err != nil {
		return errors.New("scopes must be a string or an array of strings")
	}
	l.Input = Sequence(sequence)
	return nil
}
