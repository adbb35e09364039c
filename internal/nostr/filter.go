package nostr

import (
	"encoding/json"
	"sort"
	"strings"
)

// Filter selects records on a relay subscription.
type Filter struct {
	IDs     []string
	Kinds   []int
	Authors []string
	Tags    map[string][]string // keyed by single-letter tag name, without '#'
	Since   int64
	Until   int64
	Limit   int
}

// WithTag returns a copy of the filter with an additional tag constraint.
func (f Filter) WithTag(name string, values ...string) Filter {
	tags := make(map[string][]string, len(f.Tags)+1)
	for k, v := range f.Tags {
		tags[k] = v
	}
	tags[strings.TrimPrefix(name, "#")] = values
	f.Tags = tags
	return f
}

// Matches reports whether an event satisfies the filter. Limit is ignored.
func (f Filter) Matches(e *Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, e.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, e.PubKey) {
		return false
	}
	if f.Since > 0 && e.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && e.CreatedAt > f.Until {
		return false
	}
	for name, values := range f.Tags {
		if len(values) == 0 {
			continue
		}
		matched := false
		for _, v := range values {
			if e.Tags.Has(name, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the filter in relay wire format, with tag constraints
// as "#x" keys.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	for name, values := range f.Tags {
		if len(values) > 0 {
			m["#"+name] = values
		}
	}
	if f.Since > 0 {
		m["since"] = f.Since
	}
	if f.Until > 0 {
		m["until"] = f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes the relay wire format.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*f = Filter{}
	for key, value := range raw {
		var err error
		switch {
		case key == "ids":
			err = json.Unmarshal(value, &f.IDs)
		case key == "kinds":
			err = json.Unmarshal(value, &f.Kinds)
		case key == "authors":
			err = json.Unmarshal(value, &f.Authors)
		case key == "since":
			err = json.Unmarshal(value, &f.Since)
		case key == "until":
			err = json.Unmarshal(value, &f.Until)
		case key == "limit":
			err = json.Unmarshal(value, &f.Limit)
		case strings.HasPrefix(key, "#") && len(key) > 1:
			var values []string
			if err = json.Unmarshal(value, &values); err == nil {
				if f.Tags == nil {
					f.Tags = make(map[string][]string)
				}
				f.Tags[key[1:]] = values
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// String renders a short description for logs.
func (f Filter) String() string {
	var parts []string
	if len(f.Kinds) > 0 {
		b, _ := json.Marshal(f.Kinds)
		parts = append(parts, "kinds="+string(b))
	}
	if len(f.Authors) > 0 {
		parts = append(parts, "authors="+strings.Join(shorten(f.Authors), ","))
	}
	names := make([]string, 0, len(f.Tags))
	for name := range f.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, "#"+name+"="+strings.Join(shorten(f.Tags[name]), ","))
	}
	return strings.Join(parts, " ")
}

func shorten(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if len(v) > 12 {
			v = v[:12]
		}
		out[i] = v
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}
