package domain

import "encoding/json"

// StringList is a lenient string slice for profile sub-fields. Legacy
// records store these as whatever the frontend happened to write; anything
// that is not a JSON array of strings decodes to an empty list instead of
// failing the record.
type StringList []string

// UnmarshalJSON keeps string elements of an array and drops everything
// else. Non-array input (including null) decodes to an empty list.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = StringList{}
		return nil
	}
	out := make(StringList, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}
