package erp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ExtractID normalizes the id returned by a create call. The backend answers with a bare
// number, a single-element list, or a record carrying an "id" field depending on the call path.
func ExtractID(raw json.RawMessage) (int64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, &IdentityExtractionError{Raw: "<empty>"}
	}

	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return 0, &IdentityExtractionError{Raw: string(trimmed)}
		}
		if len(list) != 1 {
			return 0, &IdentityExtractionError{Raw: string(trimmed)}
		}
		return ExtractID(list[0])

	case '{':
		var record struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(trimmed, &record); err != nil || record.ID == nil {
			return 0, &IdentityExtractionError{Raw: string(trimmed)}
		}
		return scalarID(record.ID, trimmed)

	default:
		return scalarID(trimmed, trimmed)
	}
}

func scalarID(value, whole json.RawMessage) (int64, error) {
	var id json.Number
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	if err := dec.Decode(&id); err != nil {
		return 0, &IdentityExtractionError{Raw: string(whole)}
	}
	n, err := id.Int64()
	if err != nil || n <= 0 {
		return 0, &IdentityExtractionError{Raw: string(whole)}
	}
	return n, nil
}

// Many2One decodes a relational field, which the backend sends as [id, "display name"] or false.
type Many2One struct {
	ID   int64
	Name string
}

func (m *Many2One) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("false")) || bytes.Equal(trimmed, []byte("null")) {
		*m = Many2One{}
		return nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(trimmed, &pair); err != nil {
		return fmt.Errorf("many2one: %w", err)
	}
	if len(pair) == 0 {
		*m = Many2One{}
		return nil
	}
	if err := json.Unmarshal(pair[0], &m.ID); err != nil {
		return fmt.Errorf("many2one id: %w", err)
	}
	if len(pair) > 1 {
		_ = json.Unmarshal(pair[1], &m.Name)
	}
	return nil
}
