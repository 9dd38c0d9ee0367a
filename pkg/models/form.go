package models

import "time"

// FormField describes one answer slot of a form template. Schema, when set, is
// a JSON schema the submitted value must satisfy.
type FormField struct {
	ID       string         `json:"id"               validate:"required"`
	Label    string         `json:"label"`
	Required bool           `json:"required"`
	Schema   map[string]any `json:"schema,omitempty"`
}

// FormTemplate is the set of fields a flow collects.
type FormTemplate struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"       validate:"required"`
	Fields    []FormField `json:"fields"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Field returns the field with the given id.
func (t *FormTemplate) Field(id string) (FormField, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}

	return FormField{}, false
}
