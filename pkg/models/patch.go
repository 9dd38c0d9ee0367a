package models

import "maps"

// TeamPatch carries the optional fields of a team update. Nil fields are left
// untouched.
type TeamPatch struct {
	Name      *string   `json:"name,omitempty"       validate:"omitempty,min=1,max=255,nocontrol"`
	MemberIDs *[]string `json:"member_ids,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TeamPatch) IsEmpty() bool {
	return p.Name == nil && p.MemberIDs == nil
}

// Apply copies the present fields onto team.
func (p TeamPatch) Apply(team *Team) {
	if p.Name != nil {
		team.Name = *p.Name
	}

	if p.MemberIDs != nil {
		team.MemberIDs = appendUnique(nil, *p.MemberIDs...)
	}
}

// FormResponsePatch carries a submitter's edits before any review happened.
// Answers is merged key by key; a nil value removes the answer.
type FormResponsePatch struct {
	Answers     map[string]any `json:"answers,omitempty"`
	CompletedBy *string        `json:"completed_by,omitempty"`
}

func (p FormResponsePatch) IsEmpty() bool {
	return len(p.Answers) == 0 && p.CompletedBy == nil
}

// Apply merges the present fields into response.
func (p FormResponsePatch) Apply(response *FormResponse) {
	if len(p.Answers) > 0 {
		merged := make(map[string]any, len(response.Answers)+len(p.Answers))
		maps.Copy(merged, response.Answers)

		for key, value := range p.Answers {
			if value == nil {
				delete(merged, key)

				continue
			}

			merged[key] = value
		}

		response.Answers = merged
	}

	if p.CompletedBy != nil {
		if *p.CompletedBy == "" {
			response.CompletedBy = nil
		} else {
			completedBy := *p.CompletedBy
			response.CompletedBy = &completedBy
		}
	}
}
