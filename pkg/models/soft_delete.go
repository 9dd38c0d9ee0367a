package models

// EntityKind names a soft-deletable entity.
type EntityKind string

const (
	EntityUser         EntityKind = "user"
	EntityTeam         EntityKind = "team"
	EntityStep         EntityKind = "step"
	EntityFlow         EntityKind = "flow"
	EntityFormResponse EntityKind = "form_response"
)

// SoftDeletePolicy describes what a soft delete means for an entity kind.
type SoftDeletePolicy struct {
	Restorable bool
}

// Steps are deliberately not restorable while users and teams are.
var softDeletePolicies = map[EntityKind]SoftDeletePolicy{
	EntityUser:         {Restorable: true},
	EntityTeam:         {Restorable: true},
	EntityStep:         {Restorable: false},
	EntityFlow:         {Restorable: false},
	EntityFormResponse: {Restorable: false},
}

// SoftDeletePolicyFor returns the policy of kind. Unknown kinds are not
// restorable.
func SoftDeletePolicyFor(kind EntityKind) SoftDeletePolicy {
	return softDeletePolicies[kind]
}
