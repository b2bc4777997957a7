// Package policy is the single decision point for role-based access rules.
// Handlers describe what the caller is attempting and what is known about
// the target row; the answer is allow, deny, or not-found. Tenant isolation
// is not decided here: repositories scope every query to the caller's
// organization, so a foreign row never reaches a policy check at all.
package policy

import (
	"github.com/google/uuid"

	"github.com/timeledger/timeledger/pkg/model"
)

type Action string

const (
	ActionProjectRead     Action = "project.read"
	ActionProjectWrite    Action = "project.write"
	ActionMembershipWrite Action = "membership.write"
	ActionMembershipRead  Action = "membership.read"

	ActionUserList    Action = "user.list"
	ActionUserRead    Action = "user.read"
	ActionUserWrite   Action = "user.write"
	ActionUserSetRole Action = "user.set_role"

	ActionCustomerRead  Action = "customer.read"
	ActionCustomerWrite Action = "customer.write"
	ActionSOWRead       Action = "sow.read"
	ActionSOWWrite      Action = "sow.write"

	ActionTimeEntryRead   Action = "time_entry.read"
	ActionTimeEntryCreate Action = "time_entry.create"
	ActionTimeEntryEdit   Action = "time_entry.edit"
	ActionTimeEntrySubmit Action = "time_entry.submit"
	ActionTimeEntryReview Action = "time_entry.review"

	ActionTimesheetRead   Action = "timesheet.read"
	ActionTimesheetCreate Action = "timesheet.create"
	ActionTimesheetSubmit Action = "timesheet.submit"
	ActionTimesheetReview Action = "timesheet.review"

	ActionBillingRead  Action = "billing.read"
	ActionBillingWrite Action = "billing.write"

	ActionOrgRead  Action = "org.read"
	ActionOrgWrite Action = "org.write"
)

// Resource carries the facts about the target row that the rules depend on.
// Zero values mean "not applicable": a customer has no owner, a user row has
// no project context.
type Resource struct {
	// OwnerID is the user the row belongs to (the user row itself, a time
	// entry's author, a timesheet's author).
	OwnerID uuid.UUID
	// ProjectActive and ActiveMember describe the project context for
	// project-scoped actions, from the employee's point of view.
	ProjectActive bool
	ActiveMember  bool
}

type Decision int

const (
	// Deny means the caller may know the resource exists but lacks the role.
	Deny Decision = iota
	// Allow permits the action.
	Allow
	// NotFound hides the resource's existence from the caller.
	NotFound
)

// Evaluate applies the role rules for one caller, action and resource.
func Evaluate(caller *model.User, action Action, res Resource) Decision {
	if caller == nil || !caller.IsActive {
		return Deny
	}

	switch caller.Role {
	case model.RoleAdmin:
		return Allow
	case model.RoleManager:
		// Organization settings stay with admins; managers run the work.
		if action == ActionOrgWrite {
			return Deny
		}
		return Allow
	case model.RoleEmployee:
		return evaluateEmployee(caller, action, res)
	default:
		// client role is reserved and grants nothing.
		return Deny
	}
}

func evaluateEmployee(caller *model.User, action Action, res Resource) Decision {
	self := res.OwnerID == caller.ID

	switch action {
	case ActionProjectRead:
		if res.ActiveMember && res.ProjectActive {
			return Allow
		}
		return NotFound

	case ActionUserList, ActionOrgRead:
		return Allow

	case ActionUserRead:
		if self {
			return Allow
		}
		return NotFound

	case ActionUserWrite:
		// Own profile only; the role field is covered by ActionUserSetRole.
		if self {
			return Allow
		}
		return Deny

	case ActionTimeEntryRead, ActionTimesheetRead:
		if self {
			return Allow
		}
		return NotFound

	case ActionTimeEntryCreate, ActionTimesheetCreate:
		if self && res.ActiveMember && res.ProjectActive {
			return Allow
		}
		if !self {
			return Deny
		}
		return NotFound

	case ActionTimeEntryEdit, ActionTimeEntrySubmit, ActionTimesheetSubmit:
		if self {
			return Allow
		}
		return NotFound

	default:
		// Mutations, reviews, billing, customers, SOWs, memberships,
		// role changes, org settings.
		return Deny
	}
}
