package tenant

import "github.com/nikhilbhutani/staffcore/internal/models"

// Permission codes carried in actor credentials.
const (
	PermChangeAssignment = "contract.change_assignment"
	PermViewAudit        = "audit.view_auditevent"
	PermChangeAgreement  = "master.change_staffagreement"
	PermChangeConnect    = "connect.change_connect"
	PermRebuild          = "contract.rebuild_teishokubi"
)

// ContractPerm returns the permission code of verb on contracts of side,
// e.g. "contract.change_client".
func ContractPerm(verb string, side models.Side) string {
	return "contract." + verb + "_" + string(side)
}
