package pipeline

import (
	"context"

	"hirepipe/pkg/rbac"
)

// Policy decides what an actor may see and change.
type Policy interface {
	CanRead(ctx context.Context, r Reader, actor Actor, projectID int64) (bool, error)
	CanWrite(ctx context.Context, r Reader, actor Actor, projectID int64) (bool, error)
	// CanSeeCandidate applies project scoping to a candidate. Candidates with
	// no application anywhere are visible to everyone.
	CanSeeCandidate(ctx context.Context, r Reader, actor Actor, candidateID int64) (bool, error)
}

// RolePolicy grants ADMIN, HR_MANAGER and superusers everything and scopes
// everyone else by project membership.
type RolePolicy struct{}

func (RolePolicy) CanRead(ctx context.Context, r Reader, actor Actor, projectID int64) (bool, error) {
	return memberCan(ctx, r, actor, projectID, rbac.PermissionReadPipeline)
}

func (RolePolicy) CanWrite(ctx context.Context, r Reader, actor Actor, projectID int64) (bool, error) {
	return memberCan(ctx, r, actor, projectID, rbac.PermissionWritePipeline)
}

func (RolePolicy) CanSeeCandidate(ctx context.Context, r Reader, actor Actor, candidateID int64) (bool, error) {
	if rbac.IsGlobal(actor.Role, actor.IsSuperuser) {
		return true, nil
	}
	return r.CandidateVisibleTo(ctx, candidateID, actor.UserID)
}

func memberCan(ctx context.Context, r Reader, actor Actor, projectID int64, permission string) (bool, error) {
	if rbac.IsGlobal(actor.Role, actor.IsSuperuser) {
		return true, nil
	}
	role, ok, err := r.GetMembership(ctx, projectID, actor.UserID)
	if err != nil || !ok {
		return false, err
	}
	return rbac.MemberHasPermission(role, permission), nil
}
