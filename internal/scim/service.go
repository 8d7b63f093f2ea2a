package scim

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/scimgate/scimgate/internal/audit"
	apperrors "github.com/scimgate/scimgate/internal/common/errors"
	"github.com/scimgate/scimgate/internal/common/middleware"
	"github.com/scimgate/scimgate/internal/directory"
)

// AuditRecorder receives provisioning events for the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, event audit.Event)
}

// Service implements the SCIM operations over the directory store. It owns
// resource mapping, filtering, uniqueness checks, and patch application;
// the store only persists.
type Service struct {
	store    directory.Store
	recorder AuditRecorder
	logger   *zap.Logger
}

// NewService creates a SCIM service. recorder may be nil to disable the
// audit trail.
func NewService(store directory.Store, recorder AuditRecorder, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		recorder: recorder,
		logger:   logger,
	}
}

// record counts a mutation and forwards it to the audit trail.
func (s *Service) record(ctx context.Context, resource, action, resourceID string, opErr error, detail map[string]interface{}) {
	outcome := audit.OutcomeSuccess
	if opErr != nil {
		outcome = audit.OutcomeFailure
	}
	middleware.ProvisioningOperationsTotal.WithLabelValues(resource, action, outcome).Inc()

	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, audit.Event{
		Resource:   resource,
		Action:     action,
		ResourceID: resourceID,
		Outcome:    outcome,
		Detail:     detail,
	})
}

// ListUsers returns one page of users. A userName filter resolves through
// the indexed email lookup; a miss yields an empty set, not an error.
func (s *Service) ListUsers(ctx context.Context, filter *Filter, page Page) (*ListResponse, error) {
	var users []*directory.User

	if filter != nil {
		user, err := s.store.FindUserByEmail(ctx, filter.Value)
		switch {
		case err == nil:
			users = []*directory.User{user}
		case apperrors.IsErrorCode(err, apperrors.ErrUserNotFound):
			users = nil
		default:
			return nil, err
		}
	} else {
		all, err := s.store.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		users = all
	}

	pageUsers := paginate(users, page)
	resources := make([]*UserResource, 0, len(pageUsers))
	for _, u := range pageUsers {
		resources = append(resources, UserToResource(u))
	}
	return NewListResponse(len(users), page.StartIndex, len(resources), resources), nil
}

// GetUser returns one user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*UserResource, error) {
	user, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return UserToResource(user), nil
}

// CreateUser provisions a new user. userName is required and must not
// collide with an existing email.
func (s *Service) CreateUser(ctx context.Context, res *UserResource) (*UserResource, error) {
	if res.UserName == "" {
		return nil, ErrInvalidValue("userName is required")
	}

	if err := s.checkEmailAvailable(ctx, res.UserName, ""); err != nil {
		s.record(ctx, "User", "create", "", err, map[string]interface{}{"email": res.UserName})
		return nil, err
	}

	password := res.Password
	if password == "" {
		password = uuid.New().String()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal("failed to hash password", err)
	}

	role := directory.RolePending
	if res.Active {
		role = directory.RoleUser
	}

	user := directory.NewUser(res.UserName, DisplayNameFromResource(res), role, string(hash))
	if err := s.store.CreateUser(ctx, user); err != nil {
		s.record(ctx, "User", "create", "", err, map[string]interface{}{"email": res.UserName})
		return nil, err
	}

	s.record(ctx, "User", "create", user.ID, nil, map[string]interface{}{"email": user.Email})
	return UserToResource(user), nil
}

// ReplaceUser applies a full PUT of a user. Changed attribute groups are
// written separately; an unchanged payload performs no writes.
func (s *Service) ReplaceUser(ctx context.Context, id string, res *UserResource) (*UserResource, error) {
	current, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var updates []directory.UserUpdate

	if res.UserName != "" && res.UserName != current.Email {
		if err := s.checkEmailAvailable(ctx, res.UserName, id); err != nil {
			s.record(ctx, "User", "replace", id, err, map[string]interface{}{"email": res.UserName})
			return nil, err
		}
		email := res.UserName
		updates = append(updates, directory.UserUpdate{Email: &email})
	}

	if name := DisplayNameFromResource(res); name != "" && name != current.Name {
		updates = append(updates, directory.UserUpdate{Name: &name})
	}

	if role := RoleForActive(current.Role, res.Active); role != current.Role {
		updates = append(updates, directory.UserUpdate{Role: &role})
	}

	for _, update := range updates {
		if err := s.store.UpdateUser(ctx, id, update); err != nil {
			s.record(ctx, "User", "replace", id, err, nil)
			return nil, err
		}
	}

	if len(updates) == 0 {
		return UserToResource(current), nil
	}

	updated, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "User", "replace", id, nil, map[string]interface{}{"writes": len(updates)})
	return UserToResource(updated), nil
}

// PatchUser applies a validated PATCH. Every operation is validated before
// anything is written; each changed attribute group gets its own write.
func (s *Service) PatchUser(ctx context.Context, id string, req *PatchRequest) (*UserResource, error) {
	ops, err := ParseUserPatch(req)
	if err != nil {
		return nil, err
	}

	current, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stagedEmail := current.Email
	stagedRole := current.Role
	for _, op := range ops {
		switch op := op.(type) {
		case SetUserName:
			stagedEmail = op.UserName
		case SetActive:
			stagedRole = RoleForActive(stagedRole, op.Active)
		}
	}

	var updates []directory.UserUpdate
	if stagedEmail != current.Email {
		if err := s.checkEmailAvailable(ctx, stagedEmail, id); err != nil {
			s.record(ctx, "User", "patch", id, err, map[string]interface{}{"email": stagedEmail})
			return nil, err
		}
		updates = append(updates, directory.UserUpdate{Email: &stagedEmail})
	}
	if stagedRole != current.Role {
		updates = append(updates, directory.UserUpdate{Role: &stagedRole})
	}

	for _, update := range updates {
		if err := s.store.UpdateUser(ctx, id, update); err != nil {
			s.record(ctx, "User", "patch", id, err, nil)
			return nil, err
		}
	}

	if len(updates) == 0 {
		return UserToResource(current), nil
	}

	updated, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "User", "patch", id, nil, map[string]interface{}{"writes": len(updates)})
	return UserToResource(updated), nil
}

// DeleteUser removes a user by id.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		if !apperrors.IsErrorCode(err, apperrors.ErrUserNotFound) {
			s.record(ctx, "User", "delete", id, err, nil)
		}
		return err
	}
	s.record(ctx, "User", "delete", id, nil, nil)
	return nil
}

// checkEmailAvailable rejects an email already held by a different user.
func (s *Service) checkEmailAvailable(ctx context.Context, email, selfID string) error {
	existing, err := s.store.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.ID != selfID {
			return ErrUniqueness("a user with email " + email + " already exists")
		}
		return nil
	case apperrors.IsErrorCode(err, apperrors.ErrUserNotFound):
		return nil
	default:
		return err
	}
}

// ListGroups returns one page of groups with resolved memberships. A
// displayName filter is a case-sensitive scan over the group names.
func (s *Service) ListGroups(ctx context.Context, filter *Filter, page Page) (*ListResponse, error) {
	all, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	groups := all
	if filter != nil {
		groups = make([]*directory.Group, 0)
		for _, g := range all {
			if g.Name == filter.Value {
				groups = append(groups, g)
			}
		}
	}

	pageGroups := paginate(groups, page)
	members, err := s.resolveMembers(ctx, pageGroups)
	if err != nil {
		return nil, err
	}

	resources := make([]*GroupResource, 0, len(pageGroups))
	for _, g := range pageGroups {
		resources = append(resources, GroupToResource(g, members))
	}
	return NewListResponse(len(groups), page.StartIndex, len(resources), resources), nil
}

// resolveMembers loads the users referenced by any of the groups in one
// query.
func (s *Service) resolveMembers(ctx context.Context, groups []*directory.Group) ([]*directory.User, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, g := range groups {
		for _, id := range g.UserIDs {
			if !seen[id] {
				ids = append(ids, id)
				seen[id] = true
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.store.ListUsersByIDs(ctx, ids)
}

// GetGroup returns one group by id with resolved membership.
func (s *Service) GetGroup(ctx context.Context, id string) (*GroupResource, error) {
	group, err := s.store.FindGroupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.store.ListUsersByIDs(ctx, group.UserIDs)
	if err != nil {
		return nil, err
	}
	return GroupToResource(group, members), nil
}

// CreateGroup provisions a new group owned by the super admin. The group
// record and its initial membership are written in two phases.
func (s *Service) CreateGroup(ctx context.Context, res *GroupResource) (*GroupResource, error) {
	if res.DisplayName == "" {
		return nil, ErrInvalidValue("displayName is required")
	}

	if err := s.checkGroupNameAvailable(ctx, res.DisplayName, ""); err != nil {
		s.record(ctx, "Group", "create", "", err, map[string]interface{}{"name": res.DisplayName})
		return nil, err
	}

	owner, err := s.store.FindSuperAdmin(ctx)
	if err != nil {
		return nil, err
	}

	group := directory.NewGroup(owner.ID, res.DisplayName, "")
	if err := s.store.CreateGroup(ctx, group); err != nil {
		s.record(ctx, "Group", "create", "", err, map[string]interface{}{"name": res.DisplayName})
		return nil, err
	}

	if len(res.Members) > 0 {
		ids := dedupe(MemberIDs(res.Members))
		if err := s.store.UpdateGroup(ctx, group.ID, directory.GroupUpdate{UserIDs: &ids}); err != nil {
			s.record(ctx, "Group", "create", group.ID, err, nil)
			return nil, err
		}
		group.UserIDs = ids
	}

	members, err := s.store.ListUsersByIDs(ctx, group.UserIDs)
	if err != nil {
		return nil, err
	}

	s.record(ctx, "Group", "create", group.ID, nil, map[string]interface{}{"name": group.Name})
	return GroupToResource(group, members), nil
}

// ReplaceGroup applies a full PUT of a group. The name and membership
// groups are written separately; an unchanged payload performs no writes.
func (s *Service) ReplaceGroup(ctx context.Context, id string, res *GroupResource) (*GroupResource, error) {
	if res.DisplayName == "" {
		return nil, ErrInvalidValue("displayName is required")
	}

	current, err := s.store.FindGroupByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var updates []directory.GroupUpdate

	if res.DisplayName != current.Name {
		if err := s.checkGroupNameAvailable(ctx, res.DisplayName, id); err != nil {
			s.record(ctx, "Group", "replace", id, err, map[string]interface{}{"name": res.DisplayName})
			return nil, err
		}
		name := res.DisplayName
		updates = append(updates, directory.GroupUpdate{Name: &name})
	}

	ids := dedupe(MemberIDs(res.Members))
	if !equalIDs(ids, current.UserIDs) {
		updates = append(updates, directory.GroupUpdate{UserIDs: &ids})
	}

	for _, update := range updates {
		if err := s.store.UpdateGroup(ctx, id, update); err != nil {
			s.record(ctx, "Group", "replace", id, err, nil)
			return nil, err
		}
	}

	if len(updates) == 0 {
		members, err := s.store.ListUsersByIDs(ctx, current.UserIDs)
		if err != nil {
			return nil, err
		}
		return GroupToResource(current, members), nil
	}

	s.record(ctx, "Group", "replace", id, nil, map[string]interface{}{"writes": len(updates)})
	return s.GetGroup(ctx, id)
}

// PatchGroup applies a validated PATCH. Membership operations are staged
// in order against the current set; each changed attribute group gets its
// own write.
func (s *Service) PatchGroup(ctx context.Context, id string, req *PatchRequest) (*GroupResource, error) {
	ops, err := ParseGroupPatch(req)
	if err != nil {
		return nil, err
	}

	current, err := s.store.FindGroupByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stagedName := current.Name
	stagedIDs := append([]string(nil), current.UserIDs...)
	for _, op := range ops {
		if rename, ok := op.(SetDisplayName); ok {
			stagedName = rename.Name
			continue
		}
		stagedIDs = StageMembers(stagedIDs, op)
	}

	var updates []directory.GroupUpdate
	if stagedName != current.Name {
		if err := s.checkGroupNameAvailable(ctx, stagedName, id); err != nil {
			s.record(ctx, "Group", "patch", id, err, map[string]interface{}{"name": stagedName})
			return nil, err
		}
		updates = append(updates, directory.GroupUpdate{Name: &stagedName})
	}
	if !equalIDs(stagedIDs, current.UserIDs) {
		updates = append(updates, directory.GroupUpdate{UserIDs: &stagedIDs})
	}

	for _, update := range updates {
		if err := s.store.UpdateGroup(ctx, id, update); err != nil {
			s.record(ctx, "Group", "patch", id, err, nil)
			return nil, err
		}
	}

	if len(updates) == 0 {
		members, err := s.store.ListUsersByIDs(ctx, current.UserIDs)
		if err != nil {
			return nil, err
		}
		return GroupToResource(current, members), nil
	}

	s.record(ctx, "Group", "patch", id, nil, map[string]interface{}{"writes": len(updates)})
	return s.GetGroup(ctx, id)
}

// DeleteGroup removes a group by id.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	if err := s.store.DeleteGroup(ctx, id); err != nil {
		if !apperrors.IsErrorCode(err, apperrors.ErrGroupNotFound) {
			s.record(ctx, "Group", "delete", id, err, nil)
		}
		return err
	}
	s.record(ctx, "Group", "delete", id, nil, nil)
	return nil
}

// checkGroupNameAvailable rejects a display name already held by a
// different group. The comparison is case-sensitive.
func (s *Service) checkGroupNameAvailable(ctx context.Context, name, selfID string) error {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.Name == name && g.ID != selfID {
			return ErrUniqueness("a group named " + name + " already exists")
		}
	}
	return nil
}

// Ping reports store health for readiness checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
