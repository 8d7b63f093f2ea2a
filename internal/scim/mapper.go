package scim

import (
	"strings"

	"github.com/scimgate/scimgate/internal/directory"
)

// UserToResource converts a directory user to its SCIM wire form.
// meta.location is left empty; the transport fills it per request.
func UserToResource(user *directory.User) *UserResource {
	var name NameResource
	if user.Name != "" {
		name.Formatted = user.Name
		parts := strings.SplitN(user.Name, " ", 2)
		name.GivenName = parts[0]
		if len(parts) > 1 {
			name.FamilyName = parts[1]
		}
	}

	lastModified := user.UpdatedAt
	if lastModified.IsZero() {
		lastModified = user.CreatedAt
	}

	return &UserResource{
		Schemas:     []string{URNUser},
		ID:          user.ID,
		UserName:    user.Email,
		Name:        name,
		DisplayName: user.Name,
		Emails: []Email{
			{Value: user.Email, Primary: true},
		},
		Active: user.Active(),
		Meta: Meta{
			ResourceType: "User",
			Created:      user.CreatedAt,
			LastModified: lastModified,
		},
	}
}

// DisplayNameFromResource derives the stored display name from a SCIM user
// payload. Precedence: name.formatted, displayName, given+family, given,
// family, userName.
func DisplayNameFromResource(res *UserResource) string {
	switch {
	case res.Name.Formatted != "":
		return res.Name.Formatted
	case res.DisplayName != "":
		return res.DisplayName
	case res.Name.GivenName != "" && res.Name.FamilyName != "":
		return res.Name.GivenName + " " + res.Name.FamilyName
	case res.Name.GivenName != "":
		return res.Name.GivenName
	case res.Name.FamilyName != "":
		return res.Name.FamilyName
	default:
		return res.UserName
	}
}

// RoleForActive resolves the role a user should hold after an active flag
// write. Deactivation always parks the user as pending; activation only
// promotes a pending user, preserving elevated roles otherwise.
func RoleForActive(currentRole string, active bool) string {
	if !active {
		return directory.RolePending
	}
	if currentRole == directory.RolePending || currentRole == "" {
		return directory.RoleUser
	}
	return currentRole
}

// GroupToResource converts a directory group to its SCIM wire form.
// members is the resolved user set; ids without a matching user are kept
// with the id standing in for the display value.
func GroupToResource(group *directory.Group, members []*directory.User) *GroupResource {
	byID := make(map[string]*directory.User, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	resolved := make([]Member, 0, len(group.UserIDs))
	for _, id := range group.UserIDs {
		if user, ok := byID[id]; ok {
			resolved = append(resolved, Member{Value: user.ID, Display: user.Email})
		} else {
			resolved = append(resolved, Member{Value: id, Display: id})
		}
	}

	lastModified := group.UpdatedAt
	if lastModified.IsZero() {
		lastModified = group.CreatedAt
	}

	return &GroupResource{
		Schemas:     []string{URNGroup},
		ID:          group.ID,
		DisplayName: group.Name,
		Members:     resolved,
		Meta: Meta{
			ResourceType: "Group",
			Created:      group.CreatedAt,
			LastModified: lastModified,
		},
	}
}

// MemberIDs extracts the user ids from a members list, preserving order.
func MemberIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.Value)
	}
	return ids
}
