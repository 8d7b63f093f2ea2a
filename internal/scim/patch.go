package scim

import (
	"regexp"
	"strings"
)

// Patch operations are validated up front: every raw operation is decoded
// into a typed value below before anything is applied, so a request with an
// invalid third operation performs no writes at all.

// UserPatchOp is a validated patch operation against a user.
type UserPatchOp interface{ isUserPatchOp() }

// SetActive flips the activation state of a user.
type SetActive struct{ Active bool }

// SetUserName changes the userName (email) of a user.
type SetUserName struct{ UserName string }

func (SetActive) isUserPatchOp()   {}
func (SetUserName) isUserPatchOp() {}

// GroupPatchOp is a validated patch operation against a group.
type GroupPatchOp interface{ isGroupPatchOp() }

// SetDisplayName renames a group.
type SetDisplayName struct{ Name string }

// ReplaceMembers replaces the whole membership set.
type ReplaceMembers struct{ IDs []string }

// AddMembers adds ids to the membership set; ids already present are ignored.
type AddMembers struct{ IDs []string }

// RemoveMembers removes ids from the membership set; absent ids are ignored.
type RemoveMembers struct{ IDs []string }

func (SetDisplayName) isGroupPatchOp() {}
func (ReplaceMembers) isGroupPatchOp() {}
func (AddMembers) isGroupPatchOp()     {}
func (RemoveMembers) isGroupPatchOp()  {}

// ParseUserPatch validates a PATCH request against the supported user
// operation set.
func ParseUserPatch(req *PatchRequest) ([]UserPatchOp, error) {
	if len(req.Operations) == 0 {
		return nil, ErrInvalidValue("patch request contains no operations")
	}

	ops := make([]UserPatchOp, 0, len(req.Operations))
	for _, raw := range req.Operations {
		op, err := parseUserPatchOp(raw)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseUserPatchOp(raw PatchOperation) (UserPatchOp, error) {
	if strings.ToLower(raw.Op) != "replace" {
		return nil, ErrNotImplemented("unsupported patch operation " + raw.Op + " for users")
	}

	switch strings.ToLower(raw.Path) {
	case "active":
		active, ok := raw.Value.(bool)
		if !ok {
			return nil, ErrInvalidValue("active must be a boolean")
		}
		return SetActive{Active: active}, nil
	case "username":
		userName, ok := raw.Value.(string)
		if !ok || userName == "" {
			return nil, ErrInvalidValue("userName must be a non-empty string")
		}
		return SetUserName{UserName: userName}, nil
	default:
		return nil, ErrNotImplemented("unsupported patch path " + raw.Path + " for users")
	}
}

// removeMemberPattern matches the value-filter remove path, e.g.
// members[value eq "2819c223"]. Path tokens match case-insensitively;
// the captured id keeps its case.
var removeMemberPattern = regexp.MustCompile(`(?i)^members\[value eq "((?:[^"\\]|\\.)*)"\]$`)

// ParseGroupPatch validates a PATCH request against the supported group
// operation set.
func ParseGroupPatch(req *PatchRequest) ([]GroupPatchOp, error) {
	if len(req.Operations) == 0 {
		return nil, ErrInvalidValue("patch request contains no operations")
	}

	ops := make([]GroupPatchOp, 0, len(req.Operations))
	for _, raw := range req.Operations {
		op, err := parseGroupPatchOp(raw)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func parseGroupPatchOp(raw PatchOperation) (GroupPatchOp, error) {
	op := strings.ToLower(raw.Op)
	path := strings.ToLower(raw.Path)

	switch op {
	case "replace":
		switch path {
		case "displayname":
			name, ok := raw.Value.(string)
			if !ok || name == "" {
				return nil, ErrInvalidValue("displayName must be a non-empty string")
			}
			return SetDisplayName{Name: name}, nil
		case "members":
			// A null value clears the membership set.
			if raw.Value == nil {
				return ReplaceMembers{}, nil
			}
			ids, err := parseMemberList(raw.Value)
			if err != nil {
				return nil, err
			}
			return ReplaceMembers{IDs: ids}, nil
		}
		return nil, ErrNotImplemented("unsupported patch path " + raw.Path + " for groups")

	case "add":
		if path != "members" {
			return nil, ErrNotImplemented("unsupported patch path " + raw.Path + " for groups")
		}
		ids, err := parseMemberList(raw.Value)
		if err != nil {
			return nil, err
		}
		return AddMembers{IDs: ids}, nil

	case "remove":
		// Removal is addressed through the value filter only.
		if m := removeMemberPattern.FindStringSubmatch(raw.Path); m != nil {
			return RemoveMembers{IDs: []string{unescapeFilterValue(m[1])}}, nil
		}
		return nil, ErrNotImplemented("unsupported patch path " + raw.Path + " for groups")

	default:
		return nil, ErrNotImplemented("unsupported patch operation " + raw.Op + " for groups")
	}
}

// parseMemberList decodes a members value: a list of {value: "<user id>"}.
func parseMemberList(value interface{}) ([]string, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, ErrInvalidValue("members value must be a list")
	}

	ids := make([]string, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			return nil, ErrInvalidValue("members entries must be objects")
		}
		id, ok := m["value"].(string)
		if !ok || id == "" {
			return nil, ErrInvalidValue("member value must be a non-empty string")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// StageMembers applies one membership operation to a staged member set,
// returning the new set. The input slice is never mutated.
func StageMembers(current []string, op GroupPatchOp) []string {
	switch op := op.(type) {
	case ReplaceMembers:
		return dedupe(op.IDs)
	case AddMembers:
		staged := append([]string(nil), current...)
		present := make(map[string]bool, len(staged))
		for _, id := range staged {
			present[id] = true
		}
		for _, id := range op.IDs {
			if !present[id] {
				staged = append(staged, id)
				present[id] = true
			}
		}
		return staged
	case RemoveMembers:
		drop := make(map[string]bool, len(op.IDs))
		for _, id := range op.IDs {
			drop[id] = true
		}
		staged := make([]string, 0, len(current))
		for _, id := range current {
			if !drop[id] {
				staged = append(staged, id)
			}
		}
		return staged
	default:
		return current
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
