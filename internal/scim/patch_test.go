package scim

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserPatch(t *testing.T) {
	t.Run("replace active", func(t *testing.T) {
		ops, err := ParseUserPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "active", Value: false},
		}})
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, SetActive{Active: false}, ops[0])
	})

	t.Run("replace userName", func(t *testing.T) {
		ops, err := ParseUserPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "Replace", Path: "userName", Value: "new@example.com"},
		}})
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, SetUserName{UserName: "new@example.com"}, ops[0])
	})

	t.Run("empty operations are invalid", func(t *testing.T) {
		_, err := ParseUserPatch(&PatchRequest{})
		assertSCIMError(t, err, http.StatusBadRequest, TypeInvalidValue)
	})

	t.Run("wrong value type is invalid", func(t *testing.T) {
		_, err := ParseUserPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "active", Value: "true"},
		}})
		assertSCIMError(t, err, http.StatusBadRequest, TypeInvalidValue)
	})

	t.Run("paths match case-insensitively", func(t *testing.T) {
		ops, err := ParseUserPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "Active", Value: true},
			{Op: "replace", Path: "UserName", Value: "new@example.com"},
		}})
		require.NoError(t, err)
		assert.Equal(t, SetActive{Active: true}, ops[0])
		assert.Equal(t, SetUserName{UserName: "new@example.com"}, ops[1])
	})

	t.Run("unknown path is unsupported", func(t *testing.T) {
		_, err := ParseUserPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "nickName", Value: "JJ"},
		}})
		assertSCIMError(t, err, http.StatusNotImplemented, TypeNotImplemented)
	})

	t.Run("add op is unsupported for users", func(t *testing.T) {
		_, err := ParseUserPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "add", Path: "active", Value: true},
		}})
		assertSCIMError(t, err, http.StatusNotImplemented, TypeNotImplemented)
	})

	t.Run("a bad later op rejects the whole request", func(t *testing.T) {
		_, err := ParseUserPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "active", Value: true},
			{Op: "replace", Path: "active", Value: 42.0},
		}})
		assertSCIMError(t, err, http.StatusBadRequest, TypeInvalidValue)
	})
}

func TestParseGroupPatch(t *testing.T) {
	memberList := []interface{}{
		map[string]interface{}{"value": "u-1"},
		map[string]interface{}{"value": "u-2", "display": "Two"},
	}

	t.Run("replace displayName", func(t *testing.T) {
		ops, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "displayName", Value: "Platform"},
		}})
		require.NoError(t, err)
		assert.Equal(t, SetDisplayName{Name: "Platform"}, ops[0])
	})

	t.Run("replace members", func(t *testing.T) {
		ops, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "members", Value: memberList},
		}})
		require.NoError(t, err)
		assert.Equal(t, ReplaceMembers{IDs: []string{"u-1", "u-2"}}, ops[0])
	})

	t.Run("add members", func(t *testing.T) {
		ops, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "add", Path: "members", Value: memberList},
		}})
		require.NoError(t, err)
		assert.Equal(t, AddMembers{IDs: []string{"u-1", "u-2"}}, ops[0])
	})

	t.Run("replace members with null clears membership", func(t *testing.T) {
		ops, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "members", Value: nil},
		}})
		require.NoError(t, err)
		assert.Equal(t, ReplaceMembers{}, ops[0])
	})

	t.Run("remove members without a value filter is unsupported", func(t *testing.T) {
		_, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "remove", Path: "members", Value: memberList},
		}})
		assertSCIMError(t, err, http.StatusNotImplemented, TypeNotImplemented)
	})

	t.Run("remove member by value filter", func(t *testing.T) {
		ops, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "remove", Path: `members[value eq "u-7"]`},
		}})
		require.NoError(t, err)
		assert.Equal(t, RemoveMembers{IDs: []string{"u-7"}}, ops[0])
	})

	t.Run("paths match case-insensitively", func(t *testing.T) {
		ops, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "DisplayName", Value: "Platform"},
			{Op: "remove", Path: `Members[Value eq "u-7"]`},
		}})
		require.NoError(t, err)
		assert.Equal(t, SetDisplayName{Name: "Platform"}, ops[0])
		assert.Equal(t, RemoveMembers{IDs: []string{"u-7"}}, ops[1])
	})

	t.Run("member entries without a value are invalid", func(t *testing.T) {
		_, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "add", Path: "members", Value: []interface{}{map[string]interface{}{"display": "no id"}}},
		}})
		assertSCIMError(t, err, http.StatusBadRequest, TypeInvalidValue)
	})

	t.Run("non-list members value is invalid", func(t *testing.T) {
		_, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "members", Value: "u-1"},
		}})
		assertSCIMError(t, err, http.StatusBadRequest, TypeInvalidValue)
	})

	t.Run("unknown path is unsupported", func(t *testing.T) {
		_, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "externalId", Value: "x"},
		}})
		assertSCIMError(t, err, http.StatusNotImplemented, TypeNotImplemented)
	})

	t.Run("unknown op is unsupported", func(t *testing.T) {
		_, err := ParseGroupPatch(&PatchRequest{Operations: []PatchOperation{
			{Op: "move", Path: "members", Value: memberList},
		}})
		assertSCIMError(t, err, http.StatusNotImplemented, TypeNotImplemented)
	})
}

func TestStageMembers(t *testing.T) {
	current := []string{"a", "b", "c"}

	t.Run("replace dedupes and takes the new set", func(t *testing.T) {
		staged := StageMembers(current, ReplaceMembers{IDs: []string{"x", "y", "x"}})
		assert.Equal(t, []string{"x", "y"}, staged)
	})

	t.Run("replace with no ids clears the set", func(t *testing.T) {
		staged := StageMembers(current, ReplaceMembers{})
		assert.Empty(t, staged)
	})

	t.Run("add appends only new ids", func(t *testing.T) {
		staged := StageMembers(current, AddMembers{IDs: []string{"b", "d"}})
		assert.Equal(t, []string{"a", "b", "c", "d"}, staged)
	})

	t.Run("remove drops present ids and ignores absent ones", func(t *testing.T) {
		staged := StageMembers(current, RemoveMembers{IDs: []string{"b", "zz"}})
		assert.Equal(t, []string{"a", "c"}, staged)
	})

	t.Run("never mutates the input", func(t *testing.T) {
		StageMembers(current, RemoveMembers{IDs: []string{"a"}})
		StageMembers(current, AddMembers{IDs: []string{"q"}})
		assert.Equal(t, []string{"a", "b", "c"}, current)
	})

	t.Run("operations stage in order", func(t *testing.T) {
		staged := StageMembers(current, ReplaceMembers{IDs: []string{"m"}})
		staged = StageMembers(staged, AddMembers{IDs: []string{"n"}})
		staged = StageMembers(staged, RemoveMembers{IDs: []string{"m"}})
		assert.Equal(t, []string{"n"}, staged)
	})
}
