package scim

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/scimgate/scimgate/internal/common/errors"
	"github.com/scimgate/scimgate/internal/directory"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindUserByID(ctx context.Context, id string) (*directory.User, error) {
	args := m.Called(ctx, id)
	if u, ok := args.Get(0).(*directory.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) FindUserByEmail(ctx context.Context, email string) (*directory.User, error) {
	args := m.Called(ctx, email)
	if u, ok := args.Get(0).(*directory.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListUsers(ctx context.Context) ([]*directory.User, error) {
	args := m.Called(ctx)
	if u, ok := args.Get(0).([]*directory.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListUsersByIDs(ctx context.Context, ids []string) ([]*directory.User, error) {
	args := m.Called(ctx, ids)
	if u, ok := args.Get(0).([]*directory.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) CreateUser(ctx context.Context, user *directory.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockStore) UpdateUser(ctx context.Context, id string, update directory.UserUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *mockStore) DeleteUser(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) FindGroupByID(ctx context.Context, id string) (*directory.Group, error) {
	args := m.Called(ctx, id)
	if g, ok := args.Get(0).(*directory.Group); ok {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListGroups(ctx context.Context) ([]*directory.Group, error) {
	args := m.Called(ctx)
	if g, ok := args.Get(0).([]*directory.Group); ok {
		return g, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) CreateGroup(ctx context.Context, group *directory.Group) error {
	return m.Called(ctx, group).Error(0)
}

func (m *mockStore) UpdateGroup(ctx context.Context, id string, update directory.GroupUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *mockStore) DeleteGroup(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) FindSuperAdmin(ctx context.Context) (*directory.User, error) {
	args := m.Called(ctx)
	if u, ok := args.Get(0).(*directory.User); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newTestService(store *mockStore) *Service {
	return NewService(store, nil, zap.NewNop())
}

func TestServiceListUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("lists everything without a filter", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListUsers", mock.Anything).Return([]*directory.User{
			{ID: "u-1", Email: "a@example.com", Role: directory.RoleUser},
			{ID: "u-2", Email: "b@example.com", Role: directory.RolePending},
			{ID: "u-3", Email: "c@example.com", Role: directory.RoleAdmin},
		}, nil)

		list, err := newTestService(store).ListUsers(ctx, nil, Page{StartIndex: 1, Count: DefaultPageSize})
		require.NoError(t, err)

		assert.Equal(t, 3, list.TotalResults)
		assert.Equal(t, 1, list.StartIndex)
		assert.Equal(t, 3, list.ItemsPerPage)
	})

	t.Run("resolves a userName filter through the email lookup", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindUserByEmail", mock.Anything, "a@example.com").Return(
			&directory.User{ID: "u-1", Email: "a@example.com", Role: directory.RoleUser}, nil)

		list, err := newTestService(store).ListUsers(ctx,
			&Filter{Attribute: "userName", Value: "a@example.com"},
			Page{StartIndex: 1, Count: DefaultPageSize})
		require.NoError(t, err)

		assert.Equal(t, 1, list.TotalResults)
		store.AssertNotCalled(t, "ListUsers", mock.Anything)
	})

	t.Run("a filter miss yields an empty list", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindUserByEmail", mock.Anything, "nobody@example.com").Return(
			nil, apperrors.UserNotFound("nobody@example.com"))

		list, err := newTestService(store).ListUsers(ctx,
			&Filter{Attribute: "userName", Value: "nobody@example.com"},
			Page{StartIndex: 1, Count: DefaultPageSize})
		require.NoError(t, err)

		assert.Equal(t, 0, list.TotalResults)
		assert.Equal(t, 0, list.ItemsPerPage)
	})

	t.Run("a page past the end is empty but keeps the total", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListUsers", mock.Anything).Return([]*directory.User{
			{ID: "u-1", Email: "a@example.com", Role: directory.RoleUser},
			{ID: "u-2", Email: "b@example.com", Role: directory.RoleUser},
		}, nil)

		list, err := newTestService(store).ListUsers(ctx, nil, Page{StartIndex: 10, Count: 5})
		require.NoError(t, err)

		assert.Equal(t, 2, list.TotalResults)
		assert.Equal(t, 10, list.StartIndex)
		assert.Equal(t, 0, list.ItemsPerPage)
	})
}

func TestServiceCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an active user with a hashed password", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindUserByEmail", mock.Anything, "jane@example.com").Return(
			nil, apperrors.UserNotFound("jane@example.com"))

		var created *directory.User
		store.On("CreateUser", mock.Anything, mock.AnythingOfType("*directory.User")).
			Run(func(args mock.Arguments) { created = args.Get(1).(*directory.User) }).
			Return(nil)

		res, err := newTestService(store).CreateUser(ctx, &UserResource{
			UserName: "jane@example.com",
			Name:     NameResource{GivenName: "Jane", FamilyName: "Doe"},
			Active:   true,
			Password: "s3cret",
		})
		require.NoError(t, err)

		require.NotNil(t, created)
		assert.Equal(t, "jane@example.com", created.Email)
		assert.Equal(t, "Jane Doe", created.Name)
		assert.Equal(t, directory.RoleUser, created.Role)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("s3cret")))

		assert.Equal(t, created.ID, res.ID)
		assert.True(t, res.Active)
		assert.Empty(t, res.Password)
	})

	t.Run("an inactive create lands as pending", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindUserByEmail", mock.Anything, "joe@example.com").Return(
			nil, apperrors.UserNotFound("joe@example.com"))

		var created *directory.User
		store.On("CreateUser", mock.Anything, mock.AnythingOfType("*directory.User")).
			Run(func(args mock.Arguments) { created = args.Get(1).(*directory.User) }).
			Return(nil)

		res, err := newTestService(store).CreateUser(ctx, &UserResource{UserName: "joe@example.com"})
		require.NoError(t, err)

		assert.Equal(t, directory.RolePending, created.Role)
		assert.NotEmpty(t, created.PasswordHash)
		assert.False(t, res.Active)
	})

	t.Run("rejects a duplicate email", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindUserByEmail", mock.Anything, "taken@example.com").Return(
			&directory.User{ID: "u-9", Email: "taken@example.com"}, nil)

		_, err := newTestService(store).CreateUser(ctx, &UserResource{UserName: "taken@example.com"})
		assertSCIMError(t, err, http.StatusConflict, TypeUniqueness)
		store.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything)
	})

	t.Run("rejects a missing userName", func(t *testing.T) {
		store := &mockStore{}
		_, err := newTestService(store).CreateUser(ctx, &UserResource{})
		assertSCIMError(t, err, http.StatusBadRequest, TypeInvalidValue)
	})
}

func TestServiceReplaceUser(t *testing.T) {
	ctx := context.Background()
	current := &directory.User{ID: "u-1", Email: "old@example.com", Name: "Old Name", Role: directory.RoleUser}

	t.Run("an unchanged payload performs no writes", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindUserByID", mock.Anything, "u-1").Return(current, nil)

		res, err := newTestService(store).ReplaceUser(ctx, "u-1", &UserResource{
			UserName: "old@example.com",
			Name:     NameResource{Formatted: "Old Name"},
			Active:   true,
		})
		require.NoError(t, err)

		assert.Equal(t, "old@example.com", res.UserName)
		store.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("each changed attribute group gets its own write", func(t *testing.T) {
		store := &mockStore{}
		updatedUser := &directory.User{ID: "u-1", Email: "new@example.com", Name: "New Name", Role: directory.RolePending}
		store.On("FindUserByID", mock.Anything, "u-1").Return(current, nil).Once()
		store.On("FindUserByEmail", mock.Anything, "new@example.com").Return(
			nil, apperrors.UserNotFound("new@example.com"))

		var updates []directory.UserUpdate
		store.On("UpdateUser", mock.Anything, "u-1", mock.AnythingOfType("directory.UserUpdate")).
			Run(func(args mock.Arguments) { updates = append(updates, args.Get(2).(directory.UserUpdate)) }).
			Return(nil)
		store.On("FindUserByID", mock.Anything, "u-1").Return(updatedUser, nil)

		res, err := newTestService(store).ReplaceUser(ctx, "u-1", &UserResource{
			UserName: "new@example.com",
			Name:     NameResource{Formatted: "New Name"},
			Active:   false,
		})
		require.NoError(t, err)

		require.Len(t, updates, 3)
		assert.Equal(t, "new@example.com", *updates[0].Email)
		assert.Equal(t, "New Name", *updates[1].Name)
		assert.Equal(t, directory.RolePending, *updates[2].Role)
		for _, u := range updates {
			set := 0
			if u.Email != nil {
				set++
			}
			if u.Name != nil {
				set++
			}
			if u.Role != nil {
				set++
			}
			assert.Equal(t, 1, set, "each write must touch exactly one attribute group")
		}

		assert.False(t, res.Active)
	})

	t.Run("rejects stealing another user's email", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindUserByID", mock.Anything, "u-1").Return(current, nil)
		store.On("FindUserByEmail", mock.Anything, "taken@example.com").Return(
			&directory.User{ID: "u-2", Email: "taken@example.com"}, nil)

		_, err := newTestService(store).ReplaceUser(ctx, "u-1", &UserResource{
			UserName: "taken@example.com",
			Active:   true,
		})
		assertSCIMError(t, err, http.StatusConflict, TypeUniqueness)
		store.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestServicePatchUser(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivation writes the role group once", func(t *testing.T) {
		store := &mockStore{}
		active := &directory.User{ID: "u-1", Email: "a@example.com", Role: directory.RoleUser}
		parked := &directory.User{ID: "u-1", Email: "a@example.com", Role: directory.RolePending}
		store.On("FindUserByID", mock.Anything, "u-1").Return(active, nil).Once()

		var update directory.UserUpdate
		store.On("UpdateUser", mock.Anything, "u-1", mock.AnythingOfType("directory.UserUpdate")).
			Run(func(args mock.Arguments) { update = args.Get(2).(directory.UserUpdate) }).
			Return(nil).Once()
		store.On("FindUserByID", mock.Anything, "u-1").Return(parked, nil)

		res, err := newTestService(store).PatchUser(ctx, "u-1", &PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "active", Value: false},
		}})
		require.NoError(t, err)

		require.NotNil(t, update.Role)
		assert.Equal(t, directory.RolePending, *update.Role)
		assert.Nil(t, update.Email)
		assert.False(t, res.Active)
		store.AssertNumberOfCalls(t, "UpdateUser", 1)
	})

	t.Run("a no-op patch performs zero writes", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindUserByID", mock.Anything, "u-1").Return(
			&directory.User{ID: "u-1", Email: "a@example.com", Role: directory.RoleAdmin}, nil)

		res, err := newTestService(store).PatchUser(ctx, "u-1", &PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "active", Value: true},
		}})
		require.NoError(t, err)

		assert.True(t, res.Active)
		store.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("an invalid operation performs no reads or writes", func(t *testing.T) {
		store := &mockStore{}

		_, err := newTestService(store).PatchUser(ctx, "u-1", &PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "active", Value: false},
			{Op: "replace", Path: "nickName", Value: "x"},
		}})
		assertSCIMError(t, err, http.StatusNotImplemented, TypeNotImplemented)
		store.AssertNotCalled(t, "FindUserByID", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("email and role changes are separate writes", func(t *testing.T) {
		store := &mockStore{}
		current := &directory.User{ID: "u-1", Email: "a@example.com", Role: directory.RoleUser}
		final := &directory.User{ID: "u-1", Email: "b@example.com", Role: directory.RolePending}
		store.On("FindUserByID", mock.Anything, "u-1").Return(current, nil).Once()
		store.On("FindUserByEmail", mock.Anything, "b@example.com").Return(
			nil, apperrors.UserNotFound("b@example.com"))

		var updates []directory.UserUpdate
		store.On("UpdateUser", mock.Anything, "u-1", mock.AnythingOfType("directory.UserUpdate")).
			Run(func(args mock.Arguments) { updates = append(updates, args.Get(2).(directory.UserUpdate)) }).
			Return(nil)
		store.On("FindUserByID", mock.Anything, "u-1").Return(final, nil)

		_, err := newTestService(store).PatchUser(ctx, "u-1", &PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "userName", Value: "b@example.com"},
			{Op: "replace", Path: "active", Value: false},
		}})
		require.NoError(t, err)

		require.Len(t, updates, 2)
		assert.NotNil(t, updates[0].Email)
		assert.Nil(t, updates[0].Role)
		assert.NotNil(t, updates[1].Role)
		assert.Nil(t, updates[1].Email)
	})
}

func TestServiceDeleteUser(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes by id", func(t *testing.T) {
		store := &mockStore{}
		store.On("DeleteUser", mock.Anything, "u-1").Return(nil)
		assert.NoError(t, newTestService(store).DeleteUser(ctx, "u-1"))
	})

	t.Run("propagates not found", func(t *testing.T) {
		store := &mockStore{}
		store.On("DeleteUser", mock.Anything, "u-404").Return(apperrors.UserNotFound("u-404"))
		err := newTestService(store).DeleteUser(ctx, "u-404")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, WrapError(err).StatusCode())
	})
}

func TestServiceCreateGroup(t *testing.T) {
	ctx := context.Background()
	superAdmin := &directory.User{ID: "admin-1", Email: "root@example.com", Role: directory.RoleAdmin}

	t.Run("creates the group then writes the membership", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListGroups", mock.Anything).Return([]*directory.Group{}, nil)
		store.On("FindSuperAdmin", mock.Anything).Return(superAdmin, nil)

		var created *directory.Group
		store.On("CreateGroup", mock.Anything, mock.AnythingOfType("*directory.Group")).
			Run(func(args mock.Arguments) { created = args.Get(1).(*directory.Group) }).
			Return(nil)

		var memberWrite directory.GroupUpdate
		store.On("UpdateGroup", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("directory.GroupUpdate")).
			Run(func(args mock.Arguments) { memberWrite = args.Get(2).(directory.GroupUpdate) }).
			Return(nil)
		store.On("ListUsersByIDs", mock.Anything, []string{"u-1", "u-2"}).Return([]*directory.User{
			{ID: "u-1", Email: "one@example.com"},
			{ID: "u-2", Email: "two@example.com"},
		}, nil)

		res, err := newTestService(store).CreateGroup(ctx, &GroupResource{
			DisplayName: "Engineering",
			Members:     []Member{{Value: "u-1"}, {Value: "u-2"}, {Value: "u-1"}},
		})
		require.NoError(t, err)

		require.NotNil(t, created)
		assert.Equal(t, "admin-1", created.OwnerID)
		assert.Equal(t, "Engineering", created.Name)

		require.NotNil(t, memberWrite.UserIDs)
		assert.Equal(t, []string{"u-1", "u-2"}, *memberWrite.UserIDs)
		assert.Nil(t, memberWrite.Name)

		assert.Equal(t, "Engineering", res.DisplayName)
		require.Len(t, res.Members, 2)
		assert.Equal(t, "one@example.com", res.Members[0].Display)
	})

	t.Run("an empty membership skips the second phase", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListGroups", mock.Anything).Return([]*directory.Group{}, nil)
		store.On("FindSuperAdmin", mock.Anything).Return(superAdmin, nil)
		store.On("CreateGroup", mock.Anything, mock.AnythingOfType("*directory.Group")).Return(nil)
		store.On("ListUsersByIDs", mock.Anything, []string{}).Return([]*directory.User{}, nil)

		_, err := newTestService(store).CreateGroup(ctx, &GroupResource{DisplayName: "Empty"})
		require.NoError(t, err)
		store.AssertNotCalled(t, "UpdateGroup", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects a duplicate name case-sensitively", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListGroups", mock.Anything).Return([]*directory.Group{
			{ID: "g-1", Name: "engineering"},
		}, nil)
		store.On("FindSuperAdmin", mock.Anything).Return(superAdmin, nil)
		store.On("CreateGroup", mock.Anything, mock.AnythingOfType("*directory.Group")).Return(nil)
		store.On("ListUsersByIDs", mock.Anything, []string{}).Return([]*directory.User{}, nil)

		// Different case is a different name.
		_, err := newTestService(store).CreateGroup(ctx, &GroupResource{DisplayName: "Engineering"})
		require.NoError(t, err)

		_, err = newTestService(store).CreateGroup(ctx, &GroupResource{DisplayName: "engineering"})
		assertSCIMError(t, err, http.StatusConflict, TypeUniqueness)
	})

	t.Run("rejects a missing displayName", func(t *testing.T) {
		store := &mockStore{}
		_, err := newTestService(store).CreateGroup(ctx, &GroupResource{})
		assertSCIMError(t, err, http.StatusBadRequest, TypeInvalidValue)
	})
}

func TestServicePatchGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("membership operations stage into one write", func(t *testing.T) {
		store := &mockStore{}
		group := &directory.Group{ID: "g-1", Name: "Engineering", UserIDs: []string{"u-1", "u-2"}}
		store.On("FindGroupByID", mock.Anything, "g-1").Return(group, nil).Once()

		var update directory.GroupUpdate
		store.On("UpdateGroup", mock.Anything, "g-1", mock.AnythingOfType("directory.GroupUpdate")).
			Run(func(args mock.Arguments) { update = args.Get(2).(directory.GroupUpdate) }).
			Return(nil).Once()
		updated := &directory.Group{ID: "g-1", Name: "Engineering", UserIDs: []string{"u-2", "u-3"}}
		store.On("FindGroupByID", mock.Anything, "g-1").Return(updated, nil)
		store.On("ListUsersByIDs", mock.Anything, mock.Anything).Return([]*directory.User{}, nil)

		_, err := newTestService(store).PatchGroup(ctx, "g-1", &PatchRequest{Operations: []PatchOperation{
			{Op: "add", Path: "members", Value: []interface{}{map[string]interface{}{"value": "u-3"}}},
			{Op: "remove", Path: `members[value eq "u-1"]`},
		}})
		require.NoError(t, err)

		require.NotNil(t, update.UserIDs)
		assert.Equal(t, []string{"u-2", "u-3"}, *update.UserIDs)
		assert.Nil(t, update.Name)
		store.AssertNumberOfCalls(t, "UpdateGroup", 1)
	})

	t.Run("a rename and a membership change are separate writes", func(t *testing.T) {
		store := &mockStore{}
		group := &directory.Group{ID: "g-1", Name: "Old", UserIDs: []string{"u-1"}}
		store.On("FindGroupByID", mock.Anything, "g-1").Return(group, nil).Once()
		store.On("ListGroups", mock.Anything).Return([]*directory.Group{group}, nil)

		var updates []directory.GroupUpdate
		store.On("UpdateGroup", mock.Anything, "g-1", mock.AnythingOfType("directory.GroupUpdate")).
			Run(func(args mock.Arguments) { updates = append(updates, args.Get(2).(directory.GroupUpdate)) }).
			Return(nil)
		store.On("FindGroupByID", mock.Anything, "g-1").Return(group, nil)
		store.On("ListUsersByIDs", mock.Anything, mock.Anything).Return([]*directory.User{}, nil)

		_, err := newTestService(store).PatchGroup(ctx, "g-1", &PatchRequest{Operations: []PatchOperation{
			{Op: "replace", Path: "displayName", Value: "New"},
			{Op: "replace", Path: "members", Value: []interface{}{map[string]interface{}{"value": "u-9"}}},
		}})
		require.NoError(t, err)

		require.Len(t, updates, 2)
		assert.NotNil(t, updates[0].Name)
		assert.Nil(t, updates[0].UserIDs)
		assert.NotNil(t, updates[1].UserIDs)
		assert.Nil(t, updates[1].Name)
	})

	t.Run("a no-op patch performs zero writes", func(t *testing.T) {
		store := &mockStore{}
		group := &directory.Group{ID: "g-1", Name: "Engineering", UserIDs: []string{"u-1"}}
		store.On("FindGroupByID", mock.Anything, "g-1").Return(group, nil)
		store.On("ListUsersByIDs", mock.Anything, []string{"u-1"}).Return([]*directory.User{
			{ID: "u-1", Email: "one@example.com"},
		}, nil)

		res, err := newTestService(store).PatchGroup(ctx, "g-1", &PatchRequest{Operations: []PatchOperation{
			{Op: "add", Path: "members", Value: []interface{}{map[string]interface{}{"value": "u-1"}}},
		}})
		require.NoError(t, err)

		assert.Equal(t, "Engineering", res.DisplayName)
		store.AssertNotCalled(t, "UpdateGroup", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestServiceListGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by displayName with a case-sensitive scan", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListGroups", mock.Anything).Return([]*directory.Group{
			{ID: "g-1", Name: "Engineering", UserIDs: []string{"u-1"}},
			{ID: "g-2", Name: "engineering"},
			{ID: "g-3", Name: "Sales"},
		}, nil)
		store.On("ListUsersByIDs", mock.Anything, []string{"u-1"}).Return([]*directory.User{
			{ID: "u-1", Email: "one@example.com"},
		}, nil)

		list, err := newTestService(store).ListGroups(ctx,
			&Filter{Attribute: "displayName", Value: "Engineering"},
			Page{StartIndex: 1, Count: DefaultPageSize})
		require.NoError(t, err)

		assert.Equal(t, 1, list.TotalResults)
		groups := list.Resources.([]*GroupResource)
		require.Len(t, groups, 1)
		assert.Equal(t, "Engineering", groups[0].DisplayName)
		assert.Equal(t, "one@example.com", groups[0].Members[0].Display)
	})

	t.Run("resolves members across the page in one query", func(t *testing.T) {
		store := &mockStore{}
		store.On("ListGroups", mock.Anything).Return([]*directory.Group{
			{ID: "g-1", Name: "A", UserIDs: []string{"u-1", "u-2"}},
			{ID: "g-2", Name: "B", UserIDs: []string{"u-2", "u-3"}},
		}, nil)
		store.On("ListUsersByIDs", mock.Anything, []string{"u-1", "u-2", "u-3"}).Return([]*directory.User{
			{ID: "u-1", Email: "one@example.com"},
			{ID: "u-2", Email: "two@example.com"},
			{ID: "u-3", Email: "three@example.com"},
		}, nil)

		list, err := newTestService(store).ListGroups(ctx, nil, Page{StartIndex: 1, Count: DefaultPageSize})
		require.NoError(t, err)

		assert.Equal(t, 2, list.TotalResults)
		store.AssertNumberOfCalls(t, "ListUsersByIDs", 1)
	})
}
