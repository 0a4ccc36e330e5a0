package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshOwner() *Owner {
	return &Owner{
		Username:         "olivia",
		AccessList:       []string{},
		Groups:           []Group{},
		GroupsWithAccess: []string{},
		DirectGrants:     []string{},
	}
}

func TestAuthorizes(t *testing.T) {
	o := freshOwner()
	o.AccessList = []string{"bob"}

	tests := []struct {
		name       string
		restricted bool
		visitor    string
		want       bool
	}{
		{"open mode admits anyone", false, "stranger", true},
		{"open mode admits empty visitor", false, "", true},
		{"owner always admitted", true, "olivia", true},
		{"listed visitor admitted", true, "bob", true},
		{"unlisted visitor denied", true, "stranger", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o.AccessRestricted = tt.restricted
			assert.Equal(t, tt.want, o.Authorizes(tt.visitor))
		})
	}
}

func TestGrantIndividual(t *testing.T) {
	o := freshOwner()
	require.NoError(t, o.grantIndividual("alice"))

	err := o.grantIndividual("alice")
	assert.True(t, errors.Is(err, ErrAlreadyGranted))
	assert.Equal(t, []string{"alice"}, o.AccessList)
	assert.Equal(t, []string{"alice"}, o.DirectGrants)
}

func TestGrantIndividual_LegacyRecordDoesNotTrackProvenance(t *testing.T) {
	o := freshOwner()
	o.DirectGrants = nil
	require.NoError(t, o.grantIndividual("alice"))
	assert.Nil(t, o.DirectGrants)
}

func TestRevokeIndividual(t *testing.T) {
	o := freshOwner()
	require.NoError(t, o.createGroup("eng"))
	_, err := o.addGroupMember("eng", "bob")
	require.NoError(t, err)
	require.NoError(t, o.grantGroup("eng"))

	// a group-covered user is still revoked directly
	require.NoError(t, o.revokeIndividual("bob"))
	assert.Empty(t, o.AccessList)

	err = o.revokeIndividual("bob")
	assert.True(t, errors.Is(err, ErrNotGranted))

	// and comes back on the next sync
	require.NoError(t, o.syncFromGroups("eng"))
	assert.Equal(t, []string{"bob"}, o.AccessList)
}

func TestGroupLifecycle(t *testing.T) {
	o := freshOwner()
	require.NoError(t, o.createGroup("eng"))
	assert.True(t, errors.Is(o.createGroup("eng"), ErrDuplicateGroup))

	g, err := o.addGroupMember("eng", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, g.Users)

	_, err = o.addGroupMember("eng", "bob")
	assert.True(t, errors.Is(err, ErrAlreadyMember))
	_, err = o.addGroupMember("ops", "bob")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = o.removeGroupMember("eng", "carol")
	assert.True(t, errors.Is(err, ErrNotMember))
	g, err = o.removeGroupMember("eng", "bob")
	require.NoError(t, err)
	assert.Empty(t, g.Users)

	require.NoError(t, o.deleteGroup("eng"))
	assert.True(t, errors.Is(o.deleteGroup("eng"), ErrNotFound))
	assert.Empty(t, o.Groups)
}

func TestMembershipChangesDoNotTouchAccessList(t *testing.T) {
	o := freshOwner()
	require.NoError(t, o.createGroup("eng"))
	require.NoError(t, o.grantGroup("eng"))

	_, err := o.addGroupMember("eng", "bob")
	require.NoError(t, err)
	assert.Empty(t, o.AccessList, "members are materialized only by sync")
}

func TestGrantGroup(t *testing.T) {
	o := freshOwner()
	require.NoError(t, o.grantIndividual("a"))
	require.NoError(t, o.createGroup("G"))
	for _, u := range []string{"a", "b", "c"} {
		_, err := o.addGroupMember("G", u)
		require.NoError(t, err)
	}

	require.NoError(t, o.grantGroup("G"))
	assert.Equal(t, []string{"a", "b", "c"}, o.AccessList, "union without duplicates")
	assert.Equal(t, []string{"G"}, o.GroupsWithAccess)

	assert.True(t, errors.Is(o.grantGroup("G"), ErrAlreadyGranted))
	assert.True(t, errors.Is(o.grantGroup("missing"), ErrNotFound))
}

func TestRevokeGroup_PartialCleanup(t *testing.T) {
	o := freshOwner()
	for name, users := range map[string][]string{"G1": {"a", "b"}, "G2": {"b", "c"}} {
		require.NoError(t, o.createGroup(name))
		for _, u := range users {
			_, err := o.addGroupMember(name, u)
			require.NoError(t, err)
		}
	}
	require.NoError(t, o.grantGroup("G1"))
	require.NoError(t, o.grantGroup("G2"))

	require.NoError(t, o.revokeGroup("G1"))
	assert.ElementsMatch(t, []string{"b", "c"}, o.AccessList)
	assert.Equal(t, []string{"G2"}, o.GroupsWithAccess)

	assert.True(t, errors.Is(o.revokeGroup("G1"), ErrNotGranted))
}

func TestRevokeGroup_KeepsDirectGrants(t *testing.T) {
	o := freshOwner()
	require.NoError(t, o.grantIndividual("a"))
	require.NoError(t, o.createGroup("G"))
	for _, u := range []string{"a", "b"} {
		_, err := o.addGroupMember("G", u)
		require.NoError(t, err)
	}
	require.NoError(t, o.grantGroup("G"))

	require.NoError(t, o.revokeGroup("G"))
	assert.Equal(t, []string{"a"}, o.AccessList)
}

func TestRevokeGroup_DeletedGroupDropsStaleEntry(t *testing.T) {
	o := freshOwner()
	require.NoError(t, o.createGroup("G"))
	_, err := o.addGroupMember("G", "a")
	require.NoError(t, err)
	require.NoError(t, o.grantGroup("G"))
	require.NoError(t, o.deleteGroup("G"))
	assert.Equal(t, []string{"G"}, o.GroupsWithAccess, "delete leaves the grant in place")

	require.NoError(t, o.revokeGroup("G"))
	assert.Empty(t, o.GroupsWithAccess)
	assert.Equal(t, []string{"a"}, o.AccessList, "no reconciliation without the group")
}

func TestSyncFromGroups(t *testing.T) {
	t.Run("drops former members and keeps direct grants", func(t *testing.T) {
		o := freshOwner()
		require.NoError(t, o.grantIndividual("d"))
		require.NoError(t, o.createGroup("G"))
		for _, u := range []string{"a", "b"} {
			_, err := o.addGroupMember("G", u)
			require.NoError(t, err)
		}
		require.NoError(t, o.grantGroup("G"))
		_, err := o.removeGroupMember("G", "a")
		require.NoError(t, err)
		_, err = o.addGroupMember("G", "c")
		require.NoError(t, err)

		require.NoError(t, o.syncFromGroups("G"))
		assert.Equal(t, []string{"d", "b", "c"}, o.AccessList)
	})

	t.Run("no-op for a group without access", func(t *testing.T) {
		o := freshOwner()
		require.NoError(t, o.grantIndividual("d"))
		require.NoError(t, o.createGroup("G"))
		_, err := o.addGroupMember("G", "a")
		require.NoError(t, err)

		require.NoError(t, o.syncFromGroups("G"))
		assert.Equal(t, []string{"d"}, o.AccessList)
	})

	t.Run("missing group", func(t *testing.T) {
		o := freshOwner()
		assert.True(t, errors.Is(o.syncFromGroups("G"), ErrNotFound))
	})

	t.Run("legacy record only adds", func(t *testing.T) {
		o := freshOwner()
		o.DirectGrants = nil
		o.AccessList = []string{"x"}
		require.NoError(t, o.createGroup("G"))
		_, err := o.addGroupMember("G", "a")
		require.NoError(t, err)
		require.NoError(t, o.grantGroup("G"))
		_, err = o.removeGroupMember("G", "a")
		require.NoError(t, err)

		require.NoError(t, o.syncFromGroups("G"))
		assert.Equal(t, []string{"x", "a"}, o.AccessList)
	})
}

func TestClone_IsDeep(t *testing.T) {
	o := freshOwner()
	require.NoError(t, o.createGroup("G"))
	_, err := o.addGroupMember("G", "a")
	require.NoError(t, err)

	c := o.Clone()
	c.Groups[0].Users[0] = "z"
	c.AccessList = append(c.AccessList, "z")

	assert.Equal(t, []string{"a"}, o.Groups[0].Users)
	assert.Empty(t, o.AccessList)

	legacy := &Owner{Username: "l"}
	assert.Nil(t, legacy.Clone().DirectGrants)
	assert.Nil(t, (*Owner)(nil).Clone())
}

func TestState_NeverNil(t *testing.T) {
	s := (&Owner{Username: "l"}).State()
	assert.NotNil(t, s.AccessList)
	assert.NotNil(t, s.Groups)
	assert.NotNil(t, s.GroupsWithAccess)
}
