package access

import (
	"time"
)

// Group is a named set of usernames owned by a single owner.
type Group struct {
	GroupName string   `json:"groupName" bson:"groupName"`
	Users     []string `json:"users" bson:"users"`
}

// HasMember reports whether username belongs to the group.
func (g Group) HasMember(username string) bool {
	return contains(g.Users, username)
}

// Owner is the access-controlled account whose assistant visitors reach.
type Owner struct {
	ID       string `json:"id" bson:"id"`
	Username string `json:"username" bson:"username"`
	Name     string `json:"name" bson:"name"`
	Email    string `json:"email" bson:"email"`

	AccessRestricted bool     `json:"accessRestricted" bson:"accessRestricted"`
	AccessList       []string `json:"accessList" bson:"accessList"`
	Groups           []Group  `json:"groups" bson:"groups"`
	GroupsWithAccess []string `json:"groupsWithAccess" bson:"groupsWithAccess"`

	// DirectGrants holds usernames granted individually. Nil means the record
	// predates provenance tracking.
	DirectGrants []string `json:"directGrants" bson:"directGrants"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy. Nil slices stay nil.
func (o *Owner) Clone() *Owner {
	if o == nil {
		return nil
	}
	c := *o
	c.AccessList = cloneStrings(o.AccessList)
	c.GroupsWithAccess = cloneStrings(o.GroupsWithAccess)
	c.DirectGrants = cloneStrings(o.DirectGrants)
	if o.Groups != nil {
		c.Groups = make([]Group, len(o.Groups))
		for i, g := range o.Groups {
			c.Groups[i] = Group{GroupName: g.GroupName, Users: cloneStrings(g.Users)}
		}
	}
	return &c
}

// Account returns the public directory projection of the owner.
func (o *Owner) Account() Account {
	return Account{ID: o.ID, Username: o.Username, Name: o.Name, Email: o.Email}
}

// State returns the access fields of the owner.
func (o *Owner) State() State {
	groups := o.Groups
	if groups == nil {
		groups = []Group{}
	}
	return State{
		AccessList:       nonNil(o.AccessList),
		Groups:           groups,
		GroupsWithAccess: nonNil(o.GroupsWithAccess),
		AccessRestricted: o.AccessRestricted,
	}
}

// Account is the directory view of an owner used for search and lookups.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// Registration holds the fields needed to create an owner record.
type Registration struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// GroupAccess is returned by group grant and revoke operations.
type GroupAccess struct {
	AccessList       []string `json:"accessList"`
	GroupsWithAccess []string `json:"groupsWithAccess"`
}

// State is the full access configuration of one owner as shown to admins.
type State struct {
	AccessList       []string `json:"accessList"`
	Groups           []Group  `json:"groups"`
	GroupsWithAccess []string `json:"groupsWithAccess"`
	AccessRestricted bool     `json:"accessRestricted"`
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
