package access

// The methods in this file mutate an Owner in memory and enforce the
// preconditions of each operation. They never perform I/O; Service runs them
// inside Repository.Update.

// Authorizes reports whether visitor may open the owner's assistant.
func (o *Owner) Authorizes(visitor string) bool {
	if !o.AccessRestricted {
		return true
	}
	if visitor == o.Username {
		return true
	}
	return contains(o.AccessList, visitor)
}

func (o *Owner) grantIndividual(username string) error {
	if contains(o.AccessList, username) {
		return newError(KindAlreadyGranted, "user %s already in access list", username)
	}
	o.AccessList = append(o.AccessList, username)
	if o.DirectGrants != nil {
		o.DirectGrants = appendUnique(o.DirectGrants, username)
	}
	return nil
}

func (o *Owner) revokeIndividual(username string) error {
	if !contains(o.AccessList, username) {
		return newError(KindNotGranted, "user %s not in access list", username)
	}
	o.AccessList = remove(o.AccessList, username)
	if o.DirectGrants != nil {
		o.DirectGrants = remove(o.DirectGrants, username)
	}
	return nil
}

func (o *Owner) group(name string) (int, bool) {
	for i, g := range o.Groups {
		if g.GroupName == name {
			return i, true
		}
	}
	return -1, false
}

func (o *Owner) createGroup(name string) error {
	if _, ok := o.group(name); ok {
		return newError(KindDuplicateGroup, "group %s already exists", name)
	}
	o.Groups = append(o.Groups, Group{GroupName: name, Users: []string{}})
	return nil
}

// deleteGroup leaves groupsWithAccess untouched; a stale entry is dropped by
// a later revokeGroup.
func (o *Owner) deleteGroup(name string) error {
	i, ok := o.group(name)
	if !ok {
		return newError(KindNotFound, "group %s not found", name)
	}
	o.Groups = append(o.Groups[:i], o.Groups[i+1:]...)
	return nil
}

func (o *Owner) addGroupMember(name, username string) (Group, error) {
	i, ok := o.group(name)
	if !ok {
		return Group{}, newError(KindNotFound, "group %s not found", name)
	}
	if o.Groups[i].HasMember(username) {
		return Group{}, newError(KindAlreadyMember, "user %s already in group %s", username, name)
	}
	o.Groups[i].Users = append(o.Groups[i].Users, username)
	return o.Groups[i], nil
}

func (o *Owner) removeGroupMember(name, username string) (Group, error) {
	i, ok := o.group(name)
	if !ok {
		return Group{}, newError(KindNotFound, "group %s not found", name)
	}
	if !o.Groups[i].HasMember(username) {
		return Group{}, newError(KindNotMember, "user %s not in group %s", username, name)
	}
	o.Groups[i].Users = remove(o.Groups[i].Users, username)
	return o.Groups[i], nil
}

func (o *Owner) grantGroup(name string) error {
	i, ok := o.group(name)
	if !ok {
		return newError(KindNotFound, "group %s not found", name)
	}
	if contains(o.GroupsWithAccess, name) {
		return newError(KindAlreadyGranted, "group %s already has access", name)
	}
	o.GroupsWithAccess = append(o.GroupsWithAccess, name)
	for _, u := range o.Groups[i].Users {
		o.AccessList = appendUnique(o.AccessList, u)
	}
	return nil
}

// revokeGroup removes the group from groupsWithAccess and drops the members it
// alone contributed. A member stays when another accessible group still
// contains it or when it was granted directly.
func (o *Owner) revokeGroup(name string) error {
	if !contains(o.GroupsWithAccess, name) {
		return newError(KindNotGranted, "group %s does not have access", name)
	}
	o.GroupsWithAccess = remove(o.GroupsWithAccess, name)

	i, ok := o.group(name)
	if !ok {
		return nil
	}
	covered := o.coveredByGroups()
	for _, u := range o.Groups[i].Users {
		if covered[u] || contains(o.DirectGrants, u) {
			continue
		}
		o.AccessList = remove(o.AccessList, u)
	}
	return nil
}

// syncFromGroups recomputes accessList as directGrants plus the members of
// every group in groupsWithAccess. Retained entries keep their order. Legacy
// records without provenance only gain entries.
func (o *Owner) syncFromGroups(name string) error {
	if _, ok := o.group(name); !ok {
		return newError(KindNotFound, "group %s not found", name)
	}
	if !contains(o.GroupsWithAccess, name) {
		return nil
	}

	covered := o.coveredByGroups()
	next := make([]string, 0, len(o.AccessList)+len(covered))
	for _, u := range o.AccessList {
		if o.DirectGrants == nil || covered[u] || contains(o.DirectGrants, u) {
			next = append(next, u)
		}
	}
	for _, g := range o.Groups {
		if !contains(o.GroupsWithAccess, g.GroupName) {
			continue
		}
		for _, u := range g.Users {
			next = appendUnique(next, u)
		}
	}
	o.AccessList = next
	return nil
}

// coveredByGroups returns the usernames that belong to at least one group
// currently in groupsWithAccess.
func (o *Owner) coveredByGroups() map[string]bool {
	covered := make(map[string]bool)
	for _, g := range o.Groups {
		if !contains(o.GroupsWithAccess, g.GroupName) {
			continue
		}
		for _, u := range g.Users {
			covered[u] = true
		}
	}
	return covered
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func appendUnique(s []string, v string) []string {
	if contains(s, v) {
		return s
	}
	return append(s, v)
}

func remove(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
