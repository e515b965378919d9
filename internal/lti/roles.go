// Package lti maps the roles of a Learning Tools Interoperability launch onto
// the view modes of the graph explorer.
package lti

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role is the effective role of a launching user. Higher roles win when a
// launch carries several.
type Role int

const (
	RoleUnknown Role = iota
	RoleStudent
	RoleInstructor
	RoleAdministrator
)

func (r Role) String() string {
	switch r {
	case RoleAdministrator:
		return "Administrator"
	case RoleInstructor:
		return "Instructor"
	case RoleStudent:
		return "Student"
	default:
		return "Unknown"
	}
}

// ViewMode is the front-end mode a launch is redirected to.
type ViewMode string

const (
	ViewStudent ViewMode = "student"
	ViewEditor  ViewMode = "editor"
)

// UnknownRolePolicy decides what happens to launches without a recognised role.
type UnknownRolePolicy string

const (
	UnknownAsStudent UnknownRolePolicy = "student"
	UnknownAsEditor  UnknownRolePolicy = "editor"
	UnknownRejected  UnknownRolePolicy = "reject"
)

// ParsePolicy validates a policy name. An empty name selects UnknownAsStudent.
func ParsePolicy(name string) (UnknownRolePolicy, error) {
	switch p := UnknownRolePolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return UnknownAsStudent, nil
	case UnknownAsStudent, UnknownAsEditor, UnknownRejected:
		return p, nil
	default:
		return "", fmt.Errorf("unknown role policy %q", name)
	}
}

// Role vocabularies, lower-cased. Both the LTI 1.1 URNs with their short forms
// and the LIS v2 membership URIs are recognised.
var (
	administratorRoles = set(
		"urn:lti:sysrole:ims/lis/sysadmin",
		"urn:lti:sysrole:ims/lis/administrator",
		"urn:lti:instrole:ims/lis/administrator",
		"http://purl.imsglobal.org/vocab/lis/v2/system/person#sysadmin",
		"http://purl.imsglobal.org/vocab/lis/v2/system/person#administrator",
		"http://purl.imsglobal.org/vocab/lis/v2/institution/person#administrator",
	)
	instructorRoles = set(
		"instructor",
		"urn:lti:role:ims/lis/instructor",
		"urn:lti:role:ims/lis/contentdeveloper",
		"urn:lti:role:ims/lis/teachingassistant",
		"urn:lti:role:ims/lis/mentor",
		"urn:lti:instrole:ims/lis/instructor",
		"http://purl.imsglobal.org/vocab/lis/v2/membership#instructor",
		"http://purl.imsglobal.org/vocab/lis/v2/membership#contentdeveloper",
		"http://purl.imsglobal.org/vocab/lis/v2/membership#mentor",
		"http://purl.imsglobal.org/vocab/lis/v2/membership/instructor#teachingassistant",
	)
	studentRoles = set(
		"learner",
		"student",
		"urn:lti:role:ims/lis/learner",
		"urn:lti:role:ims/lis/student",
		"urn:lti:role:ims/lis/mentee",
		"urn:lti:role:ims/lis/member",
		"urn:lti:role:ims/lis/prospectivemember",
		"urn:lti:instrole:ims/lis/student",
		"http://purl.imsglobal.org/vocab/lis/v2/membership#learner",
		"http://purl.imsglobal.org/vocab/lis/v2/membership#member",
	)
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// SplitRoles lower-cases, trims and de-duplicates the comma separated role
// lists of a launch. The result is sorted.
func SplitRoles(lists ...string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, raw := range strings.Split(list, ",") {
			role := strings.ToLower(strings.TrimSpace(raw))
			if role == "" {
				continue
			}
			if _, dup := seen[role]; dup {
				continue
			}
			seen[role] = struct{}{}
			out = append(out, role)
		}
	}
	sort.Strings(out)
	return out
}

// Classify returns the highest role found in the `roles` and `ext_roles`
// launch parameters.
func Classify(roles, extRoles string) Role {
	best := RoleUnknown
	for _, role := range SplitRoles(roles, extRoles) {
		switch {
		case has(administratorRoles, role):
			return RoleAdministrator
		case has(instructorRoles, role):
			best = max(best, RoleInstructor)
		case has(studentRoles, role):
			best = max(best, RoleStudent)
		}
	}
	return best
}

func has(m map[string]struct{}, key string) bool {
	_, ok := m[key]
	return ok
}

// ErrRejected is returned by Decide when the policy refuses unknown roles.
var ErrRejected = errors.New("launch has no recognised role")

// Decide maps role onto a view mode. Administrators and instructors edit,
// students read; unknown roles follow policy.
func Decide(role Role, policy UnknownRolePolicy) (ViewMode, error) {
	switch role {
	case RoleAdministrator, RoleInstructor:
		return ViewEditor, nil
	case RoleStudent:
		return ViewStudent, nil
	}
	switch policy {
	case UnknownAsEditor:
		return ViewEditor, nil
	case UnknownRejected:
		return "", ErrRejected
	default:
		return ViewStudent, nil
	}
}
