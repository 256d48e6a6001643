package enums

import "fmt"

// CourseRole is a per-course (or per-org) grant that influences access
// decisions. Grants never imply data ownership.
type CourseRole string

const (
	RoleStaff            CourseRole = "staff"
	RoleInstructor       CourseRole = "instructor"
	RoleLimitedStaff     CourseRole = "limited_staff"
	RoleBetaTester       CourseRole = "beta_tester"
	RoleForumModerator   CourseRole = "forum_moderator"
	RoleForumAdmin       CourseRole = "forum_admin"
	RoleForumCommunityTA CourseRole = "forum_community_ta"
	RoleOrgStaff         CourseRole = "org_staff"
	RoleOrgInstructor    CourseRole = "org_instructor"
	RoleGlobalStaff      CourseRole = "global_staff"
)

var validCourseRoles = []CourseRole{
	RoleStaff,
	RoleInstructor,
	RoleLimitedStaff,
	RoleBetaTester,
	RoleForumModerator,
	RoleForumAdmin,
	RoleForumCommunityTA,
	RoleOrgStaff,
	RoleOrgInstructor,
	RoleGlobalStaff,
}

// staffLikeRoles grant blanket course access (subject to masquerade rules).
var staffLikeRoles = map[CourseRole]bool{
	RoleStaff:         true,
	RoleInstructor:    true,
	RoleLimitedStaff:  true,
	RoleOrgStaff:      true,
	RoleOrgInstructor: true,
	RoleGlobalStaff:   true,
}

// instructorRoles may manage course runs in the registry.
var instructorRoles = map[CourseRole]bool{
	RoleInstructor:    true,
	RoleOrgInstructor: true,
	RoleGlobalStaff:   true,
}

// String implements fmt.Stringer.
func (r CourseRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known CourseRole.
func (r CourseRole) IsValid() bool {
	for _, candidate := range validCourseRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaffLike reports whether the role grants blanket content access.
func (r CourseRole) IsStaffLike() bool {
	return staffLikeRoles[r]
}

// IsInstructorLike reports whether the role may mutate course runs.
func (r CourseRole) IsInstructorLike() bool {
	return instructorRoles[r]
}

// IsOrgWide reports whether the grant covers every run under the org.
func (r CourseRole) IsOrgWide() bool {
	return r == RoleOrgStaff || r == RoleOrgInstructor
}

// ParseCourseRole converts raw input into a CourseRole.
func ParseCourseRole(value string) (CourseRole, error) {
	for _, candidate := range validCourseRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid course role %q", value)
}
