package roles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlearnhq/courseware-backend/pkg/coursekey"
	"github.com/openlearnhq/courseware-backend/pkg/db"
	"github.com/openlearnhq/courseware-backend/pkg/db/models"
	"github.com/openlearnhq/courseware-backend/pkg/enums"
	pkgerrors "github.com/openlearnhq/courseware-backend/pkg/errors"
)

type roleRepository interface {
	Create(ctx context.Context, row *models.CourseAccessRole) error
	Delete(ctx context.Context, userID uuid.UUID, role enums.CourseRole, org string, courseID *coursekey.CourseKey) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CourseAccessRole, error)
	ListByCourse(ctx context.Context, courseID coursekey.CourseKey) ([]models.CourseAccessRole, error)
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// RoleDTO is the wire shape of one grant.
type RoleDTO struct {
	ID       uuid.UUID        `json:"id"`
	UserID   uuid.UUID        `json:"user_id"`
	Role     enums.CourseRole `json:"role"`
	Org      string           `json:"org,omitempty"`
	CourseID string           `json:"course_id,omitempty"`
}

// GrantParams identifies one grant by its full scope tuple.
type GrantParams struct {
	UserID   uuid.UUID
	Role     enums.CourseRole
	Org      string
	CourseID *coursekey.CourseKey
}

// AccessScope summarizes where a user holds staff-like grants. Listings use
// it to reverse grants into course keys.
type AccessScope struct {
	Global    bool
	Orgs      []string
	CourseIDs []coursekey.CourseKey
}

// ServiceParams groups dependencies for the role service.
type ServiceParams struct {
	Repo roleRepository
}

// Service manages role grants and answers staff and beta-tester checks.
type Service interface {
	Grant(ctx context.Context, params GrantParams) (RoleDTO, error)
	Revoke(ctx context.Context, params GrantParams) error
	RolesForUser(ctx context.Context, userID uuid.UUID) ([]RoleDTO, error)
	RolesForCourse(ctx context.Context, courseID coursekey.CourseKey) ([]RoleDTO, error)
	HasStaffAccess(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error)
	HasInstructorAccess(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error)
	IsBetaTester(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error)
	StaffScope(ctx context.Context, userID uuid.UUID) (AccessScope, error)
}

type service struct {
	repo roleRepository
}

// NewService builds a role service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "role repo is required")
	}
	return &service{repo: params.Repo}, nil
}

// Grant records one role grant. Course-scoped roles carry the course's org so
// org listings can pick them up without a join.
func (s *service) Grant(ctx context.Context, params GrantParams) (RoleDTO, error) {
	row, err := s.buildRow(params)
	if err != nil {
		return RoleDTO{}, err
	}
	if err := s.repo.Create(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "uq_access_role") {
			return RoleDTO{}, pkgerrors.New(pkgerrors.CodeDuplicateKey, "role already granted")
		}
		return RoleDTO{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant role")
	}
	return toRoleDTO(*row), nil
}

// Revoke removes one grant. A grant that does not exist is NotFound.
func (s *service) Revoke(ctx context.Context, params GrantParams) error {
	row, err := s.buildRow(params)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, row.UserID, row.Role, row.Org, row.CourseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "role grant not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke role")
	}
	return nil
}

func (s *service) buildRow(params GrantParams) (*models.CourseAccessRole, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !params.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown role")
	}

	row := models.CourseAccessRole{
		UserID:   params.UserID,
		Role:     params.Role,
		Org:      params.Org,
		CourseID: params.CourseID,
	}
	switch {
	case params.Role == enums.RoleGlobalStaff:
		if params.Org != "" || params.CourseID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "global_staff grants take no org or course")
		}
	case params.Role.IsOrgWide():
		if params.Org == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "org-wide grants require an org")
		}
		if params.CourseID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "org-wide grants take no course")
		}
	default:
		if params.CourseID == nil || params.CourseID.IsZero() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "course-scoped grants require a course")
		}
		if params.Org != "" && params.Org != params.CourseID.Org() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "org does not match the course key")
		}
		row.Org = params.CourseID.Org()
	}
	return &row, nil
}

// RolesForUser lists a user's grants.
func (s *service) RolesForUser(ctx context.Context, userID uuid.UUID) ([]RoleDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list roles")
	}
	return toRoleDTOs(rows), nil
}

// RolesForCourse lists the grants scoped to one course run.
func (s *service) RolesForCourse(ctx context.Context, courseID coursekey.CourseKey) ([]RoleDTO, error) {
	rows, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list course roles")
	}
	return toRoleDTOs(rows), nil
}

// HasStaffAccess reports whether the user holds any staff-like grant that
// covers the course: the global staff bit, a global_staff grant, an org-wide
// grant on the course's org, or a course-scoped staff role.
func (s *service) HasStaffAccess(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error) {
	return s.hasRole(ctx, userID, courseID, func(role enums.CourseRole) bool {
		return role.IsStaffLike()
	})
}

// HasInstructorAccess reports whether the user may manage the course run.
func (s *service) HasInstructorAccess(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error) {
	return s.hasRole(ctx, userID, courseID, func(role enums.CourseRole) bool {
		return role.IsInstructorLike()
	})
}

// IsBetaTester reports whether the user holds a beta_tester grant on the
// course. Global staff are not implicitly beta testers; they pass the start
// check through the staff override instead.
func (s *service) IsBetaTester(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey) (bool, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list roles")
	}
	for _, row := range rows {
		if row.Role != enums.RoleBetaTester {
			continue
		}
		if row.CourseID != nil && row.CourseID.Equal(courseID) {
			return true, nil
		}
	}
	return false, nil
}

// StaffScope reverses the user's staff-like grants into the orgs and course
// keys they cover.
func (s *service) StaffScope(ctx context.Context, userID uuid.UUID) (AccessScope, error) {
	var scope AccessScope

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return AccessScope{}, err
	}
	if user != nil && user.GlobalStaff {
		scope.Global = true
	}

	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return AccessScope{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list roles")
	}
	seenOrg := make(map[string]bool)
	seenCourse := make(map[string]bool)
	for _, row := range rows {
		if !row.Role.IsStaffLike() {
			continue
		}
		switch {
		case row.Role == enums.RoleGlobalStaff:
			scope.Global = true
		case row.Role.IsOrgWide():
			if !seenOrg[row.Org] {
				seenOrg[row.Org] = true
				scope.Orgs = append(scope.Orgs, row.Org)
			}
		case row.CourseID != nil:
			key := row.CourseID.String()
			if !seenCourse[key] {
				seenCourse[key] = true
				scope.CourseIDs = append(scope.CourseIDs, *row.CourseID)
			}
		}
	}
	return scope, nil
}

func (s *service) hasRole(ctx context.Context, userID uuid.UUID, courseID coursekey.CourseKey, match func(enums.CourseRole) bool) (bool, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return false, err
	}
	if user != nil && user.GlobalStaff {
		return true, nil
	}

	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list roles")
	}
	for _, row := range rows {
		if !match(row.Role) {
			continue
		}
		switch {
		case row.Role == enums.RoleGlobalStaff:
			return true, nil
		case row.Role.IsOrgWide():
			if row.Org == courseID.Org() {
				return true, nil
			}
		case row.CourseID != nil:
			if row.CourseID.Equal(courseID) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func toRoleDTO(row models.CourseAccessRole) RoleDTO {
	dto := RoleDTO{
		ID:     row.ID,
		UserID: row.UserID,
		Role:   row.Role,
		Org:    row.Org,
	}
	if row.CourseID != nil {
		dto.CourseID = row.CourseID.String()
	}
	return dto
}

func toRoleDTOs(rows []models.CourseAccessRole) []RoleDTO {
	out := make([]RoleDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRoleDTO(row))
	}
	return out
}
