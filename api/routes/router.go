package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openlearnhq/courseware-backend/api/controllers"
	"github.com/openlearnhq/courseware-backend/api/middleware"
	"github.com/openlearnhq/courseware-backend/internal/access"
	"github.com/openlearnhq/courseware-backend/internal/courseruns"
	"github.com/openlearnhq/courseware-backend/internal/enrollment"
	"github.com/openlearnhq/courseware-backend/internal/gating"
	"github.com/openlearnhq/courseware-backend/internal/masquerade"
	"github.com/openlearnhq/courseware-backend/internal/modes"
	"github.com/openlearnhq/courseware-backend/internal/modulestore"
	"github.com/openlearnhq/courseware-backend/internal/partitions"
	"github.com/openlearnhq/courseware-backend/internal/roles"
	"github.com/openlearnhq/courseware-backend/internal/schedules"
	"github.com/openlearnhq/courseware-backend/internal/users"
	"github.com/openlearnhq/courseware-backend/pkg/config"
	"github.com/openlearnhq/courseware-backend/pkg/logger"
)

// Params bundles everything the router mounts. Readiness holds the pingable
// dependencies surfaced on /health/ready.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	Registry    *prometheus.Registry
	Readiness   map[string]controllers.Pinger
	RateLimiter middleware.RateLimiterStore

	Users       users.Service
	Courses     courseruns.Service
	Blocks      modulestore.Service
	Modes       modes.Service
	Enrollments enrollment.Service
	Schedules   schedules.Service
	Gating      gating.Service
	Partitions  partitions.Service
	Roles       roles.Service
	Masquerade  masquerade.Service
	Access      access.Service
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg))
	r.Use(middleware.RequestID(logg))
	r.Use(middleware.Logging(logg))
	r.Use(middleware.CORS())

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginAccountLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterAccountLimit,
	)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, p.RateLimiter, logg)).
			Post("/register", controllers.AuthRegister(p.Users, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, p.RateLimiter, logg)).
			Post("/login", controllers.AuthLogin(p.Users, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/auth/me", controllers.Me(p.Users, logg))

		r.Route("/courses", func(r chi.Router) {
			r.With(middleware.RequireGlobalStaff(logg)).
				Post("/", controllers.CourseCreate(p.Courses, logg))
			r.Get("/", controllers.CourseList(p.Courses, p.Roles, logg))

			r.Route("/{courseKey}", func(r chi.Router) {
				r.Get("/", controllers.CourseGet(p.Courses, p.Roles, logg))
				r.Patch("/", controllers.CourseUpdate(p.Courses, p.Roles, logg))
				r.Delete("/", controllers.CourseDelete(p.Courses, p.Roles, logg))
				r.Post("/rerun", controllers.CourseRerun(p.Courses, p.Roles, logg))
				r.Get("/rerun-state", controllers.CourseRerunState(p.Courses, p.Roles, logg))

				r.Get("/outline", controllers.CourseOutline(p.Access, p.Blocks, logg))
				r.Post("/blocks", controllers.BlockCreate(p.Blocks, p.Roles, logg))

				r.Get("/modes", controllers.ModeList(p.Modes, logg))
				r.Put("/modes", controllers.ModeUpsert(p.Modes, p.Roles, logg))
				r.Delete("/modes", controllers.ModeDelete(p.Modes, p.Roles, logg))

				r.Get("/schedule", controllers.ScheduleGet(p.Schedules, p.Roles, logg))
				r.Post("/schedule/rebase", controllers.ScheduleRebase(p.Schedules, p.Roles, logg))

				r.Post("/masquerade", controllers.MasqueradeSet(p.Masquerade, p.Roles, logg))
				r.Get("/masquerade", controllers.MasqueradeGet(p.Masquerade, p.Roles, logg))
				r.Delete("/masquerade", controllers.MasqueradeClear(p.Masquerade, p.Roles, logg))

				r.Get("/roles", controllers.RoleListForCourse(p.Roles, logg))

				r.Get("/partitions", controllers.PartitionList(p.Partitions, p.Roles, logg))
				r.Post("/partitions", controllers.PartitionCreate(p.Partitions, p.Roles, logg))
				r.Post("/partitions/{partitionId}/assign", controllers.PartitionAssign(p.Partitions, p.Roles, logg))

				r.Get("/gating", controllers.GatingResolve(p.Gating, p.Roles, cfg.App.SiteName, logg))
			})
		})

		r.Get("/xblock/{usageKey}", controllers.XBlockRender(p.Access, p.Blocks, logg))

		r.Route("/blocks/{usageKey}", func(r chi.Router) {
			r.Patch("/", controllers.BlockUpdate(p.Blocks, p.Roles, logg))
			r.Delete("/", controllers.BlockDelete(p.Blocks, p.Roles, logg))
			r.Get("/children", controllers.BlockChildren(p.Blocks, logg))
		})

		r.Route("/enrollments", func(r chi.Router) {
			r.Get("/", controllers.EnrollmentList(p.Enrollments, logg))
			r.Post("/", controllers.Enroll(p.Enrollments, p.Roles, logg))

			r.Route("/{courseKey}", func(r chi.Router) {
				r.Get("/", controllers.EnrollmentGet(p.Enrollments, p.Roles, logg))
				r.Patch("/", controllers.EnrollmentChangeMode(p.Enrollments, p.Roles, logg))
				r.Delete("/", controllers.Unenroll(p.Enrollments, p.Roles, logg))
				r.Get("/attributes", controllers.EnrollmentAttributes(p.Enrollments, p.Roles, logg))
				r.Put("/attributes", controllers.EnrollmentSetAttributes(p.Enrollments, p.Roles, logg))
			})
		})

		r.Route("/roles", func(r chi.Router) {
			r.Post("/", controllers.RoleGrant(p.Roles, logg))
			r.Delete("/", controllers.RoleRevoke(p.Roles, logg))
			r.Get("/mine", controllers.RoleListMine(p.Roles, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireGlobalStaff(logg))

			r.Get("/gating/content", controllers.GatingListContent(p.Gating, logg))
			r.Post("/gating/content", controllers.GatingSetContent(p.Gating, logg))
			r.Get("/gating/duration", controllers.GatingListDurationLimit(p.Gating, logg))
			r.Post("/gating/duration", controllers.GatingSetDurationLimit(p.Gating, logg))

			r.Get("/reruns/pending", controllers.CourseRerunsPending(p.Courses, logg))
		})
	})

	return r
}
