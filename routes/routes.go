package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/Dosada05/campus-games/docs"
	"github.com/Dosada05/campus-games/handlers"
	"github.com/Dosada05/campus-games/middleware"
)

type Handlers struct {
	Auth      *handlers.AuthHandler
	Users     *handlers.UserHandler
	Games     *handlers.GameHandler
	Teams     *handlers.TeamHandler
	Donations *handlers.DonationHandler
	Dashboard *handlers.DashboardHandler
	WebSocket *handlers.WebSocketHandler
	Fallback  *handlers.FallbackHandler
}

// SetupRoutes mounts every endpoint on router. Authorization is decided by the gateway,
// so routes only carry the session token into the request context.
func SetupRoutes(router chi.Router, h Handlers, allowedOrigins []string) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.SessionToken)

	router.NotFound(h.Fallback.NotFound)
	router.MethodNotAllowed(h.Fallback.MethodNotAllowed)

	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/me", h.Auth.Me)
	})

	router.Route("/users", func(r chi.Router) {
		r.Get("/", h.Users.ListUsers)
		r.Route("/me", func(r chi.Router) {
			r.Patch("/", h.Users.UpdateProfile)
			r.Put("/password", h.Users.ChangePassword)
			r.Post("/photo", h.Users.UploadPhoto)
		})
		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", h.Users.GetUser)
			r.Delete("/", h.Users.DeleteUser)
		})
	})

	router.Route("/games", func(r chi.Router) {
		r.Get("/", h.Games.ListGames)
		r.Post("/", h.Games.CreateGame)
		r.Route("/{gameID}", func(r chi.Router) {
			r.Get("/", h.Games.GetGame)
			r.Put("/", h.Games.UpdateGame)
			r.Delete("/", h.Games.DeleteGame)
			r.Post("/image", h.Games.UploadImage)
		})
	})

	router.Route("/teams", func(r chi.Router) {
		r.Get("/", h.Teams.ListTeams)
		r.Post("/", h.Teams.CreateTeam)
		r.Route("/{teamID}", func(r chi.Router) {
			r.Get("/", h.Teams.GetTeam)
			r.Patch("/", h.Teams.RenameTeam)
			r.Delete("/", h.Teams.DeleteTeam)
			r.Post("/join", h.Teams.JoinTeam)
			r.Post("/leave", h.Teams.LeaveTeam)
			r.Delete("/members/{userID}", h.Teams.RemoveMember)
		})
	})
	router.Post("/memberships/reassign", h.Teams.ReassignMembership)

	router.Route("/donations", func(r chi.Router) {
		r.Get("/", h.Donations.ListDonations)
		r.Post("/", h.Donations.RecordDonation)
	})

	router.Get("/dashboard", h.Dashboard.GetStats)

	router.Route("/ws", func(r chi.Router) {
		r.Get("/teams", h.WebSocket.ServeTeams)
		r.Get("/teams/{teamID}", h.WebSocket.ServeTeam)
	})

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
