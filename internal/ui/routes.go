package ui

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all UI routes on the given router.
func (ui *UI) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(ui.SessionMiddleware)

		// Public routes (no auth required).
		r.Get("/login", ui.HandleLogin)
		r.Post("/login", ui.HandleLoginPost)
		r.Get("/signup", ui.HandleSignup)
		r.Post("/signup", ui.HandleSignupPost)
		r.Get("/logout", ui.HandleLogout)

		// Protected routes (auth required).
		r.Group(func(r chi.Router) {
			r.Use(ui.AuthMiddleware)

			r.Get("/", ui.HandleIndex)
			r.Post("/analyze", ui.HandleAnalyze)
			r.Post("/extract", ui.HandleExtract)
			r.Get("/sample", ui.HandleSample)

			r.Route("/reports", func(r chi.Router) {
				r.Get("/", ui.HandleReportList)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", ui.HandleReport)
					r.Get("/download", ui.HandleReportDownload)
				})
			})

			r.Route("/chats", func(r chi.Router) {
				r.Post("/", ui.HandleChatCreate)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", ui.HandleChatDetail)
					r.Post("/select", ui.HandleChatSelect)
					r.Delete("/", ui.HandleChatDelete)
				})
			})
		})
	})
}
