// Package dashboard serves a local web view of Taskwire's sessions, research
// tasks, and scheduled runs, with a server-sent-events stream of progress.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/prefs"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB    *gorm.DB
	Port  int
	Out   io.Writer
	Prefs prefs.Store // optional; defaults to a no-op store
}

// prefState holds the live display preferences behind the theme toggle.
type prefState struct {
	store prefs.Store

	mu       sync.Mutex
	settings prefs.Settings
}

func (p *prefState) theme() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings.Theme
}

// toggleTheme flips dark/light, persists, and returns the new theme.
// Persistence failures log; the in-memory toggle still applies.
func (p *prefState) toggleTheme() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.settings.Theme == "light" {
		p.settings.Theme = "dark"
	} else {
		p.settings.Theme = "light"
	}
	if err := p.store.Save(p.settings); err != nil {
		log.Printf("dashboard: %v", err)
	}
	return p.settings.Theme
}

// page merges the current theme into a template data map.
func (p *prefState) page(h gin.H) gin.H {
	h["theme"] = p.theme()
	return h
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	store := opts.Prefs
	if store == nil {
		store = prefs.NopStore{}
	}

	router, err := newRouter(opts.DB, store)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Taskwire dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with templates and routes registered.
func newRouter(db *gorm.DB, store prefs.Store) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	settings, err := store.Load()
	if err != nil {
		log.Printf("dashboard: %v", err)
	}
	state := &prefState{store: store, settings: settings}

	registerRoutes(router, db, state)
	return router, nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}
