package dashboard

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB, state *prefState) {
	// Embedded static assets (served from assets/ subdir of the embed.FS).
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	// Pages.
	router.GET("/", handleIndex(db, state))
	router.GET("/tasks", handleTaskList(db, state))
	router.GET("/tasks/:id", handleTaskDetail(db, state))
	router.GET("/sessions", handleSessionList(db, state))
	router.GET("/sessions/:id", handleSessionDetail(db, state))
	router.GET("/runs", handleRunList(db, state))

	// SSE stream of task progress and session activity.
	router.GET("/api/events", handleSSE(db))

	// Theme toggle from the nav; persists through the prefs store.
	router.POST("/api/prefs/theme", handleThemeToggle(state))
}

func handleThemeToggle(state *prefState) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"theme": state.toggleTheme()})
	}
}

func handleIndex(db *gorm.DB, state *prefState) gin.HandlerFunc {
	return func(c *gin.Context) {
		overview, err := GetOverview(db)
		if err != nil {
			c.HTML(http.StatusInternalServerError, "layout.html", state.page(gin.H{
				"page":  "error",
				"error": err.Error(),
			}))
			return
		}
		c.HTML(http.StatusOK, "layout.html", state.page(gin.H{
			"page":     "overview",
			"overview": overview,
			"working":  TaskList(db, "working").Tasks,
		}))
	}
}

func handleTaskList(db *gorm.DB, state *prefState) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := TaskList(db, c.Query("state"))
		c.HTML(http.StatusOK, "layout.html", state.page(gin.H{
			"page":   "tasks",
			"tasks":  result.Tasks,
			"states": result.States,
			"state":  c.Query("state"),
		}))
	}
}

func handleTaskDetail(db *gorm.DB, state *prefState) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := GetTaskDetail(db, c.Param("id"))
		if err != nil {
			c.HTML(http.StatusNotFound, "layout.html", state.page(gin.H{
				"page":  "error",
				"error": "task not found: " + c.Param("id"),
			}))
			return
		}
		c.HTML(http.StatusOK, "layout.html", state.page(gin.H{
			"page": "task-detail",
			"task": detail,
		}))
	}
}

func handleSessionList(db *gorm.DB, state *prefState) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := SessionList(db, c.Query("source"), c.Query("status"))
		c.HTML(http.StatusOK, "layout.html", state.page(gin.H{
			"page":     "sessions",
			"sessions": result.Sessions,
			"sources":  result.Sources,
			"statuses": result.Statuses,
			"source":   c.Query("source"),
			"status":   c.Query("status"),
		}))
	}
}

func handleSessionDetail(db *gorm.DB, state *prefState) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := GetSessionDetail(db, c.Param("id"))
		if err != nil {
			c.HTML(http.StatusNotFound, "layout.html", state.page(gin.H{
				"page":  "error",
				"error": "session not found: " + c.Param("id"),
			}))
			return
		}
		c.HTML(http.StatusOK, "layout.html", state.page(gin.H{
			"page":    "session-detail",
			"session": detail,
		}))
	}
}

func handleRunList(db *gorm.DB, state *prefState) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "layout.html", state.page(gin.H{
			"page": "runs",
			"runs": RunList(db),
		}))
	}
}
