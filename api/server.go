// Package api serves the session over HTTP for a web editor.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"beatseq/debug"
	"beatseq/render"
	"beatseq/sequencer"
	"beatseq/store"

	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/gin-gonic/gin"
)

// Server exposes one session and its transport. The session serializes
// commands, so handlers call it directly from gin's goroutines.
type Server struct {
	session   *sequencer.Session
	transport *sequencer.Transport
	store     *store.Store
	project   string
	render    render.Options
	engine    *gin.Engine
}

type Option func(*Server)

// WithStore enables the /projects routes and saving the session as project.
func WithStore(st *store.Store, project string) Option {
	return func(s *Server) {
		s.store = st
		s.project = project
	}
}

// WithRenderOptions sets the sample rate, voice and tail of exports.
func WithRenderOptions(opt render.Options) Option {
	return func(s *Server) { s.render = opt }
}

func New(session *sequencer.Session, transport *sequencer.Transport, opts ...Option) *Server {
	s := &Server{session: session, transport: transport}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}
	errc := make(chan error, 1)
	go func() {
		debug.Info("api", "listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(corsMiddleware())

	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/project", s.getProject)
		v1.PUT("/project", s.putProject)
		v1.GET("/project/document", s.exportProject)
		v1.PUT("/bpm", s.setBPM)
		v1.PUT("/master", s.setMaster)

		tracks := v1.Group("/tracks")
		tracks.POST("", s.addTrack)
		tracks.PATCH("/:track", s.editTrack)
		tracks.DELETE("/:track", s.removeTrack)
		tracks.POST("/:track/mute", s.toggleMute)
		tracks.POST("/:track/solo", s.toggleSolo)
		tracks.PUT("/:track/effects/:effect", s.setEffect)
		tracks.POST("/:track/steps/:step/toggle", s.toggleStep)
		tracks.PUT("/:track/steps/:step", s.setStep)
		tracks.DELETE("/:track/pattern", s.clearPattern)
		tracks.POST("/:track/patterns", s.addPattern)
		tracks.PUT("/:track/patterns/active", s.selectPattern)
		tracks.POST("/:track/notes", s.addNote)
		tracks.PATCH("/:track/notes/:note", s.editNote)
		tracks.DELETE("/:track/notes/:note", s.removeNote)
		tracks.POST("/:track/record", s.recordNote)

		arr := v1.Group("/arrangement")
		arr.POST("", s.addBlock)
		arr.PATCH("/:track/:bar", s.editBlock)
		arr.DELETE("/:track/:bar", s.removeBlock)

		v1.POST("/undo", s.undo)
		v1.POST("/redo", s.redo)
		v1.GET("/versions", s.listVersions)
		v1.POST("/versions", s.saveVersion)
		v1.POST("/versions/jump", s.jumpToVersion)
		v1.POST("/history/flush", s.flush)

		v1.GET("/transport", s.transportStatus)
		v1.POST("/transport/start", s.startTransport)
		v1.POST("/transport/stop", s.stopTransport)
		v1.POST("/transport/toggle", s.toggleTransport)
		v1.PUT("/transport/recording", s.setRecording)
		v1.PUT("/transport/maintain", s.setMaintain)

		v1.GET("/render.wav", s.renderWav)
		v1.GET("/render.mid", s.renderMIDI)

		if s.store != nil {
			v1.GET("/projects", s.listProjects)
			v1.GET("/projects/:name/saves", s.listSaves)
			v1.POST("/projects/:name/saves", s.saveProject)
			v1.POST("/projects/:name/load", s.loadProject)
		}
	}
	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		debug.Log("api", "%s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// statusOf maps error tags to HTTP status codes
func statusOf(err error) int {
	switch ftag.Get(err) {
	case sequencer.TagInvalid:
		return http.StatusBadRequest
	case sequencer.TagNotFound:
		return http.StatusNotFound
	case sequencer.TagConflict:
		return http.StatusConflict
	case sequencer.TagMalformed:
		return http.StatusUnprocessableEntity
	case sequencer.TagCancelled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"error": err.Error()}
	if kind := ftag.Get(err); kind != "" {
		body["kind"] = kind
	}
	if issue := fmsg.GetIssue(err); issue != "" {
		body["issue"] = issue
	}
	if status == http.StatusInternalServerError {
		debug.Warn("api", "%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": sequencer.TagInvalid})
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

func trackParam(c *gin.Context) (sequencer.TrackID, bool) {
	id, ok := intParam(c, "track")
	return sequencer.TrackID(id), ok
}

// bind decodes the JSON body into v, answering 400 on failure.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err.Error())
		return false
	}
	return true
}

// done answers a command with the new snapshot.
func (s *Server) done(c *gin.Context, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "beatseq",
	})
}
