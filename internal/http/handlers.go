package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medchat-proxy/internal/core"
	"medchat-proxy/internal/logger"
	"medchat-proxy/internal/metrics"
	"medchat-proxy/pkg"
)

// Pipeline is the chat service as seen by the HTTP layer.
type Pipeline interface {
	Handle(ctx context.Context, message, conversationID, patientID, language string) pkg.PipelineResult
	History(ctx context.Context, conversationID, patientID string, limit int) ([]pkg.Message, error)
	Model() string
	PingModel(ctx context.Context) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const statusProbeTimeout = 15 * time.Second

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to an http.Server.
type Server struct {
	Chat    Pipeline
	DB      Pinger
	Driver  string
	Label   string
	Log     *logger.Logger
	Metrics *metrics.Metrics
	engine  *gin.Engine
	now     func() time.Time
}

// Options configures NewServer.  Log and Metrics may be nil; CORSOrigins
// defaults to every origin.
type Options struct {
	Chat        Pipeline
	DB          Pinger
	Driver      string
	Label       string
	CORSOrigins []string
	Log         *logger.Logger
	Metrics     *metrics.Metrics
}

// NewServer constructs a Server and registers its routes.
func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		Chat:    opts.Chat,
		DB:      opts.DB,
		Driver:  opts.Driver,
		Label:   opts.Label,
		Log:     log.Component("http"),
		Metrics: opts.Metrics,
		now:     time.Now,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.Log, s.Metrics), corsMiddleware(opts.CORSOrigins))

	r.GET("/", s.handleHealth)
	r.POST("/chat", s.handleChat)
	r.GET("/conversations/:conversation_id", s.handleHistory)
	r.POST("/reset-conversation", s.handleReset)
	r.GET("/status", s.handleStatus)
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}
	s.engine = r
	return s
}

// ServeHTTP hands the request to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) timestamp() string {
	return s.now().Format(pkg.TimeFormat)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, pkg.HealthResponse{
		Status:    "healthy",
		Model:     s.Chat.Model(),
		Server:    s.Label,
		Timestamp: s.timestamp(),
	})
}

// handleChat runs one exchange.  A missing conversation id starts a new
// conversation; the generated id is returned to the caller.
func (s *Server) handleChat(c *gin.Context) {
	var req pkg.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if req.Language == "" {
		req.Language = pkg.DefaultLanguage
	}
	if _, err := core.LookupLanguage(req.Language); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "unsupported language: " + req.Language,
			"supported": core.SupportedLanguages(),
		})
		return
	}
	if req.PatientID == "" {
		req.PatientID = pkg.DefaultPatientID
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	res := s.Chat.Handle(c.Request.Context(), req.Message, req.ConversationID, req.PatientID, req.Language)
	if res.Status != pkg.StatusSuccess {
		c.String(http.StatusInternalServerError, res.ResponseText)
		return
	}
	c.JSON(http.StatusOK, pkg.ChatResponse{
		Response:       res.ResponseText,
		ConversationID: res.ConversationID,
		PatientID:      req.PatientID,
		Status:         string(res.Status),
		Timestamp:      res.CreatedAt.Format(pkg.TimeFormat),
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	patientID := c.DefaultQuery("patient_id", pkg.DefaultPatientID)

	msgs, err := s.Chat.History(c.Request.Context(), conversationID, patientID, 0)
	if err != nil {
		s.Log.Error().Err(err).Str("conversation_id", conversationID).Msg("history read failed")
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	history := make([]pkg.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, pkg.HistoryEntry{
			Message:   m.Text,
			Sender:    string(m.Sender),
			Timestamp: m.CreatedAt.Format(pkg.TimeFormat),
		})
	}
	c.JSON(http.StatusOK, pkg.ConversationHistory{
		ConversationID: conversationID,
		PatientID:      patientID,
		History:        history,
	})
}

func (s *Server) handleReset(c *gin.Context) {
	c.JSON(http.StatusOK, pkg.ResetResponse{
		ConversationID: uuid.NewString(),
		Status:         string(pkg.StatusSuccess),
		Message:        "New conversation started",
		Timestamp:      s.timestamp(),
	})
}

// handleStatus probes the model backend and the database synchronously.
func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statusProbeTimeout)
	defer cancel()

	modelStatus := "connected"
	if err := s.Chat.PingModel(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("model probe failed")
		modelStatus = "disconnected"
	}
	dbStatus := "connected"
	if s.DB == nil {
		dbStatus = "unknown"
	} else if err := s.DB.Ping(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("database probe failed")
		dbStatus = "disconnected"
	}

	c.JSON(http.StatusOK, pkg.StatusResponse{
		APIStatus:      "healthy",
		Model:          s.Chat.Model(),
		ModelStatus:    modelStatus,
		Server:         s.Label,
		Database:       s.Driver,
		DatabaseStatus: dbStatus,
		Timestamp:      s.timestamp(),
	})
}
