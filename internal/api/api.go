package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/mockinterview/internal/auth"
	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
	"github.com/victornm/mockinterview/internal/event"
	"github.com/victornm/mockinterview/internal/interview"
	"github.com/victornm/mockinterview/internal/question"
	"github.com/victornm/mockinterview/internal/results"
)

type Config struct {
	Engine       *gin.Engine
	GRPC         *grpc.Server
	EventBus     *event.Bus
	Auth         *auth.Service
	Bank         question.Bank
	Interviews   *interview.Registry
	Results      *results.Service
	Redis        Redis
	PubsubPrefix string
	// AllowedOrigins limits which pages may open the speech websocket. Empty
	// or "*" allows any.
	AllowedOrigins []string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	auth       *auth.Service
	bank       question.Bank
	interviews *interview.Registry
	results    *results.Service
	health     *health.Server
	upgrader   websocket.Upgrader

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		auth:       c.Auth,
		bank:       c.Bank,
		interviews: c.Interviews,
		results:    c.Results,
		health:     health.NewServer(),
		redis:      c.Redis,
		prefix:     c.PubsubPrefix,
	}

	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(c.AllowedOrigins),
	}

	// gRPC APIs
	if c.GRPC != nil {
		healthpb.RegisterHealthServer(c.GRPC, a.health)
	}

	a.routes(c.Engine)

	// Register event handlers
	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameResultRecorded, func(ctx context.Context, e event.Event) error {
			return a.PublishResultRecorded(ctx, e.(domain.EventResultRecorded))
		})
	}

	return a
}

func (a *API) routes(e *gin.Engine) {
	e.GET("/healthz", a.healthz)

	r := e.Group("/api")
	r.POST("/auth/register", a.register)
	r.POST("/auth/login", a.login)
	r.GET("/questions", a.listQuestions)

	iv := r.Group("/interview", a.authenticate, a.require(domain.RoleCandidate))
	iv.GET("", a.getInterview)
	iv.POST("/start", a.startInterview)
	iv.PUT("/answer", a.updateAnswer)
	iv.POST("/submit", a.act((*interview.Controller).Submit))
	iv.POST("/skip", a.act((*interview.Controller).Skip))
	iv.POST("/speech/toggle", a.act((*interview.Controller).ToggleSpeech))
	iv.POST("/listen/start", a.act((*interview.Controller).StartListening))
	iv.POST("/listen/stop", a.act((*interview.Controller).StopListening))
	iv.GET("/summary", a.getSummary)
	iv.GET("/ws", a.speechSocket)

	rs := r.Group("/results", a.authenticate, a.require(domain.RoleRecruiter))
	rs.GET("", a.listResults)
	rs.GET("/:id", a.getResult)
}

// SetServing flips the gRPC health status, e.g. to NOT_SERVING on shutdown.
func (a *API) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !serving {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	a.health.SetServingStatus("", st)
}

func (a *API) healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (a *API) listQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"questions": a.bank.Questions()})
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c, "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}

func errBadRequest(err error) error {
	return errors.New(errors.CodeInvalidArgument, errors.WithMessage("invalid request body"), errors.WithCause(err))
}
