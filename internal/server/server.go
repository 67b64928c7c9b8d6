package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/mockinterview/internal/api"
	"github.com/victornm/mockinterview/internal/auth"
	"github.com/victornm/mockinterview/internal/event"
	"github.com/victornm/mockinterview/internal/interview"
	"github.com/victornm/mockinterview/internal/question"
	"github.com/victornm/mockinterview/internal/results"
	"github.com/victornm/mockinterview/internal/speech"
	"github.com/victornm/mockinterview/internal/telemetry"
	"github.com/victornm/mockinterview/internal/user"
)

const (
	UsersDriverMongo    = "mongo"
	UsersDriverPostgres = "postgres"
	UsersDriverMemory   = "memory"
)

type Config struct {
	HTTP struct {
		Port           int32
		AllowedOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level string
	}

	Events struct {
		PoolSize       int
		HandlerTimeout time.Duration
	}

	Auth struct {
		Secret   string
		TokenTTL time.Duration
	}

	Users struct {
		Driver string

		Mongo struct {
			URI        string
			Database   string
			Collection string
		}

		Postgres struct {
			// URL takes precedence over the individual fields.
			URL  string
			Addr string
			User string
			Pass string
			Name string
		}
	}

	Redis struct {
		Results struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Speech struct {
		WriteTimeout time.Duration
		PingPeriod   time.Duration
		PongWait     time.Duration
	}

	Interview struct {
		QuestionTime  time.Duration
		WarningTime   time.Duration
		CueDelay      time.Duration
		IdleTimeout   time.Duration
		ReapSchedule  string
		QuestionsFile string
		Questions     []string
	}
}

// DefaultConfig is used for every key the config file and environment leave
// unset.
func DefaultConfig() Config {
	var c Config

	c.HTTP.Port = 5000
	c.HTTP.AllowedOrigins = []string{"*"}
	c.GRPC.Port = 5001
	c.Log.Level = "info"

	c.Auth.TokenTTL = auth.DefaultTokenTTL

	c.Users.Driver = UsersDriverMongo
	c.Users.Mongo.URI = "mongodb://localhost:27017"
	c.Users.Mongo.Database = "mockinterview"
	c.Users.Mongo.Collection = "users"

	c.Redis.Results.Addrs = []string{"localhost:6379"}
	c.Redis.Results.Prefix = "mockinterview"
	c.Redis.Pubsub.Addrs = []string{"localhost:6379"}
	c.Redis.Pubsub.Prefix = "mockinterview:pubsub"

	c.Speech.WriteTimeout = speech.DefaultWriteTimeout
	c.Speech.PingPeriod = speech.DefaultPingPeriod
	c.Speech.PongWait = speech.DefaultPongWait

	c.Interview.QuestionTime = interview.DefaultQuestionTime
	c.Interview.WarningTime = interview.DefaultWarningTime
	c.Interview.CueDelay = interview.DefaultCueDelay
	c.Interview.IdleTimeout = interview.DefaultIdleTimeout
	c.Interview.ReapSchedule = "@every 1m"

	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			results redis.UniversalClient
			pubsub  redis.UniversalClient
		}

		mongo    *mongo.Client
		postgres *pgxpool.Pool
		users    user.Store
	}

	service struct {
		auth       *auth.Service
		bank       question.Bank
		interviews *interview.Registry
		results    *results.Service
	}

	api  *api.API
	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	if c.Auth.Secret == "" {
		return nil, fmt.Errorf("server: auth secret is not set")
	}

	s.eb = event.NewBus(
		event.WithPoolSize(c.Events.PoolSize),
		event.WithTimeout(c.Events.HandlerTimeout),
	)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initUsers(); err != nil {
		return fmt.Errorf("users: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.results, err = connect(s.c.Redis.Results.Addrs, s.c.Redis.Results.Pass)
	if err != nil {
		return fmt.Errorf("results: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initUsers() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch d := s.c.Users.Driver; d {
	case UsersDriverMongo:
		mc := s.c.Users.Mongo

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mc.URI))
		if err != nil {
			return fmt.Errorf("mongo: connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongo: ping: %w", err)
		}
		s.infra.mongo = client

		store, err := user.NewMongoStore(ctx, client.Database(mc.Database).Collection(mc.Collection))
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		s.infra.users = store

	case UsersDriverPostgres:
		db, err := s.connectPostgres(ctx)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.postgres = db

		store := user.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.users = store

	case UsersDriverMemory:
		slog.WarnContext(ctx, "server: users are kept in memory and lost on restart")
		s.infra.users = user.NewMemoryStore()

	default:
		return fmt.Errorf("unknown driver %q", d)
	}

	return nil
}

func (s *Server) connectPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	pc := s.c.Users.Postgres

	url := pc.URL
	if url == "" {
		url = fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name)
	}

	cc, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initService() error {
	bank, err := s.loadBank()
	if err != nil {
		return fmt.Errorf("question bank: %w", err)
	}
	s.service.bank = bank

	s.service.auth = auth.NewService(auth.Config{
		Users:    s.infra.users,
		Secret:   s.c.Auth.Secret,
		TokenTTL: s.c.Auth.TokenTTL,
	})

	s.service.results = results.NewService(results.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.results,
		Prefix:   s.c.Redis.Results.Prefix,
		TTL:      s.c.Redis.Results.TTL,
	})

	ic := s.c.Interview
	s.service.interviews = interview.NewRegistry(interview.RegistryConfig{
		Machine: interview.NewMachine(interview.MachineConfig{
			Bank:         bank,
			QuestionTime: ic.QuestionTime,
			WarningTime:  ic.WarningTime,
		}),
		EventBus:    s.eb,
		IdleTimeout: ic.IdleTimeout,
		CueDelay:    ic.CueDelay,
		BridgeOptions: []speech.Option{
			speech.WithWriteTimeout(s.c.Speech.WriteTimeout),
			speech.WithKeepalive(s.c.Speech.PingPeriod, s.c.Speech.PongWait),
		},
	})

	if ic.ReapSchedule != "" {
		if err := s.service.interviews.StartReaper(ic.ReapSchedule); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) loadBank() (question.Bank, error) {
	ic := s.c.Interview

	switch {
	case ic.QuestionsFile != "":
		return question.LoadFile(ic.QuestionsFile)
	case len(ic.Questions) > 0:
		return question.NewBank(ic.Questions)
	default:
		return question.NewBank(question.Default)
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.GinMetrics())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(), telemetry.GRPCStreamInterceptor())

	s.api = api.New(api.Config{
		Engine:         e,
		GRPC:           s.grpc,
		EventBus:       s.eb,
		Auth:           s.service.auth,
		Bank:           s.service.bank,
		Interviews:     s.service.interviews,
		Results:        s.service.results,
		Redis:          s.infra.redis.pubsub,
		PubsubPrefix:   s.c.Redis.Pubsub.Prefix,
		AllowedOrigins: s.c.HTTP.AllowedOrigins,
	})

	h := cors.Handler(cors.Options{
		AllowedOrigins:   s.c.HTTP.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           h,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.api.SetServing(false)
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Sessions complete no more once closed, so the bus drains after this.
	s.service.interviews.Close()
	s.eb.Stop()

	if s.infra.mongo != nil {
		if err := s.infra.mongo.Disconnect(ctx); err != nil {
			slog.ErrorContext(ctx, "server: disconnect mongo failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.results, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
