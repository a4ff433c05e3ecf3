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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/trivia/internal/api"
	"github.com/victornm/trivia/internal/event"
	"github.com/victornm/trivia/internal/game"
	"github.com/victornm/trivia/internal/leaderboard"
	"github.com/victornm/trivia/internal/question"
	"github.com/victornm/trivia/internal/telemetry"
)

// Leaderboard store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

// DSN is the connection URL of the database.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name)
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level string
	}

	Redis struct {
		Sessions    RedisConfig
		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}

	Postgres struct {
		Leaderboard PostgresConfig
	}

	Sheets struct {
		SpreadsheetID   string
		Sheet           string
		CredentialsFile string
	}

	OpenAI struct {
		APIKey      string
		BaseURL     string
		Model       string
		Temperature float32
		MaxTokens   int
		MaxAttempts int
		RetryDelay  time.Duration
	}

	Game struct {
		SessionTTL time.Duration
	}

	Leaderboard struct {
		Backend     string
		TTL         time.Duration
		MaxAttempts int
		BaseDelay   time.Duration
		Location    string
	}
}

// DefaultConfig returns the configuration used for values missing from the file
// and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Log.Level = "info"
	c.Redis.Sessions.Prefix = "trivia"
	c.Redis.Leaderboard.Prefix = "trivia"
	c.Redis.Pubsub.Prefix = "trivia"
	c.Sheets.Sheet = "Sheet1"
	c.OpenAI.Temperature = 0.9
	c.OpenAI.MaxTokens = 500
	c.OpenAI.MaxAttempts = 3
	c.OpenAI.RetryDelay = time.Second
	c.Game.SessionTTL = 2 * time.Hour
	c.Leaderboard.Backend = BackendMemory
	c.Leaderboard.TTL = 5 * time.Minute
	c.Leaderboard.MaxAttempts = 5
	c.Leaderboard.BaseDelay = 500 * time.Millisecond
	c.Leaderboard.Location = "UTC"
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			sessions    redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			leaderboard *pgxpool.Pool
		}

		location *time.Location
	}

	service struct {
		question    *question.Provider
		leaderboard *leaderboard.Service
		game        *game.Service
	}

	api *api.API

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

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
	loc, err := time.LoadLocation(s.c.Leaderboard.Location)
	if err != nil {
		return fmt.Errorf("leaderboard location: %w", err)
	}
	s.infra.location = loc

	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

// initRedis connects every client that has addresses configured. A missing client
// falls back to in-process state.
func (s *Server) initRedis() error {
	connect := func(role string, c RedisConfig) (redis.UniversalClient, error) {
		if len(c.Addrs) == 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(r, role); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.sessions, err = connect("sessions", s.c.Redis.Sessions)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}

	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	if s.c.Leaderboard.Backend != BackendPostgres {
		return nil
	}

	connect := func(c PostgresConfig) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(c.DSN())
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	s.infra.postgres.leaderboard, err = connect(s.c.Postgres.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	return nil
}

func (s *Server) initService() error {
	if s.c.OpenAI.APIKey == "" {
		return fmt.Errorf("question: openai api key is not set")
	}

	s.service.question = question.NewProvider(question.Config{
		Completer: question.NewOpenAI(question.OpenAIConfig{
			APIKey:      s.c.OpenAI.APIKey,
			BaseURL:     s.c.OpenAI.BaseURL,
			Model:       s.c.OpenAI.Model,
			Temperature: s.c.OpenAI.Temperature,
			MaxTokens:   s.c.OpenAI.MaxTokens,
		}),
		MaxAttempts: s.c.OpenAI.MaxAttempts,
		RetryDelay:  s.c.OpenAI.RetryDelay,
	})

	store, err := s.leaderboardStore()
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:    s.eb,
		Store:       store,
		TTL:         s.c.Leaderboard.TTL,
		MaxAttempts: s.c.Leaderboard.MaxAttempts,
		BaseDelay:   s.c.Leaderboard.BaseDelay,
		Location:    s.infra.location,
	})

	var sessions game.Store = game.NewMemoryStore()
	if r := s.infra.redis.sessions; r != nil {
		sessions = game.NewRedisStore(r, s.c.Redis.Sessions.Prefix, s.c.Game.SessionTTL)
	}

	s.service.game = game.NewService(game.Config{
		EventBus:    s.eb,
		Store:       sessions,
		Questions:   s.service.question,
		Leaderboard: s.service.leaderboard,
	})

	return nil
}

func (s *Server) leaderboardStore() (leaderboard.Store, error) {
	switch s.c.Leaderboard.Backend {
	case "", BackendMemory:
		return leaderboard.NewMemoryStore(), nil

	case BackendRedis:
		if s.infra.redis.leaderboard == nil {
			return nil, fmt.Errorf("redis backend without redis addresses")
		}
		return leaderboard.NewRedisStore(s.infra.redis.leaderboard, s.c.Redis.Leaderboard.Prefix, s.infra.location), nil

	case BackendPostgres:
		return leaderboard.NewPostgresStore(s.infra.postgres.leaderboard), nil

	case BackendSheets:
		// The client keeps ctx for token refreshes, so it must outlive this call.
		ctx := context.Background()

		var opts []option.ClientOption
		if f := s.c.Sheets.CredentialsFile; f != "" {
			opts = append(opts, option.WithCredentialsFile(f))
		}

		return leaderboard.NewSheetsStore(ctx, leaderboard.SheetsConfig{
			SpreadsheetID: s.c.Sheets.SpreadsheetID,
			Sheet:         s.c.Sheets.Sheet,
			Location:      s.infra.location,
			Options:       opts,
		})

	default:
		return nil, fmt.Errorf("unknown backend %q", s.c.Leaderboard.Backend)
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	var pubsub api.Redis
	if r := s.infra.redis.pubsub; r != nil {
		pubsub = r
	}

	s.api = api.New(api.Config{
		EventBus:     s.eb,
		Game:         s.service.game,
		Leaderboard:  s.service.leaderboard,
		Redis:        pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})
	s.api.Register(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
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

	// Forced leaderboard writes are refused until the store has been read once.
	s.service.leaderboard.Load(ctx, true)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

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

	s.health.Shutdown()
	s.grpc.GracefulStop()
	s.api.Close()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	for _, r := range []redis.UniversalClient{s.infra.redis.sessions, s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if r != nil {
			_ = r.Close()
		}
	}
	if db := s.infra.postgres.leaderboard; db != nil {
		db.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
