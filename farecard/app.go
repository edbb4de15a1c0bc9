package farecard

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	farecard8583 "github.com/jonanatree/farecard/farecard/iso8583"
	"github.com/jonanatree/farecard/internal/middleware"
	_ "github.com/lib/pq"
	"golang.org/x/exp/slog"
	_ "modernc.org/sqlite"
)

// App is the main application, it contains all the components of the fare
// card service and is responsible for starting and stopping them.
type App struct {
	srv               *http.Server
	wg                *sync.WaitGroup
	Addr              string
	ISO8583ServerAddr string
	logger            *slog.Logger
	iso8583Server     io.Closer
	repository        *Repository
	config            *Config
	serviceOpts       []ServiceOption
}

func NewApp(logger *slog.Logger, config *Config, opts ...ServiceOption) *App {
	logger = logger.With(slog.String("app", "farecard"))

	if config == nil {
		config = DefaultConfig()
	}

	return &App{
		wg:          &sync.WaitGroup{},
		logger:      logger,
		config:      config,
		serviceOpts: opts,
	}
}

func (a *App) Start() error {
	a.logger.Info("starting app...")

	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	repository, err := a.openRepository()
	if err != nil {
		return err
	}
	a.repository = repository

	opts := append([]ServiceOption{WithLogger(a.logger)}, a.serviceOpts...)
	svc := NewService(repository, a.config, opts...)

	iso8583Server := farecard8583.NewServer(a.logger, a.config.ISO8583Addr, svc)
	if err := iso8583Server.Start(); err != nil {
		return fmt.Errorf("starting iso8583 server: %w", err)
	}
	a.ISO8583ServerAddr = iso8583Server.Addr
	a.iso8583Server = iso8583Server

	router := chi.NewRouter()
	router.Use(middleware.NewStructuredLogger(a.logger))

	api := NewAPI(svc)
	api.AppendRoutes(router)

	router.Get("/-/live", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	router.Get("/-/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repository.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	l, err := net.Listen("tcp", a.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	a.Addr = l.Addr().String()

	a.srv = &http.Server{
		Handler: router,
	}

	a.wg.Add(1)
	go func() {
		a.logger.Info("http server started", slog.String("addr", a.Addr))

		if err := a.srv.Serve(l); err != nil {
			if err != http.ErrServerClosed {
				a.logger.Error("starting http server", "err", err)
			}

			a.logger.Info("http server stopped")
		}

		a.wg.Done()
	}()

	return nil
}

func (a *App) openRepository() (*Repository, error) {
	var (
		driver string
		dsn    = a.config.DBDSN
	)
	switch a.config.RepoBackend {
	case BackendMemory:
		return NewRepository(), nil
	case BackendPostgres:
		driver = a.config.DBDriver
	case BackendSQLite:
		driver = "sqlite"
		if dsn == "" {
			dsn = ":memory:"
		}
	default:
		return nil, fmt.Errorf("unsupported FARECARD_REPO_BACKEND=%s", a.config.RepoBackend)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer at a time, and a single connection keeps :memory: alive
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(5)
		db.SetMaxOpenConns(10)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	repository := NewSQLRepository(db, []byte(a.config.NumberHashKey))
	if err := repository.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	a.logger.Info("repository ready", slog.String("backend", a.config.RepoBackend), slog.String("driver", driver))
	return repository, nil
}

func (a *App) Shutdown() {
	a.logger.Info("shutting down app...")

	if a.srv != nil {
		a.srv.Shutdown(context.Background())
	}

	if a.iso8583Server != nil {
		if err := a.iso8583Server.Close(); err != nil {
			a.logger.Error("closing iso8583 server", "err", err)
		}
	}

	a.wg.Wait()

	if a.repository != nil {
		if err := a.repository.Close(); err != nil {
			a.logger.Error("closing repository", "err", err)
		}
	}

	a.logger.Info("app stopped")
}
