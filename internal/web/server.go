// Package web provides the sharebox HTTP server: the comments DAV tree, the
// share API, status and metrics.
package web

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evcraddock/sharebox/internal/auth"
	"github.com/evcraddock/sharebox/internal/comment"
	"github.com/evcraddock/sharebox/internal/dav"
	"github.com/evcraddock/sharebox/internal/files"
	"github.com/evcraddock/sharebox/internal/logging"
	"github.com/evcraddock/sharebox/internal/metrics"
	"github.com/evcraddock/sharebox/internal/share"
)

// Mount points.
const (
	CommentsPath     = "/remote.php/dav/comments"
	SharesPath       = share.APIPath
	AppPasswordsPath = "/ocs/v2.php/core/apppasswords"
)

// Options configures a Server.
type Options struct {
	Version string
	// Metrics may be nil.
	Metrics *metrics.HTTPMetrics
}

// Server is the sharebox HTTP server.
type Server struct {
	shares       *share.Repository
	orphans      *share.Orphans
	cache        *files.Cache
	access       *files.Access
	users        *auth.UserStore
	appPasswords *auth.AppPasswordStore
	authn        *auth.Authenticator
	version      string
	router       chi.Router
}

// NewServer creates a server over db.
func NewServer(db *sql.DB, opts Options) *Server {
	users := auth.NewUserStore(db)
	appPasswords := auth.NewAppPasswordStore(db)
	s := &Server{
		shares:       share.NewRepository(db),
		orphans:      share.NewOrphans(db, nil),
		cache:        files.NewCache(db),
		access:       files.NewAccess(db),
		users:        users,
		appPasswords: appPasswords,
		authn:        auth.NewAuthenticator(users, appPasswords),
		version:      opts.Version,
	}

	root := dav.NewRootCollection(comment.NewRepository(db), users.DisplayName)
	root.RegisterEntityType("files", s.fileExists)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger)
	r.Use(opts.Metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/status.php", s.handleStatus)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authn.RequireUser)
		r.Mount(CommentsPath, dav.NewHandler(root, CommentsPath))
		r.Route(SharesPath, func(r chi.Router) {
			r.Get("/", s.apiListShares)
			r.Post("/", s.apiCreateShare)
			r.Get("/{id}", s.apiGetShare)
			r.Delete("/{id}", s.apiDeleteShare)
		})
		r.Route(AppPasswordsPath, func(r chi.Router) {
			r.Get("/", s.apiListAppPasswords)
			r.Post("/", s.apiCreateAppPassword)
			r.Delete("/{id}", s.apiDeleteAppPassword)
		})
	})

	s.router = r
	return s
}

// fileExists reports whether uid can reach the file with the given id.
func (s *Server) fileExists(uid, id string) (bool, error) {
	fileID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || fileID <= 0 {
		return false, nil
	}
	return s.access.CanAccess(uid, fileID)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "version", s.version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
