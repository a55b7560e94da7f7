package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/api"
	"github.com/joeblew999/plat-recmap/internal/config"
	"github.com/joeblew999/plat-recmap/internal/db"
	"github.com/joeblew999/plat-recmap/internal/geometry"
	"github.com/joeblew999/plat-recmap/internal/logging"
	"github.com/joeblew999/plat-recmap/internal/mapview"
	"github.com/joeblew999/plat-recmap/internal/service"
	"github.com/joeblew999/plat-recmap/internal/store"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	ConfigPath string // Path to recmap.yaml; missing means defaults
	Logger     *zap.Logger
	// DB overrides the shared DuckDB connection.
	DB *sql.DB
}

// Server is the recmap HTTP server.
type Server struct {
	config  Config
	app     config.Config
	mux     *http.ServeMux
	handler http.Handler
	humaAPI huma.API
	db      *sql.DB
	store   *store.Store
	view    *mapview.View
	bus     *service.EventBus
	log     *zap.Logger
}

func humaConfig(cfg Config) huma.Config {
	hc := huma.DefaultConfig("plat-recmap API", "1.0.0")
	hc.Info.Description = "Record map viewer API: features, legend, popups with inline edits, and measurements."
	hc.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	hc.CreateHooks = []func(huma.Config) huma.Config{}
	hc.Transformers = append(hc.Transformers, api.LinkTransformer())
	return hc
}

// OpenAPI builds the API description without opening the database.
func OpenAPI(cfg Config) *huma.OpenAPI {
	humaAPI := humago.New(http.NewServeMux(), humaConfig(cfg))
	api.RegisterRoutes(humaAPI, &api.Services{})
	return humaAPI.OpenAPI()
}

// New creates a server, opens the map and loads the first record snapshot.
// A record table that cannot be read is logged; the map opens empty.
func New(ctx context.Context, cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	conn := cfg.DB
	if conn == nil {
		conn, err = db.Get(db.Config{DataDir: cfg.DataDir, DBName: "recmap"})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
	}

	st, err := store.New(conn, store.Options{
		Table:           app.Records.Table,
		IDField:         app.Records.IDField,
		Columns:         app.Records.Columns,
		GeometryColumns: app.Records.GeometryColumns,
		Logger:          log,
	})
	if err != nil {
		return nil, err
	}

	bus := service.NewEventBus(log)
	rt := mapview.NewRuntime(surface.NewRuntime().Loader(), geometry.LoadWKTDecoder, mapview.RuntimeOptions{
		FallbackTimeout: app.Map.FallbackTimeout,
		Logger:          log,
	})
	view, err := mapview.New(rt, st.Update, mapview.Config{
		Container:       app.Map.Container,
		BaseLayer:       app.Map.BaseLayer,
		FitPadding:      app.Map.FitPadding,
		GeometryColumns: app.Records.GeometryColumns,
		ColorField:      app.Records.ColorField,
		Palette:         app.Map.Palette,
		Style:           app.Map.Style,
		Units:           app.Measure.Units,
		AreaMethod:      app.Measure.AreaMethod,
		PopupLimit:      app.Popup.MaxFields,
		Logger:          log,
		OnChange: func(c mapview.Change) {
			bus.Publish(service.Event{Resource: c.Resource, Action: c.Action, ID: c.ID})
		},
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	humaAPI := humago.New(mux, humaConfig(cfg))

	s := &Server{
		config:  cfg,
		app:     app,
		mux:     mux,
		humaAPI: humaAPI,
		db:      conn,
		store:   st,
		view:    view,
		bus:     bus,
		log:     log,
	}
	s.routes()
	s.handler = logging.AccessMiddleware(log)(mux)

	if err := view.Open(ctx); err != nil {
		return nil, fmt.Errorf("open map: %w", err)
	}
	if err := view.Reload(ctx, st); err != nil {
		log.Warn("initial record load failed", zap.String("table", st.Table()), zap.Error(err))
	}
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// OpenAPI returns the OpenAPI description of the running server.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Store returns the record store.
func (s *Server) Store() *store.Store { return s.store }

// View returns the map view.
func (s *Server) View() *mapview.View { return s.view }

// Close closes server resources. An injected DB is left to its owner.
func (s *Server) Close() error {
	if s.config.DB != nil {
		return nil
	}
	return db.Close()
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, &api.Services{
		View:   s.view,
		Source: s.store,
		Bus:    s.bus,
		Logger: s.log,
	})
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-recmap",
		"status":  "running",
		"table":   s.store.Table(),
	})
}
