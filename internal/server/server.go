// Package server exposes synchronized tables over HTTP as GeoJSON feature
// collections, reusing the sync read path.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/mark-mcdougall/data-analytics/internal/geosync"
	"github.com/mark-mcdougall/data-analytics/internal/geotable"
)

// TableReader is the sync read surface the server depends on.
type TableReader interface {
	Read(ctx context.Context, tableName string, typeMap map[string]string, indexAttr string) (*geotable.Table, error)
}

// Server routes table requests to a TableReader.
type Server struct {
	reader TableReader
	router *chi.Mux
}

// New builds the router around a TableReader.
func New(reader TableReader) *Server {
	s := &Server{
		reader: reader,
		router: chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/tables/{name}", s.handleTable)

	return s
}

// Handler returns the HTTP handler for mounting.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	tbl, err := s.reader.Read(r.Context(), name, nil, "")
	if err != nil {
		switch {
		case eris.Is(err, geosync.ErrTableNotFound):
			http.Error(w, `{"error":"table not found"}`, http.StatusNotFound)
		case eris.Is(err, geosync.ErrConnectionClosed):
			http.Error(w, `{"error":"store unavailable"}`, http.StatusServiceUnavailable)
		default:
			zap.L().Error("table read failed", zap.String("table", name), zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	fc, err := FeatureCollection(tbl)
	if err != nil {
		zap.L().Error("geojson conversion failed", zap.String("table", name), zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		zap.L().Warn("response write failed", zap.String("table", name), zap.Error(err))
	}
}

// FeatureCollection converts a canonical table to GeoJSON: the geometry
// column becomes each feature's geometry, all other columns its properties.
func FeatureCollection(tbl *geotable.Table) (*geojson.FeatureCollection, error) {
	gi := tbl.GeometryIndex()
	if gi < 0 {
		return nil, eris.Errorf("server: table %s has no geometry column", tbl.Name)
	}

	fc := &geojson.FeatureCollection{}
	for ri, row := range tbl.Rows {
		feat := &geojson.Feature{Properties: make(map[string]any, len(tbl.Columns)-1)}
		for i, c := range tbl.Columns {
			if i == gi {
				continue
			}
			feat.Properties[c.Name] = row[i]
		}
		g, ok := row[gi].(geom.T)
		if !ok {
			return nil, eris.Errorf("server: table %s row %d has no geometry", tbl.Name, ri)
		}
		feat.Geometry = g
		fc.Features = append(fc.Features, feat)
	}
	return fc, nil
}
