// Package httpapi serves the read-only status API of a running simulation.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/deployment"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
	"github.com/signalsfoundry/constellation-testbed/internal/routing"
	"github.com/signalsfoundry/constellation-testbed/internal/sim"
)

// Simulator is the part of a simulation the API reads from.
type Simulator interface {
	Nodes() []sim.NodeView
	Route(ctx context.Context, from, to string) (routing.RouteResult, error)
	RouteToService(ctx context.Context, from, service string) (routing.RouteResult, error)
}

// Deployments lists active deployments.
type Deployments interface {
	Active() []deployment.Specification
}

// Response is the envelope of every error reply.
type Response struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DeploymentView is the JSON form of an active deployment.
type DeploymentView struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type api struct {
	sim  Simulator
	deps Deployments
	log  logging.Logger
}

// NewRouter registers the API routes. metrics may be nil to omit /metrics.
func NewRouter(s Simulator, deps Deployments, metrics http.Handler, log logging.Logger) *mux.Router {
	if log == nil {
		log = logging.Noop()
	}
	a := &api{sim: s, deps: deps, log: log}

	r := mux.NewRouter()
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/nodes", a.nodes).Methods(http.MethodGet)
	v1.HandleFunc("/nodes/{name}", a.node).Methods(http.MethodGet)
	v1.HandleFunc("/routes", a.routes).Methods(http.MethodGet)
	v1.HandleFunc("/deployments", a.deployments).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "operation not allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no route for %s", r.URL.Path)
	})
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	a.write(r.Context(), w, http.StatusOK, Response{Message: "ok"})
}

func (a *api) nodes(w http.ResponseWriter, r *http.Request) {
	a.write(r.Context(), w, http.StatusOK, a.sim.Nodes())
}

func (a *api) node(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, n := range a.sim.Nodes() {
		if n.Name == name {
			a.write(r.Context(), w, http.StatusOK, n)
			return
		}
	}
	writeError(w, http.StatusNotFound, "node %q not found", name)
}

// routes answers ?from=A&to=B and ?from=A&service=S.
func (a *api) routes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, service := q.Get("from"), q.Get("to"), q.Get("service")
	if from == "" || (to == "") == (service == "") {
		writeError(w, http.StatusBadRequest, "need from and exactly one of to or service")
		return
	}

	var (
		res routing.RouteResult
		err error
	)
	if to != "" {
		res, err = a.sim.Route(r.Context(), from, to)
	} else {
		res, err = a.sim.RouteToService(r.Context(), from, service)
	}
	switch {
	case errors.Is(err, core.ErrNodeNotFound):
		writeError(w, http.StatusNotFound, "%v", err)
		return
	case err != nil:
		a.log.Warn(r.Context(), "route query failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	a.write(r.Context(), w, http.StatusOK, sim.View(from, to, service, res))
}

func (a *api) deployments(w http.ResponseWriter, r *http.Request) {
	active := a.deps.Active()
	out := make([]DeploymentView, 0, len(active))
	for _, spec := range active {
		out = append(out, DeploymentView{ID: spec.ID().String(), Kind: string(spec.Kind()), Name: fmt.Sprint(spec)})
	}
	a.write(r.Context(), w, http.StatusOK, out)
}

func (a *api) write(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Warn(ctx, "write response", logging.Err(err))
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Error: fmt.Sprintf(format, args...)})
}

// Serve listens on addr until ctx is done, then shuts down within ten
// seconds.
func Serve(ctx context.Context, addr string, handler http.Handler, log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "http shutdown", logging.Err(err))
		}
	}()

	log.Info(ctx, "status api listening", logging.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	cancel()
	<-done
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
