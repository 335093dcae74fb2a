package webservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/ohowland/elec_core/internal/pkg/metrics"
	"github.com/ohowland/elec_core/internal/pkg/msg"
	"github.com/ohowland/elec_core/internal/pkg/network"
)

// Config is the webservice configuration file.
type Config struct {
	Addr string `json:"Addr"`
	// StreamInterval throttles the websocket stream, in milliseconds.
	StreamInterval int `json:"StreamInterval"`
}

// ReadConfig reads a JSON configuration file.
func ReadConfig(path string) (Config, error) {
	cfg := Config{Addr: ":8080", StreamInterval: 100}
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// App serves a network over HTTP.
type App struct {
	Net     *network.Network
	Metrics *metrics.Registry
	Config  Config

	upgrader websocket.Upgrader
}

// Router returns the routes of the app.
func (app *App) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", app.BaseHandler)
	r.HandleFunc("/comps", app.CompsHandler).Methods("GET")
	r.HandleFunc("/comps/{name}", app.CompHandler).Methods("GET")
	r.HandleFunc("/comps/{name}/failed", app.FlagHandler(setFailed)).Methods("PUT")
	r.HandleFunc("/comps/{name}/shorted", app.FlagHandler(setShorted)).Methods("PUT")
	r.HandleFunc("/comps/{name}/breaker", app.BreakerHandler).Methods("PUT")
	r.HandleFunc("/comps/{name}/tie", app.TieHandler).Methods("PUT")
	r.HandleFunc("/comps/{name}/battery", app.BatteryHandler).Methods("PUT")
	r.HandleFunc("/topology", app.TopologyHandler).Methods("GET")
	r.HandleFunc("/timefactor", app.TimeFactorHandler).Methods("GET", "PUT")
	r.HandleFunc("/start", app.StartHandler).Methods("POST")
	r.HandleFunc("/stop", app.StopHandler).Methods("POST")
	r.HandleFunc("/stream", app.StreamHandler)
	if app.Metrics != nil {
		r.Handle("/metrics", app.Metrics.Handler())
	}
	return r
}

// ListenAndServe serves until ctx is done.
func (app *App) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: app.Config.Addr, Handler: app.Router()}
	errc := make(chan error, 1)
	go func() {
		log.Println("[Webservice] Starting Server on", app.Config.Addr)
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
		log.Println("[Webservice] Server Shutdown")
		return nil
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("[Webservice] malformed JSON:", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{err.Error()})
}

func decode(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// BaseHandler reports the network name and run state.
func (app *App) BaseHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Network string `json:"network"`
		Started bool   `json:"started"`
		Tick    uint64 `json:"tick"`
	}{app.Net.Name(), app.Net.Started(), app.Net.Snapshot().Tick})
}

// CompsHandler lists the state of every component.
func (app *App) CompsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Net.Snapshot().Status())
}

// CompHandler returns the state of one component.
func (app *App) CompHandler(w http.ResponseWriter, r *http.Request) {
	cs, ok := app.Net.Snapshot().Find(mux.Vars(r)["name"])
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no such component"))
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// TopologyHandler returns the structure of the network.
func (app *App) TopologyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Net.Topology())
}

func (app *App) comp(w http.ResponseWriter, r *http.Request) (*network.Comp, bool) {
	c, ok := app.Net.FindByName(mux.Vars(r)["name"])
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no such component"))
	}
	return c, ok
}

type flagRequest struct {
	Value bool `json:"value"`
}

func setFailed(c *network.Comp, v bool)  { c.SetFailed(v) }
func setShorted(c *network.Comp, v bool) { c.SetShorted(v) }

// FlagHandler sets a fault flag of a component.
func (app *App) FlagHandler(set func(*network.Comp, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := app.comp(w, r)
		if !ok {
			return
		}
		req := flagRequest{}
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		set(c, req.Value)
		writeJSON(w, http.StatusAccepted, nil)
	}
}

type breakerRequest struct {
	Closed bool `json:"closed"`
}

// BreakerHandler opens or closes a breaker.
func (app *App) BreakerHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.comp(w, r)
	if !ok {
		return
	}
	b, ok := c.AsBreaker()
	if !ok {
		writeError(w, http.StatusConflict, network.ErrInvalidAccess)
		return
	}
	req := breakerRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	b.SetClosed(req.Closed)
	writeJSON(w, http.StatusAccepted, nil)
}

type tieRequest struct {
	Joined []string `json:"joined"`
}

// TieHandler sets the joined buses of a tie.
func (app *App) TieHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.comp(w, r)
	if !ok {
		return
	}
	tie, ok := c.AsTie()
	if !ok {
		writeError(w, http.StatusConflict, network.ErrInvalidAccess)
		return
	}
	req := tieRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := tie.SetJoined(req.Joined...); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, nil)
}

type batteryRequest struct {
	Charge *float64 `json:"charge"`
	Temp   *float64 `json:"temp"`
}

// BatteryHandler overrides the charge or temperature of a battery.
func (app *App) BatteryHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := app.comp(w, r)
	if !ok {
		return
	}
	batt, ok := c.AsBattery()
	if !ok {
		writeError(w, http.StatusConflict, network.ErrInvalidAccess)
		return
	}
	req := batteryRequest{}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Charge != nil {
		if err := batt.SetCharge(*req.Charge); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if req.Temp != nil {
		if err := batt.SetTemp(*req.Temp); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, nil)
}

type timeFactor struct {
	Factor float64 `json:"factor"`
}

// TimeFactorHandler reads or sets the ratio of simulated to wall time.
func (app *App) TimeFactorHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == "PUT" {
		req := timeFactor{}
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := app.Net.SetTimeFactor(req.Factor); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, timeFactor{app.Net.TimeFactor()})
}

// StartHandler starts the tick loop.
func (app *App) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !app.Net.Start() {
		if err := app.Net.Validate(); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusConflict, errors.New("network already started"))
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// StopHandler stops the tick loop.
func (app *App) StopHandler(w http.ResponseWriter, r *http.Request) {
	app.Net.Stop()
	writeJSON(w, http.StatusOK, nil)
}

// StreamHandler upgrades to a websocket and pushes the state of every
// component, at most once per StreamInterval.
func (app *App) StreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := app.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Webservice] upgrade:", err)
		return
	}
	defer conn.Close()

	pid, err := uuid.NewUUID()
	if err != nil {
		return
	}
	ch, err := app.Net.Subscribe(pid, msg.Status)
	if err != nil {
		conn.WriteJSON(errorResponse{err.Error()})
		return
	}
	defer app.Net.Unsubscribe(pid)

	// the client only ever closes
	closed := make(chan bool)
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := time.Duration(app.Config.StreamInterval) * time.Millisecond
	var last time.Time
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			snap, ok := m.Payload().(*network.Snapshot)
			if !ok || time.Since(last) < interval {
				continue
			}
			last = time.Now()
			if err := conn.WriteJSON(snap.Status()); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
