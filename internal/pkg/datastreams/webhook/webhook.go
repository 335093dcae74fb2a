package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/elec_core/internal/pkg/msg"
	"github.com/ohowland/elec_core/internal/pkg/network"
)

// Handler posts the status of every component to a remote HTTP service at
// <URL>/networks/<network>/comps/<component>/status.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	client *http.Client
	stop   chan bool
}

type config struct {
	URL     string `json:"URL"`
	Timeout int    `json:"Timeout"` // ms
	// Every posts one snapshot in Every, 1 posts them all.
	Every int `json:"Every"`
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

// New reads the handler configuration and subscribes to system status.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{Timeout: 1000, Every: 1}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return Handler{}, err
	}
	if cfg.Every < 1 {
		cfg.Every = 1
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Handler{}, err
	}
	inbox, err := system.Subscribe(pid, msg.Status)
	if err != nil {
		return Handler{}, err
	}

	return Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Millisecond},
		stop:   make(chan bool, 1),
	}, nil
}

// Stop ends Process.
func (h *Handler) Stop() {
	h.stop <- true
}

func (h Handler) target(networkName, comp string) string {
	return h.config.URL + "/networks/" + url.PathEscape(networkName) +
		"/comps/" + url.PathEscape(comp) + "/status"
}

// post sends the status of every component in snap.
func (h Handler) post(snap *network.Snapshot) error {
	for _, cs := range snap.Status() {
		data, err := json.Marshal(cs)
		if err != nil {
			return err
		}
		resp, err := h.client.Post(h.target(snap.Network, cs.Name), "application/json", bytes.NewBuffer(data))
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("post %s status: %s", cs.Name, resp.Status)
		}
	}
	return nil
}

// Process posts snapshots until Stop.
func (h Handler) Process() error {
	log.Println("[Webhook Handler] Process Started")
	n := 0
loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			snap, ok := m.Payload().(*network.Snapshot)
			if !ok {
				continue
			}
			n++
			if n%h.config.Every != 0 {
				continue
			}
			if err := h.post(snap); err != nil {
				log.Println("[Webhook Handler]", err)
			}
		case <-h.stop:
			break loop
		}
	}
	log.Println("[Webhook Handler] Process Shutdown")
	return nil
}
