package natshandler

import (
	"encoding/json"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/elec_core/internal/pkg/msg"
	"github.com/ohowland/elec_core/internal/pkg/network"

	nats "github.com/nats-io/nats.go"
)

// Handler republishes network snapshots on a NATS server, one subject per
// component: <prefix>.<network>.<component>.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	Server string `json:"Server"`
	Prefix string `json:"Prefix"`
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

func redirectMsg(chIn <-chan msg.Msg, chOut chan<- msg.Msg) {
	for m := range chIn {
		chOut <- m
	}
}

// New reads the handler configuration and subscribes to system.
func New(configPath string, system msg.Publisher) (Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Handler{}, err
	}
	cfg := config{Server: nats.DefaultURL, Prefix: "elec"}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Handler{}, err
	}

	pid, err := uuid.NewUUID()
	if err != nil {
		return Handler{}, err
	}

	inbox := make(chan msg.Msg, 50)

	chStatus, err := system.Subscribe(pid, msg.Status)
	if err != nil {
		return Handler{}, err
	}
	go redirectMsg(chStatus, inbox)

	chConfig, err := system.Subscribe(pid, msg.Config)
	if err != nil {
		return Handler{}, err
	}
	go redirectMsg(chConfig, inbox)

	return Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		stop:   make(chan bool, 1),
	}, nil
}

// Stop ends Process.
func (h *Handler) Stop() {
	h.stop <- true
}

type record struct {
	subject string
	data    []byte
}

// encode turns a published message into NATS records.
func (h Handler) encode(m msg.Msg) ([]record, error) {
	switch m.Topic() {
	case msg.Status:
		snap, ok := m.Payload().(*network.Snapshot)
		if !ok {
			return nil, nil
		}
		status := snap.Status()
		out := make([]record, 0, len(status))
		for _, cs := range status {
			data, err := json.Marshal(cs)
			if err != nil {
				return nil, err
			}
			out = append(out, record{h.config.Prefix + "." + snap.Network + "." + cs.Name, data})
		}
		return out, nil

	case msg.Config:
		topo, ok := m.Payload().(network.Topology)
		if !ok {
			return nil, nil
		}
		data, err := json.Marshal(topo)
		if err != nil {
			return nil, err
		}
		return []record{{h.config.Prefix + "." + topo.Network + ".topology", data}}, nil
	}
	return nil, nil
}

// Process connects to the server and publishes until Stop.
func (h Handler) Process() error {
	log.Println("[NATS client] Process Started")
	nc, err := nats.Connect(h.config.Server)
	if err != nil {
		return err
	}
	defer nc.Close()

loop:
	for {
		select {
		case m := <-h.inbox:
			records, err := h.encode(m)
			if err != nil {
				log.Printf("[NATS client] unable to encode %v message: %v", m.Topic(), err)
				continue
			}
			for _, r := range records {
				if err := nc.Publish(r.subject, r.data); err != nil {
					log.Printf("[NATS client] unable to publish to nats server: %v", err)
				}
			}

		case <-h.stop:
			break loop
		}
	}
	log.Println("[NATS client] Process Shutdown")
	return nil
}
