package mongodb

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/elec_core/internal/pkg/msg"
	"github.com/ohowland/elec_core/internal/pkg/network"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	statusCollection = "compStatus"
	configCollection = "compConfig"
)

// Handler upserts one document per component into MongoDB.
type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config
	stop   chan bool
}

type config struct {
	URI      string `json:"URI"`
	Database string `json:"Database"`
	Port     string `json:"Port"`
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
	cfg := config{}
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

// URI is the server address with its port.
func (h Handler) URI() string {
	if h.config.Port == "" {
		return h.config.URI
	}
	return h.config.URI + ":" + h.config.Port
}

func filter(networkName, name string) bson.M {
	return bson.M{"network": networkName, "name": name}
}

func statusToBSON(networkName string, cs network.CompStatus) bson.D {
	//TODO: PID should be written as a binary of subtype 0x04 (UUID standard).
	// currently written as a string.
	return bson.D{
		{Key: "$set", Value: bson.M{
			"network":     networkName,
			"name":        cs.Name,
			"pid":         cs.PID.String(),
			"type":        cs.Type,
			"in_volts":    cs.InVolts,
			"out_volts":   cs.OutVolts,
			"in_amps":     cs.InAmps,
			"out_amps":    cs.OutAmps,
			"in_freq":     cs.InFreq,
			"out_freq":    cs.OutFreq,
			"in_pwr":      cs.InPwr,
			"out_pwr":     cs.OutPwr,
			"incap_volts": cs.IncapVolts,
			"failed":      cs.Failed,
			"shorted":     cs.Shorted,
		}},
	}
}

func configToBSON(networkName string, cc network.CompConfig) bson.D {
	return bson.D{
		{Key: "$set", Value: bson.M{
			"network": networkName,
			"name":    cc.Name,
			"pid":     cc.PID.String(),
			"type":    cc.Type,
			"ac":      cc.AC,
			"autogen": cc.Autogen,
			"conns":   cc.Conns,
		}},
	}
}

// Stop ends Process.
func (h *Handler) Stop() {
	h.stop <- true
}

// Process connects to the server and writes until Stop.
func (h Handler) Process() error {
	//TODO: Handle reconnection to the MongoDB resource
	client, err := mongo.NewClient(options.Client().ApplyURI(h.URI()))
	if err != nil {
		return err
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	db := client.Database(h.config.Database)
	opts := options.Update().SetUpsert(true)

loop:
	for {
		select {
		case m := <-h.inbox:
			switch p := m.Payload().(type) {
			case *network.Snapshot:
				for _, cs := range p.Status() {
					_, err := db.Collection(statusCollection).UpdateOne(
						ctx, filter(p.Network, cs.Name), statusToBSON(p.Network, cs), opts)
					if err != nil {
						log.Printf("[Mongo] status %s: %v", cs.Name, err)
					}
				}

			case network.Topology:
				log.Println("[Mongo] Config:", p.Network)
				for _, cc := range p.Comps {
					_, err := db.Collection(configCollection).UpdateOne(
						ctx, filter(p.Network, cc.Name), configToBSON(p.Network, cc), opts)
					if err != nil {
						log.Printf("[Mongo] config %s: %v", cc.Name, err)
					}
				}
			}

		case <-h.stop:
			break loop
		}
	}
	log.Println("[Mongo] Process Shutdown")
	return nil
}
