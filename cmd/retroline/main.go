package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"

	"github.com/folkengine/goname"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"

	"github.com/retroline/retroline/config"
	"github.com/retroline/retroline/globals"
	"github.com/retroline/retroline/persistence"
	"github.com/retroline/retroline/types"
	"github.com/retroline/retroline/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	store persistence.Store

	hubs     = make(map[string]*ws.Hub)
	hubsLock sync.RWMutex
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func() {
		<-c
		if store != nil {
			store.Close()
		}
		log.Fatal("interrupted!")
	}()

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)

	pflag.Parse()
	log.SetFlags(0)

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}

	store, err = persistence.NewStore(cfg)
	if err != nil {
		panic(err)
	}
	if store != nil {
		defer store.Close()
	}

	setupRoutes()
	globals.AppLogger.Info("listening", "addr", cfg.ListenAddr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(cfg.ListenAddr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(cfg.ListenAddr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

func setupRoutes() {
	router := mux.NewRouter()
	router.HandleFunc("/rooms/{room:[a-zA-Z0-9_-]+}", websocketHandler).Methods(http.MethodGet)
	http.Handle("/", router)
}

// getHub returns the running hub for a room id, starting one on first use.
// Whether the room itself exists is the hub's business (snapshot recovery
// or creation on first register).
func getHub(roomId string) *ws.Hub {
	hubsLock.RLock()
	if hub, ok := hubs[roomId]; ok {
		hubsLock.RUnlock()
		return hub
	}
	hubsLock.RUnlock()

	hubsLock.Lock()
	defer hubsLock.Unlock()
	if hub, ok := hubs[roomId]; ok {
		return hub
	}
	hub := ws.NewHub(roomId, store)
	hubs[roomId] = hub
	go hub.Run()
	return hub
}

// Handle incoming websockets
func websocketHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomId := vars["room"]
	if roomId == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	hub := getHub(roomId)

	vals := r.URL.Query()
	params := ws.Params{
		UserId:      vals.Get("userId"),
		UserName:    vals.Get("userName"),
		RoomName:    vals.Get("roomName"),
		Facilitator: vals.Get("isFacilitator") == "true",
	}
	if params.UserId == "" {
		params.UserId = uuid.NewString()
	}
	if params.UserName == "" {
		params.UserName = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}
	if rawPolls := vals.Get("polls"); rawPolls != "" {
		polls := make([]types.Poll, 0)
		if err := json.Unmarshal([]byte(rawPolls), &polls); err != nil {
			globals.AppLogger.Warn("ignoring malformed polls parameter", "error", err)
		} else {
			params.Polls = polls
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	globals.AppLogger.Debug("connection", "room", roomId, "user", params.UserName)

	client := ws.NewClient(hub, conn, params)
	hub.Register <- client
	go client.WriteLoop()
	// the read loop owns the connection teardown and unregisters from the
	// hub on exit
	client.ReadLoop()
	// hold the handler until the hub has processed the unregister
	<-client.Done()
}
