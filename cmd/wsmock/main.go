// wsmock is a development stand-in for the request stream peer. It serves
// a websocket endpoint, pushes a sample conversion request on a fixed
// period with a randomized event date, keeps the heartbeat exchange going
// and prints every reply it gets back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"stakeflow/internal/protocol"
	"stakeflow/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var nextTransactionID atomic.Int64

func main() {
	addr := flag.String("addr", "localhost:8765", "Listen address")
	period := flag.Duration("period", 60*time.Second, "Delay between generated requests")
	heartbeat := flag.Duration("heartbeat", time.Second, "Heartbeat send interval")
	flag.Parse()

	log := logger.GetLogger().WithComponent("wsmock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("upgrade failed")
			return
		}
		serveClient(ctx, ws, *period, *heartbeat)
	})

	server := &http.Server{Addr: *addr}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.WithFields(logger.Fields{"addr": *addr, "period": period.String()}).Info("mock peer listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Error("server failed")
		os.Exit(1)
	}
}

func serveClient(ctx context.Context, ws *websocket.Conn, period, heartbeat time.Duration) {
	log := logger.GetLogger().WithComponent("wsmock").WithFields(logger.Fields{"client": ws.RemoteAddr().String()})
	log.Info("client connected")
	defer func() {
		_ = ws.Close()
		log.Info("client disconnected")
	}()

	clientCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writes := make(chan interface{}, 16)

	go func() {
		hbTicker := time.NewTicker(heartbeat)
		reqTicker := time.NewTicker(period)
		defer hbTicker.Stop()
		defer reqTicker.Stop()
		for {
			select {
			case <-clientCtx.Done():
				return
			case <-hbTicker.C:
				writes <- protocol.NewHeartbeat()
			case <-reqTicker.C:
				writes <- sampleRequest()
			}
		}
	}()

	go func() {
		for {
			select {
			case <-clientCtx.Done():
				return
			case frame := <-writes:
				data, err := json.Marshal(frame)
				if err != nil {
					log.WithError(err).Warn("marshal failed")
					continue
				}
				if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	heartbeatsSeen := 0
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			cancel()
			return
		}
		if protocol.IsHeartbeat(data) {
			heartbeatsSeen++
			if heartbeatsSeen%60 == 0 {
				log.WithFields(logger.Fields{"count": heartbeatsSeen}).Debug("heartbeats received")
			}
			continue
		}
		fmt.Printf("reply: %s\n", data)
	}
}

// sampleRequest fabricates a conversion request with a random recent
// event date so consecutive requests exercise different cache days.
func sampleRequest() protocol.Request {
	date := time.Now().UTC().AddDate(0, 0, -rand.Intn(30))
	return protocol.Request{
		Type: protocol.TypeMessage,
		ID:   nextTransactionID.Add(1),
		Payload: protocol.Payload{
			MarketID:    123,
			SelectionID: 456,
			Odds:        1.5,
			Stake:       200.0,
			Currency:    "USD",
			Date:        protocol.EventTime{Time: date},
		},
	}
}
