// people-watch connects to the perception websocket and prints who the
// robot currently sees.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-perception/internal/config"
	"github.com/teslashibe/go-perception/internal/log"
	"github.com/teslashibe/go-perception/internal/retry"
	"github.com/teslashibe/go-perception/pkg/perception"
	"github.com/teslashibe/go-perception/pkg/protocol"
)

func main() {
	_ = config.LoadDotEnv()
	defaultURL := "ws://127.0.0.1:" + config.String("API_PORT", config.DefaultAPIPort) + "/ws/perception"

	url := flag.String("url", defaultURL, "Perception websocket URL")
	raw := flag.Bool("raw", false, "Print raw JSON messages")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backoff := retry.Config{Delay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
	attempt := 0
	for {
		started := time.Now()
		err := watch(ctx, *url, *raw)
		if ctx.Err() != nil {
			return
		}
		// A connection that stayed up a while starts the backoff over.
		if time.Since(started) > backoff.MaxDelay {
			attempt = 0
		}
		attempt++
		delay := retry.Backoff(attempt, backoff)
		log.Warn("connection lost", "error", err, "retry_in", delay)
		if retry.Sleep(ctx, delay) != nil {
			return
		}
	}
}

// watch prints messages until the connection drops.
func watch(ctx context.Context, url string, raw bool) error {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()
	log.Info("connected", "url", url)

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if raw {
			fmt.Println(string(data))
			continue
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			log.Debug("skipping malformed message", "error", err)
			continue
		}
		switch msg.Type {
		case protocol.TypePeople:
			var state perception.State
			if err := msg.ParseData(&state); err != nil {
				log.Debug("bad people message", "error", err)
				continue
			}
			fmt.Fprintln(os.Stdout, formatState(state))
		case protocol.TypeSettings:
			log.Info("settings received")
		case protocol.TypeError:
			if e, err := msg.GetErrorData(); err == nil {
				log.Warn("server error", "message", e.Message)
			}
		}
	}
}

func formatState(s perception.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] head yaw=%.1f pitch=%.1f (%d ms)",
		time.UnixMilli(s.Timestamp).Format("15:04:05.000"), s.HeadAngles.Yaw, s.HeadAngles.Pitch, s.Timing.UpdateMs)
	if len(s.People) == 0 {
		b.WriteString(" nobody")
	}
	for _, p := range s.People {
		dist := "?"
		if p.Distance > 0 {
			dist = fmt.Sprintf("%.2fm", p.Distance)
		}
		looking := ""
		if p.LookingAtRobot {
			looking = " looking"
		}
		fmt.Fprintf(&b, "\n  #%d %-12s yaw=%6.1f pitch=%5.1f %s (%s)%s",
			p.ID, p.Name, p.WorldYaw, p.WorldPitch, dist, p.DistanceCategory, looking)
	}
	return b.String()
}
