// Command emulator stands in for the platform: it reports a random height and
// heading at a fixed interval until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/optical.position/internal/config"
	"github.com/banshee-data/optical.position/internal/feed"
	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/httputil"
)

var (
	target   = flag.String("target", "127.0.0.1"+config.DefaultPlatformListen, "UDP address of the tracker's platform feed")
	httpURL  = flag.String("http", "", "Post readings to this tracker base URL (e.g. http://localhost:8080) instead of UDP")
	interval = flag.Duration("interval", 5*time.Second, "Time between readings")
	count    = flag.Int("count", 0, "Stop after this many readings (0 runs until interrupted)")
)

// sender delivers one platform reading to the tracker.
type sender interface {
	Send(fusion.PlatformState) error
}

type udpSender struct {
	conn net.Conn
}

func (s udpSender) Send(state fusion.PlatformState) error {
	_, err := s.conn.Write([]byte(feed.FormatPlatformState(state)))
	return err
}

type httpSender struct {
	client httputil.HTTPClient
	url    string
}

func (s httpSender) Send(state fusion.PlatformState) error {
	return httputil.PostJSON(s.client, s.url, state)
}

// randomState picks a whole-metre height in [30, 40] and a whole-degree
// heading in [0, 360].
func randomState(r *rand.Rand) fusion.PlatformState {
	return fusion.PlatformState{
		HeightMeters:   float64(30 + r.Intn(11)),
		HeadingDegrees: float64(r.Intn(361)),
	}
}

// emulate sends a reading immediately and then every interval until ctx is
// done or n readings have been sent (n <= 0 means no limit). Send failures
// are logged and do not stop the loop.
func emulate(ctx context.Context, s sender, r *rand.Rand, interval time.Duration, n int) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		state := randomState(r)
		if err := s.Send(state); err != nil {
			log.Printf("failed to send reading: %v", err)
		} else {
			sent++
			log.Printf("sent height: %.0f m, heading: %.0f deg", state.HeightMeters, state.HeadingDegrees)
		}
		if n > 0 && sent >= n {
			return sent
		}

		select {
		case <-ctx.Done():
			return sent
		case <-ticker.C:
		}
	}
}

func newSender(target, baseURL string) (sender, func() error, error) {
	if baseURL != "" {
		url := strings.TrimRight(baseURL, "/") + "/api/state"
		client := &http.Client{Timeout: 5 * time.Second}
		return httpSender{client: client, url: url}, func() error { return nil }, nil
	}
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}
	return udpSender{conn: conn}, conn.Close, nil
}

func main() {
	flag.Parse()
	if *interval <= 0 {
		log.Fatal("interval must be positive")
	}

	s, closeFn, err := newSender(*target, *httpURL)
	if err != nil {
		log.Fatal(err)
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	sent := emulate(ctx, s, r, *interval, *count)
	fmt.Fprintf(os.Stderr, "Stopped after %d readings\n", sent)
}
