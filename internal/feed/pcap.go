//go:build pcap
// +build pcap

package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/optical.position/internal/monitoring"
)

// ReadPCAPFile replays a capture of the tracker's UDP feeds. Each UDP payload
// whose destination port has a handler is split into lines and passed on, the
// same way UDPListener would. With realtime set, the original spacing between
// packets is preserved.
// This function is only available when building with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, handlers map[int]Handler, realtime bool) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := bpfFilter(handlers)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("PCAP BPF filter set: %s", filterStr)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	var lastCapture time.Time
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP replay stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				monitoring.Logf("PCAP replay complete: %d packets in %v", packetCount, time.Since(startTime))
				return nil
			}

			udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			handler := handlers[int(udp.DstPort)]
			if handler == nil {
				continue
			}
			packetCount++

			if realtime {
				ts := packet.Metadata().Timestamp
				if !lastCapture.IsZero() && ts.After(lastCapture) {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(ts.Sub(lastCapture)):
					}
				}
				lastCapture = ts
			}

			for _, line := range strings.Split(string(udp.Payload), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if err := handler(line); err != nil {
					monitoring.Logf("PCAP packet %d: rejected payload %q: %v", packetCount, line, err)
				}
			}
		}
	}
}
