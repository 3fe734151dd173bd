//go:build !pcap
// +build !pcap

package feed

import (
	"context"
	"fmt"
)

// ReadPCAPFile is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable capture replay.
func ReadPCAPFile(ctx context.Context, pcapFile string, handlers map[int]Handler, realtime bool) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to replay %s", pcapFile)
}
