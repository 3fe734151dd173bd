package tracking

import (
	"context"

	"github.com/banshee-data/optical.position/internal/feed"
	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/geometry"
)

// PlatformFeed returns a feed handler that parses platform payloads onto ch.
func PlatformFeed(ctx context.Context, ch chan<- fusion.PlatformState) feed.Handler {
	return func(payload string) error {
		state, err := feed.ParsePlatformState(payload)
		if err != nil {
			return err
		}
		select {
		case ch <- state:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PixelFeed returns a feed handler that parses pixel payloads onto ch.
func PixelFeed(ctx context.Context, ch chan<- geometry.PixelOffset) feed.Handler {
	return func(payload string) error {
		offset, err := feed.ParsePixelOffset(payload)
		if err != nil {
			return err
		}
		select {
		case ch <- offset:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
