// Command calc runs the correction pipeline once for a single pixel offset and
// platform state and prints each intermediate result.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/optical.position/internal/fusion"
	"github.com/banshee-data/optical.position/internal/geometry"
)

type inputs struct {
	offset  geometry.PixelOffset
	height  float64
	heading float64
	camera  geometry.CameraConfig
}

func calculate(w io.Writer, in inputs) error {
	ground, err := geometry.PixelToReal(in.offset, in.height, in.camera)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Real coordinates: (%.2f, %.2f) meters\n", ground.XMeters, ground.YMeters)

	polar := geometry.RealToPolar(ground)
	fmt.Fprintf(w, "Azimuth to the target: %.2f degrees, distance: %.2f meters\n", polar.AzimuthDegrees, polar.DistanceMeters)

	bearing := fusion.RelativeBearing(polar.AzimuthDegrees, in.heading)
	fmt.Fprintf(w, "Bearing relative to platform heading: %.2f degrees\n", bearing)
	return nil
}

func main() {
	def := geometry.DefaultCameraConfig()
	var (
		x       = flag.Int("x", -100, "Pixel offset from the image centre along the width")
		y       = flag.Int("y", 180, "Pixel offset from the image centre along the height")
		height  = flag.Float64("height", 30, "Platform height above the target in meters")
		heading = flag.Float64("heading", 90, "Platform heading in degrees")
		fov     = flag.Float64("fov", def.DiagonalFOVDegrees, "Camera diagonal field of view in degrees")
		width   = flag.Int("width", def.ResolutionWidth, "Image width in pixels")
		imgH    = flag.Int("image-height", def.ResolutionHeight, "Image height in pixels")
	)
	flag.Parse()

	err := calculate(os.Stdout, inputs{
		offset:  geometry.PixelOffset{X: *x, Y: *y},
		height:  *height,
		heading: *heading,
		camera:  geometry.CameraConfig{DiagonalFOVDegrees: *fov, ResolutionWidth: *width, ResolutionHeight: *imgH},
	})
	if err != nil {
		log.Fatal(err)
	}
}
