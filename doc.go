/*
Package svgif converts animated SVG images into looping GIF animations.

The image is rendered on a drawing surface over a fixed time window, the
rendered frames are recorded into an intermediate PNG stream, which is then
transcoded with a two-pass encode: the first pass computes the optimal palette
of the whole animation, the second one maps every frame onto that palette.

The package provides a command line interface, supporting various flags to
tune the capture and the encoding. To check the supported commands type:

	$ svgif --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"context"
		"fmt"

		"github.com/esimov/svgif"
		"github.com/esimov/svgif/config"
	)

	func main() {
		cfg, err := config.Profile("preview")
		if err != nil {
			panic(err)
		}
		cfg.Duration = 3

		c, err := svgif.New(svgif.Options{Config: cfg})
		if err != nil {
			panic(err)
		}
		defer c.Close()

		res, err := c.Convert(context.Background(), "spinner.svg")
		if err != nil {
			fmt.Printf("Error converting image: %s", err.Error())
			return
		}
		if err := res.Save("spinner.gif"); err != nil {
			fmt.Printf("Error saving the animation: %s", err.Error())
		}
	}
*/
package svgif
