package main

import (
	"fmt"
	"os"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
)

func main() {
	if err := App(config.Load).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
