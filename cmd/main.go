package main

import (
	"log"

	"github.com/jaennil/tileproxy/internal/app"
	"github.com/jaennil/tileproxy/pkg/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	app.Run(cfg)
}
