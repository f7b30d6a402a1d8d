package main

import (
	"flag"
	"log"
	"time"

	"landkeeper/config"
	"landkeeper/ids"
	"landkeeper/keeper"
	"landkeeper/land"
	"landkeeper/tabletop"
	"landkeeper/transport"
	"landkeeper/wire"
	"landkeeper/wsserver"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (defaults used if omitted or unreadable)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		cfg = config.Load(*configPath)
	}

	manager := land.NewManagerWithLimit(cfg.MaxLands)
	server := wsserver.NewLandServer(cfg, manager)

	msgCodec, ok := wire.ByName(cfg.DefaultEncoding)
	if !ok {
		log.Printf("landkeeper: unknown defaultEncoding %q, falling back to json", cfg.DefaultEncoding)
		msgCodec = wire.NewJSONCodec()
	}

	server.Router().RegisterLandType("tabletop", func(landID ids.LandID) land.Adapter {
		k := keeper.New(landID, tabletop.Definition(), tabletop.NewState())
		return transport.NewAdapter(
			landID,
			k,
			server,
			msgCodec,
			msgCodec,
			time.Duration(cfg.JoinTimeoutMS)*time.Millisecond,
			cfg.EnableLegacyJoin,
			cfg.MaxPlayersPerLand,
			nil,
		)
	})

	log.Fatal(server.Run())
}
