package main

import (
	"flag"
	"log"

	"github.com/nearwire/tether/internal/config"
)

func main() {
	kind := flag.String("kind", "station", "config kind: station|ctl")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}

		switch *kind {
		case "station":
			if _, err := config.LoadStationConfig(path); err != nil {
				log.Fatal(err)
			}
		case "ctl":
			if _, err := config.LoadCtlConfig(path); err != nil {
				log.Fatal(err)
			}
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "station":
		return "cmd/tetherd/config.toml"
	case "ctl":
		return config.DefaultCtlPath()
	}
	log.Fatalf("unknown kind: %s", kind)
	return ""
}
