// Command tracker serves the savings goal tracker web interface.
//
// Configuration comes from flags, environment, an optional JSON file and a
// .env file, see internal/config. Users and goals are kept in CSV files under
// the data directory unless a PostgreSQL DSN or in-memory mode is configured.
package main

import (
	"log"

	"github.com/patric-chuzhbe/savetrack/internal/app"
)

func main() {
	theApp, err := app.New()
	if err != nil {
		log.Printf("Unable to start: %v", err)
		return
	}
	defer theApp.Close()

	if err := theApp.Run(); err != nil {
		log.Printf("Stopped with error: %v", err)
	}
}
