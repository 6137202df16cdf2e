package main

import (
	"log"
	"os"
	stdos "os"
)

type logger struct{}

func (logger) Fatal(...interface{}) {}

func helper() {
	os.Exit(2)
	log.Fatal("allowed outside main.main")
}

func main() {
	defer helper()

	os.Exit(1)            // want `os.Exit in main.main skips deferred calls, return instead`
	stdos.Exit(1)         // want `os.Exit in main.main skips deferred calls, return instead`
	log.Fatal("boom")     // want `log.Fatal in main.main skips deferred calls, return instead`
	log.Fatalf("%d", 1)   // want `log.Fatalf in main.main skips deferred calls, return instead`
	log.Fatalln("boom")   // want `log.Fatalln in main.main skips deferred calls, return instead`
	log.Printf("fine")

	var l logger
	l.Fatal("method with the same name is fine")

	func() {
		os.Exit(3) // want `os.Exit in main.main skips deferred calls, return instead`
	}()
}
