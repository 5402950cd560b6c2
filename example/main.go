package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tinynet-io/mdnsd"
	"github.com/tinynet-io/mdnsd/internal/logx"
)

var debug = flag.Bool("debug", false, "Enable debug mode")

func main() {
	flag.Parse()

	if *debug {
		logx.SetDebug()
	}

	s, err := mdnsd.New("example")
	if err != nil {
		panic(err)
	}
	if err := s.Start(); err != nil {
		panic(err)
	}
	defer s.Stop()

	if err := s.ServiceAdd(mdnsd.Service{
		Type:  "_http",
		Proto: "_tcp",
		Port:  8080,
	}); err != nil {
		fmt.Println("Error registering service:", err)
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("mDNS server running. Press Ctrl+C to exit.")
	<-sig
}
