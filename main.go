package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wealthline/supportchat/bootstrap"
	"github.com/wealthline/supportchat/server"
)

func main() {
	var module string
	flag.StringVar(&module, "module", "server", "assign run module: server, init")
	flag.Parse()

	switch module {
	case "server":
		s, err := server.New()
		if err != nil {
			fmt.Printf("failed to start server: %v\n", err)
			os.Exit(1)
		}
		defer s.Close()
		if err := s.Run(); err != nil {
			fmt.Printf("server error: %v\n", err)
			os.Exit(1)
		}
		waitForSignal()

	case "init":
		if err := bootstrap.Run(); err != nil {
			fmt.Printf("database initialization failed: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Printf("error: unknown module %q! Available: server, init\n", module)
		os.Exit(1)
	}
}

// waitForSignal 阻塞直到收到退出信号
func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("\nshutting down...")
}
