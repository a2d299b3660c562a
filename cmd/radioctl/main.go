package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bgvfd/radiod/pkg/client"
)

var (
	socketPath = flag.String("socket", "/tmp/radiod.sock", "Unix socket path")
	command    = flag.String("cmd", "", "Command to send (e.g., 'status', 'fm 154.1075')")
)

func main() {
	flag.Parse()

	if *socketPath == "" {
		fmt.Fprintf(os.Stderr, "Socket path is required\n")
		os.Exit(1)
	}

	// If no command specified, show interactive help
	if *command == "" {
		if len(flag.Args()) > 0 {
			*command = strings.Join(flag.Args(), " ")
		} else {
			showHelp()
			return
		}
	}

	// Create socket client
	client := client.NewSocketClient(*socketPath)

	// Send command
	response, err := client.SendCommand(*command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Print response
	fmt.Printf("%s\n", response.String())
}

func showHelp() {
	fmt.Println("radioctl - Radio Daemon Control Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -socket <path>    Unix socket path (default: /tmp/radiod.sock)")
	fmt.Println("  -cmd <command>    Command to send")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status                    Get radio status")
	fmt.Println("  join                      Start streaming")
	fmt.Println("  fm <mhz>                  Tune to a frequency in MHz")
	fmt.Println("  preset <name>             Tune to a named preset")
	fmt.Println("  listpresets               List configured presets")
	fmt.Println("  mode <nfm|wfm>            Switch demodulation mode")
	fmt.Println("  vol <0-2>                 Set output volume")
	fmt.Println("  squelch <threshold>       Set squelch threshold")
	fmt.Println("  gain <db>                 Set tuner RF gain")
	fmt.Println("  history [n]               Show recent tuning history")
	fmt.Println("  stop                      Stop streaming")
	fmt.Println("  ping                      Test connection")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s status\n", os.Args[0])
	fmt.Printf("  %s 'fm 154.1075'\n", os.Args[0])
	fmt.Printf("  %s preset navfire\n", os.Args[0])
	fmt.Printf("  echo 'status' | nc -U /tmp/radiod.sock\n")
}
