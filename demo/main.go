// Package main offers a minimal terminal client mainly to showcase usage of
// the tenuki package, as well as serving as a debug tool for developing it.
//
// Credentials are read from the environment (or a .env file):
//
//	OGS_USERNAME=...
//	OGS_PASSWORD=...
package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	tenuki "github.com/tenuki-go/tenuki"
)

var verbose = flag.Bool("v", false, "verbose protocol logging")

const usage = `Typical usage:

  export OGS_USERNAME=you OGS_PASSWORD=secret   # or put them in .env

  go run ./demo overview                # show my active games
  go run ./demo lobby                   # watch the seek graph
  go run ./demo connect 123             # connect to a game to watch or play
  go run ./demo rest /api/v1/players/1  # debug rest API (shows user profile)
`

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		log.Fatalf("Insufficient parameters, %s", usage)
	}

	cmd := flag.Args()[0]
	args := flag.Args()[1:]

	switch cmd {
	case "overview":
		overview()
	case "lobby":
		lobby()
	case "connect":
		connect(args...)
	case "rest":
		rest(args...)
	default:
		log.Fatalf("Invalid parameters, %s", usage)
	}
}

func newClient() *tenuki.Client {
	godotenv.Load() // .env is optional

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatal(err)
		}
	}

	client := tenuki.NewClient(tenuki.WithLogger(logger))
	err := client.Login(os.Getenv("OGS_USERNAME"), os.Getenv("OGS_PASSWORD"))
	if err != nil {
		log.Fatal(err)
	}
	return client
}
