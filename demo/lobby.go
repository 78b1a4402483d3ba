package main

import (
	"fmt"
	"log"

	tenuki "github.com/tenuki-go/tenuki"
)

// lobby watches the seek graph and prints the listing on every change.
func lobby() {
	client := newClient()
	if err := client.Connect(); err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	notices, cancel := client.Subscribe(32)
	defer cancel()

	connected := false
	for n := range notices {
		switch n.Kind {
		case tenuki.EventAuthenticated:
			if !connected {
				connected = true
				if err := client.ConnectLobby(); err != nil {
					log.Fatal(err)
				}
			}
		case tenuki.EventSeekGraph:
			challenges := client.Challenges()
			fmt.Printf("--- %d open challenges\n", len(challenges))
			for _, ch := range challenges {
				ranked := "free"
				if ch.Ranked {
					ranked = "ranked"
				}
				fmt.Printf("%8d %s [%dx%d %s %s] %s\n",
					ch.ChallengeID, ch.Username, ch.Width, ch.Height,
					ranked, ch.Rules, ch.TimeControl)
			}
		}
	}
}
