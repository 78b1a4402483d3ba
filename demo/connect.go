package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	tenuki "github.com/tenuki-go/tenuki"
)

func connect(args ...string) {
	if len(args) != 1 {
		log.Fatal("Syntax: connect <gameID>")
	}
	gameID, err := parseGameID(args[0])
	if err != nil {
		log.Fatal(err)
	}

	client := newClient()
	if err := client.Connect(); err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	notices, cancel := client.Subscribe(32)
	defer cancel()

	if err := client.ConnectGame(gameID); err != nil {
		log.Fatal(err)
	}

	var boardSize int
	for n := range notices {
		switch n.Kind {
		case tenuki.EventGameData:
			boardSize = n.Game.BoardSize()
			log.Printf("Connected to game %s", n.Game)
			if !n.Game.IsMyGame(client.UserID()) {
				log.Printf("Not your game, watching only")
			}
			redraw(client, gameID)

		case tenuki.EventMove:
			redraw(client, gameID)
			if clock := client.CurrentClock(); clock != nil {
				log.Printf("%s", clock)
			}
			if session := client.Session(); session != nil && myTurn(client, session) {
				if err := playMove(client, boardSize); err != nil {
					log.Printf("Failed to submit move: %v", err)
				}
			}

		case tenuki.EventUndoRequested:
			log.Printf("Undo requested for move %d", n.Undo.MoveNumber)

		case tenuki.EventPhaseChanged:
			log.Printf("Phase is now %q", n.Phase)

		case tenuki.EventGameEnded:
			if n.Score != nil {
				log.Printf("Game finished: %s", n.Score.Outcome)
			} else {
				log.Printf("Game finished")
			}
			return

		case tenuki.EventDisconnected:
			log.Printf("Disconnected, waiting for reconnect...")
		}
	}
}

func myTurn(client *tenuki.Client, session *tenuki.SessionInfo) bool {
	clock := client.CurrentClock()
	if clock == nil || session.MyColor == tenuki.PlayerUnknown {
		return false
	}
	return clock.Active == session.MyColor
}

func redraw(client *tenuki.Client, gameID int64) {
	state, err := client.GameState(gameID)
	if err != nil {
		log.Printf("failed to get GameState: %v", err)
		return
	}
	drawBoard(state)
}

func playMove(client *tenuki.Client, boardSize int) error {
	log.Printf(`Your turn. Enter a coordinate in "A1" format, "pass", "undo" or "resign"`)
	fmt.Print("> ")
	reader := bufio.NewReader(os.Stdin)
	op, _ := reader.ReadString('\n')
	op = strings.TrimSpace(strings.ToUpper(op))

	switch op {
	case "PASS":
		return client.Pass()
	case "RESIGN":
		return client.Resign()
	case "UNDO":
		return client.RequestUndo()
	default:
		a1, err := tenuki.NewA1Coordinate(op)
		if err != nil {
			return err
		}
		coord, err := a1.ToOriginCoordinate(boardSize)
		if err != nil {
			return err
		}
		return client.Move(coord.X, coord.Y)
	}
}

// Can also take a URL like https://online-go.com/game/123
func parseGameID(s string) (int64, error) {
	parts := strings.Split("/"+s, "/")
	last := parts[len(parts)-1]
	gameID, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to extract gameID from %q: %w", s, err)
	}
	return gameID, nil
}
