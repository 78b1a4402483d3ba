// Package tenuki implements the REST and realtime game protocol of OGS
// (online-go.com) as a client library.
//
// A Client maintains exactly one authenticated session: it logs in over
// REST, keeps a framed websocket connection alive, mirrors the active game's
// moves, clock, captures and phase, and lets callers issue actions (move,
// pass, resign, undo, chat) whose effects are confirmed asynchronously by
// typed notices. The server is authoritative for everything; the client
// never decides move legality itself.
//
// Example usage:
//
//	client := tenuki.NewClient(tenuki.WithLogger(logger))
//	if err := client.Login(username, password); err != nil { ... }
//	if err := client.Connect(); err != nil { ... }
//
//	notices, cancel := client.Subscribe(32)
//	defer cancel()
//
//	client.ConnectGame(12345)
//	for n := range notices {
//		switch n.Kind {
//		case tenuki.EventGameData:
//			fmt.Printf("game: %s\n", n.Game)
//		case tenuki.EventMove:
//			fmt.Printf("move %d: %s\n", n.Move.MoveNumber, n.Move.Move.SGF())
//		}
//	}
//
//	client.Move(3, 3) // confirmed (or rejected) via a later notice
//
// See demo/ for a working minimal client program that can watch and play
// games.
package tenuki
