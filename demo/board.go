package main

import (
	"fmt"

	tenuki "github.com/tenuki-go/tenuki"
)

const (
	// Full-width characters for stones and grid
	gridChar   = "〸"
	blackStone = "⚫"
	whiteStone = "⚪"

	// 24-bit color codes: https://en.wikipedia.org/wiki/ANSI_escape_code#24-bit
	gridFG      = "\033[38;2;31;31;31m"    // #1f1f1f (grey)
	boardBG     = "\033[48;2;124;76;56m"   // #7c4c38 (reddish-brown)
	lastBlackBG = "\033[48;2;230;230;230m" // last black move highlight
	lastWhiteBG = "\033[48;2;204;0;0m"     // last white move highlight
	reset       = "\033[0m"
)

func cellContent(g *tenuki.GameState, row, col int) string {
	fg := gridFG
	bg := boardBG
	content := gridChar
	switch g.Board[row][col] {
	case 1:
		content = blackStone
		if g.LastMove.X == col && g.LastMove.Y == row {
			bg = lastBlackBG
		}
	case 2:
		content = whiteStone
		if g.LastMove.X == col && g.LastMove.Y == row {
			bg = lastWhiteBG
		}
	}
	return fmt.Sprintf("%s%s%s%s", fg, bg, content, reset)
}

func colLabel(col int) rune {
	letter := 'Ａ' + rune(col) // Full-width Latin capital A
	if col >= 8 {              // Skip 'I'
		letter += 1
	}
	return letter
}

func drawBoard(g *tenuki.GameState) {
	size := g.BoardSize()

	printColLabels(size)
	for row := 0; row < size; row++ {
		// Side coordinate labels (19, 18, .., 1)
		fmt.Printf("%2d ", size-row)
		for col := 0; col < size; col++ {
			fmt.Print(cellContent(g, row, col))
		}
		fmt.Printf(" %-2d\n", size-row)
	}
	printColLabels(size)
}

// Coordinate labels (A, B, C, ... skipping I), 3-char offset to clear the
// row numbers.
func printColLabels(size int) {
	fmt.Printf("%3s", " ")
	for c := 0; c < size; c++ {
		fmt.Printf("%c", colLabel(c))
	}
	fmt.Println()
}
