package main

import (
	"io"
	"strconv"

	"github.com/pterm/pterm"
)

var rankColors = []pterm.Color{pterm.BgCyan, pterm.BgGreen, pterm.BgYellow, pterm.BgMagenta, pterm.BgBlue, pterm.BgRed}

// rankPrinter prefixes every line it prints with the label of rank, so that
// the interleaved output of the group stays readable.
func rankPrinter(w io.Writer, rank int) *pterm.PrefixPrinter {
	style := pterm.NewStyle(rankColors[rank%len(rankColors)], pterm.FgBlack)
	return pterm.Info.
		WithPrefix(pterm.Prefix{Text: "RANK " + strconv.Itoa(rank), Style: style}).
		WithMessageStyle(pterm.NewStyle(pterm.FgDefault)).
		WithWriter(w)
}
