package rcon

import (
	"regexp"
	"strconv"
	"strings"
)

type Player struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	ID    string `json:"id"`
}

var playerLine = regexp.MustCompile(`^\s*(\d+)\.\s*(.+),\s*([0-9A-Za-z]+)\s*$`)

// ParsePlayers reads a ListPlayers reply, one "N. Name, id" line per
// player. Any other line is ignored, including "No Players Connected".
func ParsePlayers(reply string) []Player {
	var out []Player
	for _, line := range strings.Split(reply, "\n") {
		m := playerLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, Player{Index: idx, Name: strings.TrimSpace(m[2]), ID: m[3]})
	}
	return out
}
