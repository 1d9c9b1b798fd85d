package server

import "fmt"

// Level selects how much of the protocol a server enforces. The three
// levels are points on one spectrum: LevelCredential presents a raw
// credential on every call, LevelMAC adds the token/sequence freshness
// check for a single implicit client, LevelSession is the full protocol
// with a session table and destination binding.
type Level int

const (
	LevelCredential Level = iota
	LevelMAC
	LevelSession
)

// ParseLevel parses the textual form used by flags and config.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "credential":
		return LevelCredential, nil
	case "mac":
		return LevelMAC, nil
	case "session":
		return LevelSession, nil
	default:
		return 0, fmt.Errorf("unknown security level %q", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelCredential:
		return "credential"
	case LevelMAC:
		return "mac"
	case LevelSession:
		return "session"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}
