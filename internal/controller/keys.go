package controller

import "strings"

// Key is a decoded user command.
type Key int

const (
	KeyUnknown Key = iota
	KeySpace
	KeyLeft
	KeyRight
	KeyReset
	KeyRender
	KeyRemove
	KeyQuit
)

var keyNames = map[Key]string{
	KeyUnknown: "unknown",
	KeySpace:   "space",
	KeyLeft:    "left",
	KeyRight:   "right",
	KeyReset:   "reset",
	KeyRender:  "render",
	KeyRemove:  "remove",
	KeyQuit:    "quit",
}

func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return "unknown"
}

var letterKeys = map[byte]Key{
	'r': KeyReset,
	'v': KeyRender,
	'x': KeyRemove,
	'q': KeyQuit,
}

// ParseKey maps a key name to a Key. It accepts the names returned by
// String, the browser-style names ArrowLeft, ArrowRight and Space, and the
// single letters bound in the terminal.
func ParseKey(name string) (Key, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "space", " ":
		return KeySpace, true
	case "left", "arrowleft":
		return KeyLeft, true
	case "right", "arrowright":
		return KeyRight, true
	case "reset", "r":
		return KeyReset, true
	case "render", "v":
		return KeyRender, true
	case "remove", "x":
		return KeyRemove, true
	case "quit", "q":
		return KeyQuit, true
	}
	return KeyUnknown, false
}

// DecodeKeys parses raw terminal input. Arrow keys arrive as ESC [ C and
// ESC [ D (or ESC O C/D in application mode); Ctrl-C quits. Unbound bytes are
// skipped.
func DecodeKeys(b []byte) []Key {
	var keys []Key
	for i := 0; i < len(b); i++ {
		switch c := b[i]; c {
		case 0x1b:
			if i+2 < len(b) && (b[i+1] == '[' || b[i+1] == 'O') {
				switch b[i+2] {
				case 'C':
					keys = append(keys, KeyRight)
				case 'D':
					keys = append(keys, KeyLeft)
				}
				i += 2
			}
		case ' ':
			keys = append(keys, KeySpace)
		case 0x03:
			keys = append(keys, KeyQuit)
		default:
			if k, ok := letterKeys[c|0x20]; ok {
				keys = append(keys, k)
			}
		}
	}
	return keys
}
