package server

// ANSI colours for the DEV route listing.
const (
	green      = "\033[32m"
	blue       = "\033[34m"
	gray       = "\033[90m"
	resetColor = "\033[0m"
)

// methodColors colours the methods the agent registers; anything else,
// including method-less patterns such as the proxy, is gray.
var methodColors = map[string]string{
	"GET":  green,
	"POST": blue,
}
