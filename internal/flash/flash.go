// Package flash keeps one-shot notifications in the cookie session until the
// next page renders them.
package flash

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	Success = "success"
	Error   = "error"
	Info    = "info"
)

// Message is one toast.
type Message struct {
	Level string
	Text  string
}

// Add queues a message for the next rendered page.
func Add(c *gin.Context, level, text string) {
	store := sessions.Default(c)
	store.AddFlash(level + "|" + text)
	_ = store.Save()
}

// Pop returns and clears the queued messages.
func Pop(c *gin.Context) []Message {
	store := sessions.Default(c)
	raw := store.Flashes()
	if len(raw) == 0 {
		return nil
	}
	_ = store.Save()
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			continue
		}
		level, text, found := strings.Cut(s, "|")
		if !found {
			level, text = Info, s
		}
		out = append(out, Message{Level: level, Text: text})
	}
	return out
}
