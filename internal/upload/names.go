package upload

import (
	"fmt"
	"sync/atomic"
	"time"
)

// timestampLayout renders like 10-16-2026-3-04-05-PM: safe in file names on
// every filesystem the backend writes to.
const timestampLayout = "1-2-2006-3-04-05-PM"

func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// Namer generates upload filenames. The raw photo counter is process-wide
// and never resets between sessions.
type Namer struct {
	counter atomic.Int64
	now     func() time.Time
}

func NewNamer() *Namer {
	return &Namer{now: time.Now}
}

// Raw names the next raw shot: photobooth<counter>@<timestamp><ext>.
func (n *Namer) Raw(ext string) string {
	c := n.counter.Add(1) - 1
	return fmt.Sprintf("photobooth%d@%s%s", c, Timestamp(n.now()), ext)
}

// Composite names a session's composite: photoboothComposite<session>@<timestamp>.png.
func (n *Namer) Composite(sessionIndex int) string {
	return fmt.Sprintf("photoboothComposite%d@%s.png", sessionIndex, Timestamp(n.now()))
}
