package types

import (
	"fmt"
	"time"
)

const LineTimeLayout = "15:04:05"

type Line struct {
	Time  time.Time `json:"time"`
	Index int       `json:"index"`
	Total int       `json:"total"`
	Text  string    `json:"text"`
}

// Format renders the line as appended to the output file, newline included.
func (line *Line) Format() string {
	return fmt.Sprintf("[%s] 进度 %d/%d: %s\n", line.Time.Format(LineTimeLayout), line.Index, line.Total, line.Text)
}
