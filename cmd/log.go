package cmd

import (
	"fmt"
	"time"
)

// Log prints the most recent journal entries, newest first.
func Log(opts Options, n int) {
	if n <= 0 {
		n = 20
	}

	v := OpenVault(opts)
	defer v.Close()

	events, err := v.Journal().Recent(n)
	if err != nil {
		HandleError(err)
	}

	if len(events) == 0 {
		fmt.Println("journal is empty")
		return
	}

	for _, ev := range events {
		line := fmt.Sprintf("%s [%s] %s", ev.Time.Format(time.RFC3339), ev.Level, ev.Event)
		if ev.ProfileID != "" {
			line += fmt.Sprintf(" (%s)", ev.ProfileID)
		}
		if ev.Detail != "" {
			line += ": " + ev.Detail
		}
		fmt.Println(line)
	}
}
