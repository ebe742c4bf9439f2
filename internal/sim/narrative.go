package sim

import (
	"context"
	"errors"
	"fmt"

	"conclave.org/internal/engine"
	"conclave.org/internal/narrator"
)

// Summarize asks n for an epilogue of a finished run.
func Summarize(ctx context.Context, n engine.Narrator, code string, c Counter) (string, error) {
	if n == nil {
		return "", errors.New("no narrator configured")
	}
	r := narrator.Recap{GameCode: code, Day: c.Days, Phase: "Epilogue"}
	r.Events = append(r.Events, c.Events...)
	r.Events = append(r.Events,
		fmt.Sprintf("%d abilities were used and %d ballots cast", c.Abilities, c.Votes),
		fmt.Sprintf("the treasury granted %d points in %d grants", c.Granted, c.Grants),
		fmt.Sprintf("the game ended in phase %s", c.Final),
	)
	return n.Narrate(ctx, r, nil)
}
