package sim

import "conclave.org/internal/game"

type Counter struct {
	Phases    int
	Days      int
	Abilities int
	Votes     int
	Guesses   int
	Grants    int
	Granted   int64
	// Rejected counts engine refusals by code. Bots guess, so some are expected.
	Rejected map[game.Code]int
	Final    game.Phase
	Events   []string
}

func (c *Counter) Reject(code game.Code) {
	if c.Rejected == nil {
		c.Rejected = make(map[game.Code]int)
	}
	c.Rejected[code]++
}

func (c Counter) Rejections() int {
	n := 0
	for _, v := range c.Rejected {
		n += v
	}
	return n
}
