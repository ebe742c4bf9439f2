package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"conclave.org/internal/catalog"
	"conclave.org/internal/config"
	"conclave.org/internal/engine"
	"conclave.org/internal/narrator"
	"conclave.org/internal/sim"
	"conclave.org/internal/store/mem"
)

func main() {
	var (
		games    = flag.Int("games", 1, "Concurrent games to play")
		days     = flag.Int("days", 3, "Days before the host ends each game")
		seed     = flag.Int64("seed", 0, "Seed for bot choices (0 = random)")
		provider = flag.String("narrator", os.Getenv("CONCLAVE_NARRATOR_PROVIDER"), "Narrator provider for the epilogue (ollama, openai)")
		model    = flag.String("model", "llama3.2", "Narrator model")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n, err := narrator.New(*provider, *model, os.Getenv("CONCLAVE_NARRATOR_URL"))
	if err != nil {
		config.Exitf("narrator: %v", err)
	}

	cat := catalog.Default()
	eng := engine.New(mem.New(), cat, engine.WithPolling(10*time.Millisecond, 3))

	scenario := sim.CouncilScenario()
	scenario.Days = *days

	log.Printf("Launching simulation: games=%d days=%d players=%d", *games, *days, len(scenario.Players))

	var (
		finished int64
		failed   int64
		wg       sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < *games; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s := *seed
			if s != 0 {
				s += int64(id * 9973)
			}
			runner := sim.NewRunner(eng, sim.NewGenerator(cat, s), func(format string, args ...any) {
				log.Printf("[game %d] "+format, append([]any{id}, args...)...)
			})
			code, c, err := runner.Run(ctx, scenario)
			if err != nil {
				atomic.AddInt64(&failed, 1)
				log.Printf("[game %d] %s failed: %v", id, code, err)
				return
			}
			atomic.AddInt64(&finished, 1)
			log.Printf("[game %d] %s finished: phases=%d days=%d abilities=%d votes=%d guesses=%d grants=%d rejected=%v",
				id, code, c.Phases, c.Days, c.Abilities, c.Votes, c.Guesses, c.Grants, c.Rejected)

			if n == nil {
				return
			}
			story, err := sim.Summarize(ctx, n, code, c)
			if err != nil {
				log.Printf("[game %d] epilogue error: %v", id, err)
				return
			}
			log.Printf("[game %d] epilogue: %s", id, story)
		}(i)
	}
	wg.Wait()

	log.Printf("Run complete in %s: %d finished / %d failed", time.Since(start).Round(time.Millisecond), finished, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
