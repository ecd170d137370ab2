package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcurtis22/triviarena/go/internal/dbconfig"
)

// Question mirrors the JSON snapshot structure
type Question struct {
	Prompt     string `json:"prompt"`
	Answer     string `json:"answer"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Reward     int    `json:"reward"`
}

func main() {
	// 1) Load the JSON snapshot
	data, err := os.ReadFile("go/internal/assets/questions.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	var (
		total    = len(questions)
		inserted int
		skipped  int
		errs     int
	)

	for _, q := range questions {
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO questions (
              id, prompt, answer, category, difficulty, reward, used
            ) VALUES (
              $1,$2,$3,$4,$5,$6,FALSE
            )
            ON CONFLICT (prompt) DO NOTHING
        `,
			uuid.New(), q.Prompt, q.Answer, q.Category, q.Difficulty, q.Reward,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting question %q: %v\n", q.Prompt, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Questions seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
