// Command worker runs MindAtlas's background indexing pipelines: the entry
// and attachment outbox workers and the attachment parse pipeline.
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mindatlas/backend/internal/workerapp"
)

func main() {
	if err := workerapp.Run(); err != nil {
		log.Error().Err(err).Msg("worker exited with error")
		os.Exit(1)
	}
}
