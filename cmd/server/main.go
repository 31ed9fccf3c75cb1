// Command server runs MindAtlas's HTTP API: assistant chat over SSE and
// the retrieval endpoints.
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mindatlas/backend/internal/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}
