package main

import (
	"log/slog"

	"github.com/mossy-p/callroom/internal/logging"
)

func main() {
	logging.Init(slog.LevelError)
	Execute()
}
