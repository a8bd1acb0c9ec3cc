package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	// CharReplacement masks censored words in flagged messages.
	CharReplacement string `env:"CHARACTER_REPLACEMENT,required=true"`

	SinkBufferSize int `env:"SINK_BUFFER_SIZE,required=true"`

	DispatchTick    time.Duration `env:"DISPATCH_TICK,required=true"`
	SendTimeout     time.Duration `env:"SEND_TIMEOUT,required=true"`
	FlushTimeout    time.Duration `env:"FLUSH_TIMEOUT,required=true"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,required=true"`

	// DebugPort serves the badger row inspector when > 0. Dev only.
	DebugPort int `env:"DEBUG_PORT"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
