package main

import "time"

type Config struct {
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath             string        `env:"BLUGE_FILEPATH"`
	BufferSize                int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize      int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,required=true"`
	LimitMessages             *int          `env:"LIMIT_MESSAGES"`
	AuthMode                  string        `env:"AUTH_MODE,default=insecure"`
	WebsocketAPIKey           string        `env:"WEBSOCKET_API_KEY"`
	TokenSecret               string        `env:"TOKEN_SECRET"`
	CensoredWordsPath         string        `env:"CENSORED_WORDS_PATH"`
	ModerationCharReplacement rune          `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
	RelaySenderDevices        bool          `env:"RELAY_SENDER_DEVICES,default=true"`
}
