package internal

import "github.com/urfave/cli/v3"

const (
	flagAPIID    = "api-id"
	flagAPIHash  = "api-hash"
	flagPhone    = "phone"
	flagHost     = "host"
	flagPort     = "port"
	flagDataDir  = "data-dir"
	flagLogLevel = "log-level"
	flagLogFile  = "log-file"
)

func apiIDFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:     flagAPIID,
		Usage:    "Telegram API ID",
		Sources:  cli.EnvVars("TELEGRAM_API_ID"),
		Required: true,
	}
}

func apiHashFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     flagAPIHash,
		Usage:    "Telegram API Hash",
		Sources:  cli.EnvVars("TELEGRAM_API_HASH"),
		Required: true,
	}
}

func phoneFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     flagPhone,
		Aliases:  []string{"p"},
		Usage:    "Phone number with country code (e.g., +1234567890)",
		Sources:  cli.EnvVars("TELEGRAM_PHONE_NUMBER"),
		Required: required,
	}
}

func hostFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    flagHost,
		Usage:   "Address to bind the MCP HTTP server to",
		Sources: cli.EnvVars("MCP_HOST"),
		Value:   "127.0.0.1",
	}
}

func portFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    flagPort,
		Usage:   "Port for the MCP HTTP server",
		Sources: cli.EnvVars("MCP_PORT"),
		Value:   8080,
	}
}

func dataDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    flagDataDir,
		Usage:   "Directory for the session file and the message archive",
		Sources: cli.EnvVars("DATA_DIR"),
		Value:   "./data",
	}
}

func logLevelFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    flagLogLevel,
		Usage:   "Log level: debug, info, warn or error",
		Sources: cli.EnvVars("LOG_LEVEL"),
		Value:   "info",
	}
}

func logFileFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    flagLogFile,
		Usage:   "Optional log file (rotated); logs always go to stderr as well",
		Sources: cli.EnvVars("LOG_FILE"),
	}
}
