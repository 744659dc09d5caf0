package internal

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tgarchive/mcp-telegram-archive/internal/server"
	"github.com/tgarchive/mcp-telegram-archive/internal/tgclient"
)

// Version contains semantic version number of application.
var Version = "dev"

const serviceName = "mcp-telegram-archive"

// New creates a new instance of application.
func New(in io.Reader, out, errOut io.Writer) *cli.Command {
	return &cli.Command{
		Name:      serviceName,
		Version:   Version,
		Usage:     "MCP server exposing a Telegram account with a background message archiver",
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the MCP server",
				Flags: []cli.Flag{
					apiIDFlag(),
					apiHashFlag(),
					phoneFlag(false),
					hostFlag(),
					portFlag(),
					dataDirFlag(),
					logLevelFlag(),
					logFileFlag(),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					log, err := newLogger(cmd.String(flagLogLevel), cmd.String(flagLogFile))
					if err != nil {
						return err
					}
					defer func() { _ = log.Sync() }()

					cfg := server.Config{
						Telegram: tgclient.Config{
							APIID:   int(cmd.Int(flagAPIID)),
							APIHash: cmd.String(flagAPIHash),
							Phone:   cmd.String(flagPhone),
							DataDir: cmd.String(flagDataDir),
						},
						Host:    cmd.String(flagHost),
						Port:    int(cmd.Int(flagPort)),
						DataDir: cmd.String(flagDataDir),
						Version: Version,
					}
					srv := server.New(cfg, log)
					return srv.Run(ctx)
				},
			},
			{
				Name:  "login",
				Usage: "Login to Telegram",
				Flags: []cli.Flag{
					apiIDFlag(),
					apiHashFlag(),
					phoneFlag(true),
					dataDirFlag(),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := tgclient.Config{
						APIID:   int(cmd.Int(flagAPIID)),
						APIHash: cmd.String(flagAPIHash),
						Phone:   cmd.String(flagPhone),
						DataDir: cmd.String(flagDataDir),
					}
					return tgclient.Login(ctx, cfg)
				},
			},
			{
				Name:  "logout",
				Usage: "Logout from Telegram and wipe the stored session",
				Flags: []cli.Flag{
					apiIDFlag(),
					apiHashFlag(),
					dataDirFlag(),
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := tgclient.Config{
						APIID:   int(cmd.Int(flagAPIID)),
						APIHash: cmd.String(flagAPIHash),
						DataDir: cmd.String(flagDataDir),
					}
					return tgclient.Logout(ctx, cfg)
				},
			},
		},
	}
}

// newLogger builds the process-wide zap logger. Logs go to stderr so they
// never interleave with protocol traffic; LOG_FILE adds a rotating sink.
func newLogger(level, file string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(os.Stderr)), lvl),
	}
	if file != "" {
		rotated := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotated), lvl))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}
