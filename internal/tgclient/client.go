package tgclient

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Config holds Telegram API credentials and the local data directory.
type Config struct {
	APIID   int
	APIHash string
	Phone   string
	DataDir string
}

// userAuthenticator implements auth.UserAuthenticator for the interactive
// login flow: code from stdin, 2FA password hidden when stdin is a TTY.
type userAuthenticator struct {
	phone string
}

func (a userAuthenticator) Phone(ctx context.Context) (string, error) {
	if a.phone == "" {
		return "", fmt.Errorf("phone number is required (set TELEGRAM_PHONE_NUMBER)")
	}
	return a.phone, nil
}

func (a userAuthenticator) Code(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter login code: ")
	reader := bufio.NewReader(os.Stdin)
	code, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading code: %w", err)
	}
	return strings.TrimSpace(code), nil
}

func (a userAuthenticator) Password(ctx context.Context) (string, error) {
	fmt.Print("Enter 2FA password: ")

	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(password), nil
	}

	// Fallback for non-TTY environments
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(password), nil
}

func (a userAuthenticator) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (a userAuthenticator) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("sign up is not supported")
}

// CreateClient creates a Telegram client with file session storage and flood
// wait handling. The returned floodwait.Waiter must wrap the client.Run call;
// it absorbs short server-side waits, longer ones surface as errors the
// caller classifies via AsFloodWait.
func CreateClient(cfg Config, log *zap.Logger) (*telegram.Client, *floodwait.Waiter) {
	storage := NewSessionStorage(cfg.DataDir)
	waiter := floodwait.NewWaiter().WithMaxWait(60 * time.Second)

	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: storage,
		Middlewares:    []telegram.Middleware{waiter},
		Logger:         log.Named("tg"),
	})

	return client, waiter
}

// Gateway is the single handle through which the rest of the process talks
// to Telegram. It owns authentication and peer resolution; history fetching
// lives in the messages package on top of API().
type Gateway struct {
	client *telegram.Client
	cfg    Config
	log    *zap.Logger
}

// NewGateway wraps a running client. Must be called inside the client.Run
// callback.
func NewGateway(client *telegram.Client, cfg Config, log *zap.Logger) *Gateway {
	return &Gateway{client: client, cfg: cfg, log: log}
}

// API returns the raw MTProto API handle.
func (g *Gateway) API() *tg.Client {
	return g.client.API()
}

// Authenticate ensures the session is valid. A stored session is confirmed
// with a self-lookup; otherwise the interactive flow runs (login code, then
// 2FA password on demand) and gotd persists the fresh session.
func (g *Gateway) Authenticate(ctx context.Context) error {
	status, err := g.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("checking auth status: %w", err)
	}

	if !status.Authorized {
		g.log.Info("no valid session, starting interactive login", zap.String("phone", g.cfg.Phone))
		flow := auth.NewFlow(userAuthenticator{phone: g.cfg.Phone}, auth.SendCodeOptions{})
		if err := flow.Run(ctx, g.client.Auth()); err != nil {
			return fmt.Errorf("running auth flow: %w", err)
		}
	}

	user, err := g.client.Self(ctx)
	if err != nil {
		return fmt.Errorf("confirming session: %w", err)
	}
	g.log.Info("authenticated", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return nil
}

// IsAuthorized probes the session with a self-lookup. Unauthorized errors
// yield (false, nil); anything else is a transport error.
func (g *Gateway) IsAuthorized(ctx context.Context) (bool, error) {
	if _, err := g.client.Self(ctx); err != nil {
		if IsUnauthorized(err) {
			return false, nil
		}
		return false, fmt.Errorf("probing session: %w", err)
	}
	return true, nil
}

// Login performs interactive sign-in to Telegram.
func Login(ctx context.Context, cfg Config) error {
	client, waiter := CreateClient(cfg, zap.NewNop())

	err := waiter.Run(ctx, func(ctx context.Context) error {
		return client.Run(ctx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("checking auth status: %w", err)
			}

			if status.Authorized {
				user, err := client.Self(ctx)
				if err == nil {
					fmt.Printf("Already logged in as @%s\n", user.Username)
				}
				return nil
			}

			flow := auth.NewFlow(userAuthenticator{phone: cfg.Phone}, auth.SendCodeOptions{})
			if err := flow.Run(ctx, client.Auth()); err != nil {
				return fmt.Errorf("running auth flow: %w", err)
			}

			user, err := client.Self(ctx)
			if err != nil {
				return fmt.Errorf("getting user info: %w", err)
			}

			fmt.Printf("Successfully logged in as @%s\n", user.Username)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	return nil
}

// Logout logs out from Telegram and wipes the stored session.
func Logout(ctx context.Context, cfg Config) error {
	client, waiter := CreateClient(cfg, zap.NewNop())

	err := waiter.Run(ctx, func(ctx context.Context) error {
		return client.Run(ctx, func(ctx context.Context) error {
			if _, err := client.API().AuthLogOut(ctx); err != nil {
				return fmt.Errorf("calling auth logout: %w", err)
			}

			if err := NewSessionStorage(cfg.DataDir).DeleteSession(); err != nil {
				fmt.Println("Failed to wipe session:", err)
			}

			fmt.Println("Successfully logged out from Telegram.")
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}
