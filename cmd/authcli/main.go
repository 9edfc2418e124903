// Command authcli exercises the auth core against a running API: it
// restores persisted state, signs in when needed (prompting for a
// second-factor code on demand), and prints the resulting session.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/mmiller42/badmagic-native/pkg/authapi"
	"github.com/mmiller42/badmagic-native/pkg/bootstrap"
	"github.com/mmiller42/badmagic-native/pkg/config"
)

type CliConfig struct {
	Email    string `env:"AUTH_EMAIL" env-default:""`
	Password string `env:"AUTH_PASSWORD" env-default:""`
}

func main() {
	cliConfig := CliConfig{}
	if err := cleanenv.ReadEnv(&cliConfig); err != nil {
		slog.Error("Failed reading config", "err", err)
		os.Exit(-1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed reading config", "err", err)
		os.Exit(-1)
	}

	app, err := bootstrap.New(cfg)
	if err != nil {
		slog.Error("Failed building auth core", "err", err)
		os.Exit(-1)
	}
	defer app.Shutdown()

	ctx := context.Background()
	app.Initialize(ctx)

	if app.Sessions.Current() == nil {
		if cliConfig.Email == "" || cliConfig.Password == "" {
			slog.Error("No stored session; set AUTH_EMAIL and AUTH_PASSWORD to sign in")
			os.Exit(-1)
		}
		if err := login(ctx, app, cliConfig.Email, cliConfig.Password); err != nil {
			slog.Error("Sign-in failed", "err", err)
			os.Exit(-1)
		}
	}

	session := app.Sessions.Current()
	fmt.Printf("signed in as user %d\n", session.UserID)
	fmt.Printf("access token expires %s\n", time.Unix(session.Access.Payload.ExpiresAt, 0).Format(time.RFC3339))

	access, err := app.Sessions.AccessToken(ctx)
	if err != nil {
		slog.Error("Failed obtaining access token", "err", err)
		os.Exit(-1)
	}
	fmt.Println(access.Token)
}

func login(ctx context.Context, app *bootstrap.App, email, password string) error {
	err := app.Login(ctx, email, password)

	var challenge *authapi.TwoFactorRequiredError
	if errors.As(err, &challenge) {
		code, promptErr := prompt("second-factor code: ")
		if promptErr != nil {
			return promptErr
		}
		return app.CompleteTwoFactor(ctx, code)
	}
	return err
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
