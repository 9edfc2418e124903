package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/mmiller42/badmagic-native/pkg/mockauth"
)

type Config struct {
	Addr       string `env:"MOCKAUTH_ADDR" env-default:":4000"`
	Email      string `env:"MOCKAUTH_EMAIL" env-default:"demo@example.com"`
	Password   string `env:"MOCKAUTH_PASSWORD" env-default:"demo-password"`
	TOTPSecret string `env:"MOCKAUTH_TOTP_SECRET" env-default:""`
}

func main() {
	config := Config{}
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed reading config", "err", err)
		os.Exit(-1)
	}

	server := mockauth.NewServer(mockauth.DefaultConfig(), mockauth.Account{
		UserID:     1,
		Email:      config.Email,
		Password:   config.Password,
		TOTPSecret: config.TOTPSecret,
	})

	slog.Info("mock auth API listening", "addr", config.Addr, "email", config.Email, "mfa", config.TOTPSecret != "")
	if err := http.ListenAndServe(config.Addr, server.Handler()); err != nil {
		slog.Error("Server failed", "err", err)
		os.Exit(-1)
	}
}
