package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type config struct {
	Addr string `env:"PEERBOARD_ADDR" envDefault:":8081"`
	// PublicURL is the origin pages are rendered under. Derived from the
	// request when empty.
	PublicURL string `env:"PEERBOARD_PUBLIC_URL"`
	// SDKURL points at the embed script. The bundled stub is used when empty.
	SDKURL         string        `env:"PEERBOARD_SDK_URL"`
	ForumID        int64         `env:"PEERBOARD_FORUM_ID" envDefault:"1"`
	Prefix         string        `env:"PEERBOARD_PREFIX" envDefault:"/community"`
	JWTToken       string        `env:"PEERBOARD_JWT_TOKEN"`
	PreviewTimeout time.Duration `env:"PEERBOARD_PREVIEW_TIMEOUT" envDefault:"10s"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}
	return cfg, nil
}
