// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// infraConfig is the ambient deployment surface config.Config deliberately
// omits: where the database and cache live, and what address the server
// binds to. config.Config carries the core's own enumerated surface;
// this struct carries the binary's.
type infraConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DBHost         string `env:"DB_HOST,required"`
	DBPort         string `env:"DB_PORT" envDefault:"5432"`
	DBUser         string `env:"DB_USER,required"`
	DBPassword     string `env:"DB_PASSWORD,required"`
	DBName         string `env:"DB_NAME,required"`
	DBSSLMode      string `env:"DB_SSLMODE" envDefault:"disable"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"20"`

	// RedisAddr left empty disables the refresh-replay fast path; RotateRefresh
	// falls back to the database's rotated_at assertion alone.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

func loadInfraConfig() (*infraConfig, error) {
	cfg := &infraConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("infra config: %w", err)
	}
	return cfg, nil
}
