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

// Package config loads the core's configuration surface from the
// environment, failing fast on anything missing or malformed rather than
// letting a bad value surface later as a confusing runtime error.
package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// SigningPublicKey pairs a verification-only public key with the kid it
// was originally published under, for restoring the overlap window after
// a restart (spec §6.5).
type SigningPublicKey struct {
	Kid       string `json:"kid"`
	PublicPEM string `json:"public_key"`
}

// Config is the enumerated configuration surface of spec §6.5.
//
// Purpose: Single fail-fast-validated source of runtime configuration.
// Domain: Platform (Infrastructure)
type Config struct {
	Issuer          string `env:"ISSUER,required"`
	ConsoleAudience string `env:"CONSOLE_AUDIENCE,required"`
	GatewayAudience string `env:"GATEWAY_AUDIENCE,required"`

	AccessTokenTTLSeconds  int `env:"ACCESS_TOKEN_TTL_SECONDS" envDefault:"900"`
	RefreshTokenTTLSeconds int `env:"REFRESH_TOKEN_TTL_SECONDS" envDefault:"2592000"`
	TokenLeewaySeconds     int `env:"TOKEN_LEEWAY_SECONDS" envDefault:"10"`

	SigningPrivateKeyPEM string `env:"SIGNING_PRIVATE_KEY,required"`

	// SigningPublicKeysJSON is a JSON array of {"kid","public_key"}
	// objects; caarlos0/env has no native struct-slice mapping, so this
	// surface is parsed explicitly in Load rather than forced into a tag.
	SigningPublicKeysJSON string `env:"SIGNING_PUBLIC_KEYS" envDefault:"[]"`
	SigningPublicKeys     []SigningPublicKey

	PasswordHashMemoryKiB   uint32 `env:"PASSWORD_HASH_MEMORY_KIB" envDefault:"65536"`
	PasswordHashTimeCost    uint32 `env:"PASSWORD_HASH_TIME_COST" envDefault:"4"`
	PasswordHashParallelism uint8  `env:"PASSWORD_HASH_PARALLELISM" envDefault:"1"`

	RefreshLookupKeyHex string `env:"REFRESH_LOOKUP_KEY,required"`
}

// Load reads Config from the process environment and validates it,
// returning an error for the first problem found.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := json.Unmarshal([]byte(cfg.SigningPublicKeysJSON), &cfg.SigningPublicKeys); err != nil {
		return nil, fmt.Errorf("config: signing_public_keys is not valid JSON: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AccessTokenTTLSeconds <= 0 {
		return fmt.Errorf("config: access_token_ttl_seconds must be positive, got %d", c.AccessTokenTTLSeconds)
	}
	if c.RefreshTokenTTLSeconds <= 0 {
		return fmt.Errorf("config: refresh_token_ttl_seconds must be positive, got %d", c.RefreshTokenTTLSeconds)
	}
	if c.TokenLeewaySeconds < 0 {
		return fmt.Errorf("config: token_leeway_seconds must be non-negative, got %d", c.TokenLeewaySeconds)
	}
	if c.PasswordHashMemoryKiB == 0 {
		return fmt.Errorf("config: password_hash_memory_kib must be positive")
	}
	if c.PasswordHashTimeCost == 0 {
		return fmt.Errorf("config: password_hash_time_cost must be positive")
	}
	if c.PasswordHashParallelism == 0 {
		return fmt.Errorf("config: password_hash_parallelism must be positive")
	}
	if len(c.RefreshLookupKeyHex) != 64 {
		return fmt.Errorf("config: refresh_lookup_key must be a 64-character (256-bit) hex string, got %d characters", len(c.RefreshLookupKeyHex))
	}
	if _, err := hex.DecodeString(c.RefreshLookupKeyHex); err != nil {
		return fmt.Errorf("config: refresh_lookup_key must be a 64-character (256-bit) hex string: %w", err)
	}
	if _, err := c.SigningPrivateKey(); err != nil {
		return fmt.Errorf("config: signing_private_key: %w", err)
	}
	for _, spk := range c.SigningPublicKeys {
		if _, err := parsePublicKeyPEM(spk.PublicPEM); err != nil {
			return fmt.Errorf("config: signing_public_keys[kid=%s]: %w", spk.Kid, err)
		}
	}
	return nil
}

// AccessTokenTTL returns the access token lifetime as a time.Duration.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLSeconds) * time.Second
}

// RefreshTokenTTL returns the refresh token lifetime as a time.Duration.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLSeconds) * time.Second
}

// TokenLeeway returns the clock-skew budget as a time.Duration.
func (c *Config) TokenLeeway() time.Duration {
	return time.Duration(c.TokenLeewaySeconds) * time.Second
}

// SigningPrivateKey parses SigningPrivateKeyPEM into an *rsa.PrivateKey.
func (c *Config) SigningPrivateKey() (*rsa.PrivateKey, error) {
	return parsePrivateKeyPEM(c.SigningPrivateKeyPEM)
}

// ParsedSigningPublicKey parses one SigningPublicKeys entry's PEM into an
// *rsa.PublicKey. validate already confirmed every entry parses cleanly,
// so callers past startup may treat this as infallible in practice.
func (c *Config) ParsedSigningPublicKey(spk SigningPublicKey) (*rsa.PublicKey, error) {
	return parsePublicKeyPEM(spk.PublicPEM)
}

func parsePrivateKeyPEM(s string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("not valid PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not a valid RSA private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

func parsePublicKeyPEM(s string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("not valid PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not a valid public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaKey, nil
}
