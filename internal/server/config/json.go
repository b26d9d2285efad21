package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/taskauth/internal/flagx"
)

// JsonConfig is the on-disk shape of the config file. Lifetimes are whole
// minutes and days, matching the flag and environment surface.
type JsonConfig struct {
	EndpointAddrGRPC           string `json:"endpoint_addr_grpc"`
	DatabaseDSN                string `json:"database_dsn"`
	AccessTokenSecret          string `json:"access_token_secret"`
	RefreshTokenSecret         string `json:"refresh_token_secret"`
	Issuer                     string `json:"issuer"`
	Audience                   string `json:"audience"`
	AccessTokenValidityMinutes int    `json:"access_token_validity_minutes"`
	RefreshTokenValidityDays   int    `json:"refresh_token_validity_days"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Keys absent from the file leave the current value alone. An unreadable file
// or invalid JSON panics: a half-read config must never start the server.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.Issuer, c.Issuer)
	setString(&config.Audience, c.Audience)
	if c.AccessTokenValidityMinutes != 0 {
		config.AccessTokenValidityDuration = minutes(c.AccessTokenValidityMinutes)
	}
	if c.RefreshTokenValidityDays != 0 {
		config.RefreshTokenValidityDuration = days(c.RefreshTokenValidityDays)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
