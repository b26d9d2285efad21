package config

import "github.com/dmitrijs2005/taskauth/internal/flagx"

// Environment variable names read by parseEnv.
const (
	EnvEndpointAddrGRPC   = "TASKAUTH_GRPC_ADDR"
	EnvDatabaseDSN        = "TASKAUTH_DATABASE_DSN"
	EnvAccessTokenSecret  = "TASKAUTH_ACCESS_TOKEN_SECRET"
	EnvRefreshTokenSecret = "TASKAUTH_REFRESH_TOKEN_SECRET"
	EnvIssuer             = "TASKAUTH_ISSUER"
	EnvAudience           = "TASKAUTH_AUDIENCE"
	EnvAccessTokenMinutes = "TASKAUTH_ACCESS_TOKEN_MINUTES"
	EnvRefreshTokenDays   = "TASKAUTH_REFRESH_TOKEN_DAYS"
)

func parseEnv(config *Config) error {
	config.EndpointAddrGRPC = flagx.EnvString(EnvEndpointAddrGRPC, config.EndpointAddrGRPC)
	config.DatabaseDSN = flagx.EnvString(EnvDatabaseDSN, config.DatabaseDSN)
	config.AccessTokenSecret = flagx.EnvString(EnvAccessTokenSecret, config.AccessTokenSecret)
	config.RefreshTokenSecret = flagx.EnvString(EnvRefreshTokenSecret, config.RefreshTokenSecret)
	config.Issuer = flagx.EnvString(EnvIssuer, config.Issuer)
	config.Audience = flagx.EnvString(EnvAudience, config.Audience)

	accessMinutes, err := flagx.EnvInt(EnvAccessTokenMinutes, inMinutes(config.AccessTokenValidityDuration))
	if err != nil {
		return err
	}
	refreshDays, err := flagx.EnvInt(EnvRefreshTokenDays, inDays(config.RefreshTokenValidityDuration))
	if err != nil {
		return err
	}

	config.AccessTokenValidityDuration = minutes(accessMinutes)
	config.RefreshTokenValidityDuration = days(refreshDays)
	return nil
}
