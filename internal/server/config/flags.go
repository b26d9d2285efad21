package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/taskauth/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   access token HMAC secret
//	-k string   refresh token HMAC secret
//	-i string   token issuer
//	-u string   token audience
//	-t int      access token validity, minutes
//	-r int      refresh token validity, days
//
// os.Args is first narrowed with flagx.FilterArgs so flags owned by other
// parsers (-c/-config, go test flags) do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-k", "-i", "-u", "-t", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AccessTokenSecret, "s", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.RefreshTokenSecret, "k", config.RefreshTokenSecret, "refresh token secret")
	fs.StringVar(&config.Issuer, "i", config.Issuer, "token issuer")
	fs.StringVar(&config.Audience, "u", config.Audience, "token audience")

	accessMinutes := fs.Int("t", inMinutes(config.AccessTokenValidityDuration), "access token validity (in minutes)")
	refreshDays := fs.Int("r", inDays(config.RefreshTokenValidityDuration), "refresh token validity (in days)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = minutes(*accessMinutes)
	config.RefreshTokenValidityDuration = days(*refreshDays)
}
