package config

import (
	"flag"
	"os"
	"time"

	"github.com/identkit/identkit/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   path to the RSA private key PEM file
//	-t int      access token validity, minutes
//	-s int      session validity, hours
//	-r int      recovery token validity, minutes
//	-o string   cookie domain
//	-u string   public base URL for links in emails
//	-m string   outbound email sender address
//	-b int      bcrypt cost
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration flags
// are accepted as integers and then converted to time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k", "-t", "-s", "-r", "-o", "-u", "-m", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.PrivateKeyPath, "k", config.PrivateKeyPath, "RSA private key PEM path")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidity.Minutes()), "access token validity (in minutes)")
	sessionValidity := fs.Int("s", int(config.SessionValidity.Hours()), "session validity (in hours)")
	recoveryTokenValidity := fs.Int("r", int(config.RecoveryTokenValidity.Minutes()), "recovery token validity (in minutes)")

	fs.StringVar(&config.CookieDomain, "o", config.CookieDomain, "cookie domain")
	fs.StringVar(&config.PublicBaseURL, "u", config.PublicBaseURL, "public base URL")
	fs.StringVar(&config.EmailSender, "m", config.EmailSender, "outbound email sender")
	fs.IntVar(&config.BcryptCost, "b", config.BcryptCost, "bcrypt cost")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidity = time.Duration(*accessTokenValidity) * time.Minute
	config.SessionValidity = time.Duration(*sessionValidity) * time.Hour
	config.RecoveryTokenValidity = time.Duration(*recoveryTokenValidity) * time.Minute
}
