/*
main.go - Application entry point

EXAMPLES:
  # Run the API with a file database
  sportwallet serve --db ./data/wallet.db

  # Throwaway in-memory store
  sportwallet serve --db :memory:

  # Settle 40 minutes of cycling
  sportwallet stop bike 40m

ENVIRONMENT:
  SPORTWALLET_HTTP_ADDR, SPORTWALLET_DB_PATH, SPORTWALLET_TIMEZONE,
  SPORTWALLET_LOG_LEVEL, SPORTWALLET_ADMIN_PASSWORD_HASH, ...
  See config/config.go.
*/
package main

import "github.com/sportwallet/engine/cli"

func main() {
	cli.Execute()
}
