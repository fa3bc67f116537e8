// Command admin is the operator tool of the auth server: it runs
// migrations, provisions accounts and mints tokens for debugging.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
