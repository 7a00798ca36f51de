// Command admin-hash prints the bcrypt hash to put in ADMIN_TOKEN_HASH.
//
//	go run ./cmd/admin-hash -token "$(openssl rand -hex 24)"
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sakif/dreams-saver/internal/auth"
)

func main() {
	token := flag.String("token", "", "plaintext admin token to hash")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "usage: admin-hash -token <plaintext>")
		os.Exit(2)
	}

	hash, err := auth.NewPasswordService().Hash(*token)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hashing token:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
