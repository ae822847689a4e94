// Command hashpw generates the bcrypt digest expected by the
// admin.password_hash configuration key.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/openclaw/memoryd/internal/auth"
)

func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read password: %v\n", err)
			os.Exit(1)
		}
		password = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "usage: hashpw [password]")
		os.Exit(2)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
