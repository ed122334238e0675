// hashpw prints an argon2id hash for the auth.users section of the config.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/KevinKickass/CorrectorMux/internal/auth"
)

func main() {
	memory := flag.Uint("memory", 64*1024, "argon2 memory in KiB")
	iterations := flag.Uint("iterations", 3, "argon2 iterations")
	parallelism := flag.Uint("parallelism", 2, "argon2 parallelism")
	flag.Parse()

	password := flag.Arg(0)
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "failed to read password: %v\n", err)
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "password must not be empty")
		os.Exit(2)
	}

	hasher := auth.NewPasswordHasherWithParams(uint32(*memory), uint32(*iterations), uint8(*parallelism))
	hash, err := hasher.Hash(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
